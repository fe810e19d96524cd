package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"testing"
	"time"

	"fuelpoints-service/internal/domain/auth"
	xerrors "fuelpoints-service/internal/pkg/errors"
	"fuelpoints-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeUserStore struct {
	byID    map[string]auth.User
	byEmail map[string]auth.User
	logins  map[string]time.Time
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[string]auth.User),
		byEmail: make(map[string]auth.User),
		logins:  make(map[string]time.Time),
	}
}

func (f *fakeUserStore) Create(_ context.Context, u auth.User) error {
	if _, dup := f.byEmail[u.Email]; dup {
		return xerrors.Wrap(xerrors.ErrConflict, u.Email)
	}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (auth.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return auth.User{}, xerrors.Wrap(xerrors.ErrNotFound, id)
	}
	return u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (auth.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return auth.User{}, xerrors.Wrap(xerrors.ErrNotFound, email)
	}
	return u, nil
}

func (f *fakeUserStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	f.logins[id] = at
	return nil
}

func newAuthService(t *testing.T) (*Service, *fakeUserStore, *jwt.Manager) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := &jwt.Manager{
		Generator: jwt.NewGenerator(key, "fuelpoints", "fuelpoints-users", "test-key", time.Hour),
		Verifier:  jwt.NewVerifier(&key.PublicKey, "fuelpoints", "fuelpoints-users"),
	}

	store := newFakeUserStore()
	svc := NewService(store, tokens, zap.NewNop())
	svc.now = func() time.Time { return fixedTime }
	seq := 0
	svc.idGen = func() string {
		seq++
		return fmt.Sprintf("usr-%d", seq)
	}
	return svc, store, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, tokens := newAuthService(t)

	u, err := svc.Register(context.Background(), &auth.RegisterRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
		FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != auth.RoleCustomer || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.PasswordHash != "" {
		t.Fatalf("password hash leaked in response")
	}
	if store.byID[u.ID].PasswordHash == "" || store.byID[u.ID].PasswordHash == "correct horse" {
		t.Fatalf("stored password is not hashed")
	}

	res, err := svc.Login(context.Background(), &auth.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.TokenType != "Bearer" || res.User.ID != u.ID {
		t.Fatalf("unexpected login response %+v", res)
	}

	claims, err := tokens.Verifier.VerifyAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != string(auth.RoleCustomer) {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, ok := store.logins[u.ID]; !ok {
		t.Fatalf("last login not recorded")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newAuthService(t)
	if _, err := svc.Register(context.Background(), &auth.RegisterRequest{
		Email: "alice@example.com", Password: "correct horse", FullName: "Alice",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(context.Background(), &auth.LoginRequest{
		Email: "alice@example.com", Password: "wrong horse",
	}); !errors.Is(err, xerrors.ErrUnauthorized) {
		t.Fatalf("wrong password: expected ErrUnauthorized, got %v", err)
	}

	// Unknown email gets the same answer as a wrong password.
	if _, err := svc.Login(context.Background(), &auth.LoginRequest{
		Email: "nobody@example.com", Password: "whatever",
	}); !errors.Is(err, xerrors.ErrUnauthorized) {
		t.Fatalf("unknown email: expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	svc, store, _ := newAuthService(t)
	u, err := svc.Register(context.Background(), &auth.RegisterRequest{
		Email: "alice@example.com", Password: "correct horse", FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	disabled := store.byID[u.ID]
	disabled.Active = false
	store.byID[u.ID] = disabled
	store.byEmail[u.Email] = disabled

	if _, err := svc.Login(context.Background(), &auth.LoginRequest{
		Email: "alice@example.com", Password: "correct horse",
	}); !errors.Is(err, xerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateStaff(t *testing.T) {
	svc, _, _ := newAuthService(t)

	u, err := svc.CreateStaff(context.Background(), &auth.CreateStaffRequest{
		Email:     "till@station.example",
		FullName:  "Till Operator",
		Password:  "pump pump pump",
		Role:      string(auth.RoleStationEmployee),
		StationID: "stn-1",
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if u.Role != auth.RoleStationEmployee || u.StationID.String != "stn-1" {
		t.Fatalf("unexpected staff user %+v", u)
	}

	if _, err := svc.CreateStaff(context.Background(), &auth.CreateStaffRequest{
		Email: "x@example.com", FullName: "X", Password: "pump pump pump", Role: "janitor",
	}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("unknown role: expected ErrInvalidInput, got %v", err)
	}

	// Station staff must be bound to a station.
	if _, err := svc.CreateStaff(context.Background(), &auth.CreateStaffRequest{
		Email: "y@example.com", FullName: "Y", Password: "pump pump pump",
		Role: string(auth.RoleStationManager),
	}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("missing station: expected ErrInvalidInput, got %v", err)
	}
}
