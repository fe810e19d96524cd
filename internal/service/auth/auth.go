package auth

import (
	"context"
	"database/sql"
	"time"

	"fuelpoints-service/internal/domain/auth"
	xerrors "fuelpoints-service/internal/pkg/errors"
	"fuelpoints-service/internal/pkg/jwt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence port for platform users.
type Store interface {
	Create(ctx context.Context, u auth.User) error
	GetByID(ctx context.Context, id string) (auth.User, error)
	GetByEmail(ctx context.Context, email string) (auth.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type Service struct {
	store  Store
	tokens *jwt.Manager
	logger *zap.Logger
	now    func() time.Time
	idGen  func() string
}

func NewService(store Store, tokens *jwt.Manager, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		idGen:  func() string { return ulid.Make().String() },
	}
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, req *auth.RegisterRequest) (auth.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return auth.User{}, xerrors.Wrap(xerrors.ErrInternal, "hash password")
	}

	ts := s.now().UTC()
	u := auth.User{
		ID:           s.idGen(),
		Email:        req.Email,
		Phone:        sql.NullString{String: req.Phone, Valid: req.Phone != ""},
		FullName:     req.FullName,
		PasswordHash: string(hash),
		Role:         auth.RoleCustomer,
		Active:       true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return auth.User{}, err
	}

	s.logger.Info("customer registered", zap.String("user_id", u.ID))
	u.PasswordHash = ""
	return u, nil
}

// CreateStaff provisions a station employee or admin account.
func (s *Service) CreateStaff(ctx context.Context, req *auth.CreateStaffRequest) (auth.User, error) {
	role := auth.Role(req.Role)
	switch role {
	case auth.RoleStationEmployee, auth.RoleStationManager, auth.RoleCampaignAdmin, auth.RoleSuperAdmin:
	default:
		return auth.User{}, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown staff role")
	}
	if (role == auth.RoleStationEmployee || role == auth.RoleStationManager) && req.StationID == "" {
		return auth.User{}, xerrors.Wrap(xerrors.ErrInvalidInput, "station staff needs a station")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return auth.User{}, xerrors.Wrap(xerrors.ErrInternal, "hash password")
	}

	ts := s.now().UTC()
	u := auth.User{
		ID:           s.idGen(),
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		Role:         role,
		StationID:    sql.NullString{String: req.StationID, Valid: req.StationID != ""},
		Active:       true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return auth.User{}, err
	}

	s.logger.Info("staff account created",
		zap.String("user_id", u.ID),
		zap.String("role", string(role)))
	u.PasswordHash = ""
	return u, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req *auth.LoginRequest) (auth.LoginResponse, error) {
	u, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return auth.LoginResponse{}, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid credentials")
		}
		return auth.LoginResponse{}, err
	}
	if !u.Active {
		return auth.LoginResponse{}, xerrors.Wrap(xerrors.ErrForbidden, "account disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return auth.LoginResponse{}, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid credentials")
	}

	token, _, err := s.tokens.Generator.GenerateAccessToken(u.ID, string(u.Role), u.StationID.String)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		return auth.LoginResponse{}, xerrors.Wrap(xerrors.ErrInternal, "issue token")
	}

	now := s.now()
	if err := s.store.RecordLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("last login not recorded", zap.String("user_id", u.ID), zap.Error(err))
	}

	ttl := s.tokens.Generator.Ttl
	return auth.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		ExpiresAt:   now.Add(ttl),
		User: auth.UserInfo{
			ID:        u.ID,
			Email:     u.Email,
			FullName:  u.FullName,
			Role:      string(u.Role),
			StationID: u.StationID.String,
		},
	}, nil
}

// GetUser returns a user without the password hash.
func (s *Service) GetUser(ctx context.Context, id string) (auth.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return auth.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}
