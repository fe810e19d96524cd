package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelpoints-service/internal/domain/auth"
	xerrors "fuelpoints-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, phone, full_name, password_hash, role, station_id,
	active, last_login, created_at, updated_at`

// Create inserts a new platform user.
func (r *UserRepository) Create(ctx context.Context, u auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, phone, full_name, password_hash, role, station_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.Phone, u.FullName, u.PasswordHash, u.Role, u.StationID, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves one user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by login email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// RecordLogin stamps the last successful login.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.FullName, &u.PasswordHash, &u.Role,
		&u.StationID, &u.Active, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, xerrors.ErrNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}
