package auth

import (
	"database/sql"
	"time"
)

// Role is a closed set of principal kinds on the platform.
type Role string

const (
	RoleCustomer        Role = "customer"
	RoleStationEmployee Role = "station_employee"
	RoleStationManager  Role = "station_manager"
	RoleCampaignAdmin   Role = "campaign_admin"
	RoleSuperAdmin      Role = "super_admin"
)

// CanRedeem reports whether the role may process redemptions at a terminal.
func CanRedeem(r Role) bool {
	return r == RoleStationEmployee || r == RoleStationManager || r == RoleSuperAdmin
}

// CanManageCampaigns reports whether the role may create campaigns, change
// their status and generate coupon batches.
func CanManageCampaigns(r Role) bool {
	return r == RoleCampaignAdmin || r == RoleSuperAdmin
}

// CanRunDraws reports whether the role may open, draw and settle raffles.
func CanRunDraws(r Role) bool {
	return r == RoleCampaignAdmin || r == RoleSuperAdmin
}

// User is a platform principal: a customer, a station employee or an admin.
type User struct {
	ID           string         `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	Phone        sql.NullString `json:"phone,omitempty" db:"phone"`
	FullName     string         `json:"full_name" db:"full_name"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Role         Role           `json:"role" db:"role"`
	// StationID is set for station staff only.
	StationID sql.NullString `json:"station_id,omitempty" db:"station_id"`
	Active    bool           `json:"active" db:"active"`
	LastLogin sql.NullTime   `json:"last_login,omitempty" db:"last_login"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}
