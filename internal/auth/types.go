package auth

import "time"

// User represents a parish member or administrator account.
type User struct {
	ID           string     `json:"id"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	ParishID     string     `json:"parish_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	IsDeleted    bool       `json:"is_deleted,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role groups permissions under a unique, case-insensitive name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleAssignment links a user to a role. At most one assignment exists per
// (user, role) pair; a user's effective permissions are the union across all
// assigned roles.
type RoleAssignment struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// PasswordResetToken is a short-lived, single-use credential for resetting a
// password. It is deleted the moment it is successfully used.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// EmailOTP is a short-lived, single-use code for verifying an email address.
type EmailOTP struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search         string
	ParishID       string
	Page           int
	Limit          int
	IncludeDeleted bool
}

// UserUpdate carries optional field changes; nil means "leave unchanged".
type UserUpdate struct {
	FullName   *string
	Email      *string
	IsActive   *bool
	IsVerified *bool
	ParishID   *string
}

// RoleUpdate carries optional role changes.
type RoleUpdate struct {
	Name        *string
	Permissions []string
}
