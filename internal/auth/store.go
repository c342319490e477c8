package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Tokens(ctx context.Context) TokenStore
}

// UserStore manages user accounts. Standard reads exclude soft-deleted users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter) ([]*User, int, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	SoftDelete(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string) error
}

// RoleStore manages roles and role assignments. Delete must also remove every
// assignment referencing the role, atomically.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, a RoleAssignment) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]RoleAssignment, error)
}

// TokenStore manages single-use password-reset tokens and email OTPs.
type TokenStore interface {
	CreateReset(ctx context.Context, t *PasswordResetToken) error
	FindReset(ctx context.Context, token string) (*PasswordResetToken, error)
	ConsumeReset(ctx context.Context, id string) error
	CreateOTP(ctx context.Context, t *EmailOTP) error
	FindOTP(ctx context.Context, userID, code string) (*EmailOTP, error)
	ConsumeOTP(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
