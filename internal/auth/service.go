package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"parishnet.org/internal/ids"
)

const (
	defaultAccessTTL = 24 * time.Hour
	resetTokenTTL    = 30 * time.Minute
	emailOTPTTL      = 10 * time.Minute
)

// Service provides permission resolution, role administration and credential
// verification on top of a Store.
type Service struct {
	store Store
	now   func() time.Time

	accessTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	svc := &Service{
		store:     store,
		now:       time.Now,
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Principal loads a user with the union of permissions across all assigned
// roles. Correctness over latency: no caching, every check re-reads the store.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	assignments, err := s.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	perms := make(map[string]struct{})
	for _, a := range assignments {
		role, err := s.store.Roles(ctx).Find(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return Principal{}, err
		}
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}
	return Principal{User: user, Assignments: assignments, Permissions: perms}, nil
}

// HasPermission reports whether some role assigned to the user carries perm.
func (s *Service) HasPermission(ctx context.Context, userID, perm string) (bool, error) {
	principal, err := s.Principal(ctx, userID)
	if err != nil {
		return false, err
	}
	return principal.HasPermission(perm), nil
}

// Require resolves the principal and fails with ErrPermissionDenied when the
// permission is absent.
func (s *Service) Require(ctx context.Context, userID, perm string) (Principal, error) {
	principal, err := s.Principal(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !principal.HasPermission(perm) {
		return Principal{}, ErrPermissionDenied
	}
	return principal, nil
}

// RequireAdmin ensures the user holds admin_access. The returned principal
// carries the read-only flag; mutating handlers must call RequireWritable
// before touching any state.
func (s *Service) RequireAdmin(ctx context.Context, userID string) (Principal, error) {
	return s.Require(ctx, userID, PermAdminAccess)
}

// RequireWritable rejects read-only admins ahead of any mutation.
func RequireWritable(principal Principal) error {
	if principal.IsReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// CreateRoleInput describes a role creation request. Either Preset names a
// fixed bundle, or Permissions lists explicit keys.
type CreateRoleInput struct {
	Name        string
	Permissions []string
	Preset      string
}

// CreateRole creates a role from a preset or an explicit permission list.
// Preset permissions are copied verbatim; when no name is supplied the
// preset's display name is used. Explicit lists must be non-empty and every
// key must belong to the closed catalog.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	var perms []string

	if preset := strings.TrimSpace(in.Preset); preset != "" {
		p, ok := Preset(preset)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
		}
		perms = p.Permissions
		if name == "" {
			name = p.Name
		}
	} else {
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		perms = dedupeStrings(in.Permissions)
		if len(perms) == 0 {
			return nil, fmt.Errorf("%w: permissions are required when not using a preset", ErrInvalidInput)
		}
		if err := ValidatePermissions(perms); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, roleID)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// UpdateRole applies partial changes; permission lists are validated against
// the catalog and must stay non-empty.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Permissions != nil {
		perms := dedupeStrings(upd.Permissions)
		if len(perms) == 0 {
			return nil, fmt.Errorf("%w: permissions must not be empty", ErrInvalidInput)
		}
		if err := ValidatePermissions(perms); err != nil {
			return nil, err
		}
		upd.Permissions = perms
	}
	return s.store.Roles(ctx).Update(ctx, roleID, upd)
}

// DeleteRole removes the role and every assignment referencing it, so no
// dangling assignment survives.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Delete(ctx, roleID)
}

// AssignRole grants the role to the user. Duplicate assignments surface as
// ErrConflict from the store's uniqueness constraint.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (RoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return RoleAssignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	a := RoleAssignment{UserID: userID, RoleID: roleID, AssignedAt: s.now().UTC()}
	if err := s.store.Roles(ctx).Assign(ctx, a); err != nil {
		return RoleAssignment{}, err
	}
	return a, nil
}

// RemoveAssignment revokes the role from the user.
func (s *Service) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Unassign(ctx, userID, roleID)
}

// Login verifies credentials and issues an access token. Every failure mode
// collapses into ErrUnauthenticated so callers cannot probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrUnauthenticated
	}
	if user.IsDeleted || !user.IsActive {
		return "", nil, ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrUnauthenticated
	}
	token, err := GenerateToken(user.ID, s.accessTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Authenticate validates a bearer token and resolves the principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	principal, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if principal.User.IsDeleted || !principal.User.IsActive {
		return Principal{}, ErrInvalidToken
	}
	return principal, nil
}

// RequestPasswordReset creates a single-use reset token for the account, if
// it exists. The caller always gets the same answer, so the endpoint does not
// leak which emails are registered; the token is returned for delivery by the
// mail layer.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetToken, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tok := &PasswordResetToken{
		ID:        ids.New(),
		UserID:    user.ID,
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		ExpiresAt: now.Add(resetTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.Tokens(ctx).CreateReset(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ResetPassword consumes a valid reset token and replaces the password.
// Expired or unknown tokens fail with ErrInvalidToken; a used token is
// deleted immediately so it can never be replayed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}
	rec, err := s.store.Tokens(ctx).FindReset(ctx, token)
	if err != nil {
		return ErrInvalidToken
	}
	if s.now().After(rec.ExpiresAt) {
		return ErrInvalidToken
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, rec.UserID, hash); err != nil {
		return err
	}
	return s.store.Tokens(ctx).ConsumeReset(ctx, rec.ID)
}

// IssueEmailOTP creates a six-digit verification code for the user.
func (s *Service) IssueEmailOTP(ctx context.Context, userID string) (*EmailOTP, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return nil, err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	otp := &EmailOTP{
		ID:        ids.New(),
		UserID:    userID,
		Code:      fmt.Sprintf("%06d", n.Int64()),
		ExpiresAt: now.Add(emailOTPTTL),
		CreatedAt: now,
	}
	if err := s.store.Tokens(ctx).CreateOTP(ctx, otp); err != nil {
		return nil, err
	}
	return otp, nil
}

// VerifyEmail consumes a valid OTP and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, userID, code string) error {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return fmt.Errorf("%w: user_id and code are required", ErrInvalidInput)
	}
	rec, err := s.store.Tokens(ctx).FindOTP(ctx, userID, code)
	if err != nil {
		return ErrInvalidToken
	}
	if s.now().After(rec.ExpiresAt) {
		return ErrInvalidToken
	}
	if err := s.store.Users(ctx).MarkVerified(ctx, userID); err != nil {
		return err
	}
	return s.store.Tokens(ctx).ConsumeOTP(ctx, rec.ID)
}

// RegisterUser creates an account with a hashed password. Email uniqueness is
// enforced by the store.
func (s *Service) RegisterUser(ctx context.Context, fullName, email, password, parishID string) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(strings.ToLower(email))
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: full name and email are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           ids.New(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		ParishID:     strings.TrimSpace(parishID),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users(ctx).Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers pages through accounts for the admin console.
func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]*User, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.store.Users(ctx).List(ctx, f)
}

// UpdateUser applies partial account changes.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.FullName != nil {
		trimmed := strings.TrimSpace(*upd.FullName)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: full name must not be empty", ErrInvalidInput)
		}
		upd.FullName = &trimmed
	}
	if upd.Email != nil {
		lowered := strings.TrimSpace(strings.ToLower(*upd.Email))
		if !strings.Contains(lowered, "@") {
			return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
		}
		upd.Email = &lowered
	}
	return s.store.Users(ctx).Update(ctx, id, upd)
}

// DeleteUser soft-deletes the account; the row stays for audit joins.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).SoftDelete(ctx, id)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
