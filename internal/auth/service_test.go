package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	users  map[string]*User
	roles  map[string]*Role
	assign []RoleAssignment
	resets map[string]*PasswordResetToken
	otps   map[string]*EmailOTP
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*User),
		roles:  make(map[string]*Role),
		resets: make(map[string]*PasswordResetToken),
		otps:   make(map[string]*EmailOTP),
	}
}

func (m *memStore) Users(context.Context) UserStore   { return (*memUsers)(m) }
func (m *memStore) Roles(context.Context) RoleStore   { return (*memRoles)(m) }
func (m *memStore) Tokens(context.Context) TokenStore { return (*memTokens)(m) }

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email && !existing.IsDeleted {
			return ErrConflict
		}
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email && !u.IsDeleted {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(_ context.Context, f UserFilter) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		if u.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.ParishID != "" && u.ParishID != f.ParishID {
			continue
		}
		if f.Search != "" && !strings.Contains(u.FullName, f.Search) && !strings.Contains(u.Email, f.Search) {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	return out, len(out), nil
}

func (m *memUsers) Update(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return nil, ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsVerified != nil {
		u.IsVerified = *upd.IsVerified
	}
	if upd.ParishID != nil {
		u.ParishID = *upd.ParishID
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) SoftDelete(_ context.Context, id string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return ErrNotFound
	}
	now := time.Now().UTC()
	u.IsDeleted = true
	u.DeletedAt = &now
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) MarkVerified(_ context.Context, id string) error {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return ErrNotFound
	}
	u.IsVerified = true
	return nil
}

type memRoles memStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return ErrConflict
		}
	}
	clone := *role
	m.roles[role.ID] = &clone
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (m *memRoles) List(_ context.Context) ([]*Role, error) {
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		clone := *role
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memRoles) Update(_ context.Context, id string, upd RoleUpdate) (*Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	clone := *role
	return &clone, nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	kept := m.assign[:0]
	for _, a := range m.assign {
		if a.RoleID != id {
			kept = append(kept, a)
		}
	}
	m.assign = kept
	return nil
}

func (m *memRoles) Assign(_ context.Context, a RoleAssignment) error {
	for _, existing := range m.assign {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID {
			return ErrConflict
		}
	}
	m.assign = append(m.assign, a)
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	for i, a := range m.assign {
		if a.UserID == userID && a.RoleID == roleID {
			m.assign = append(m.assign[:i], m.assign[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRoles) Assignments(_ context.Context, userID string) ([]RoleAssignment, error) {
	var out []RoleAssignment
	for _, a := range m.assign {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memTokens memStore

func (m *memTokens) CreateReset(_ context.Context, t *PasswordResetToken) error {
	clone := *t
	m.resets[t.ID] = &clone
	return nil
}

func (m *memTokens) FindReset(_ context.Context, token string) (*PasswordResetToken, error) {
	for _, rec := range m.resets {
		if rec.Token == token {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTokens) ConsumeReset(_ context.Context, id string) error {
	if _, ok := m.resets[id]; !ok {
		return ErrNotFound
	}
	delete(m.resets, id)
	return nil
}

func (m *memTokens) CreateOTP(_ context.Context, t *EmailOTP) error {
	clone := *t
	m.otps[t.ID] = &clone
	return nil
}

func (m *memTokens) FindOTP(_ context.Context, userID, code string) (*EmailOTP, error) {
	for _, rec := range m.otps {
		if rec.UserID == userID && rec.Code == code {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTokens) ConsumeOTP(_ context.Context, id string) error {
	if _, ok := m.otps[id]; !ok {
		return ErrNotFound
	}
	delete(m.otps, id)
	return nil
}

func (m *memTokens) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	var purged int64
	for id, rec := range m.resets {
		if now.After(rec.ExpiresAt) {
			delete(m.resets, id)
			purged++
		}
	}
	for id, rec := range m.otps {
		if now.After(rec.ExpiresAt) {
			delete(m.otps, id)
			purged++
		}
	}
	return purged, nil
}

func newTestService(t *testing.T, store *memStore, opts ...ServiceOption) *Service {
	t.Helper()
	t.Setenv("PARISHNET_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestPrincipalUnionsRolePermissions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	store.users["u1"] = &User{ID: "u1", Email: "u1@example.com", IsActive: true}
	store.roles["r1"] = &Role{ID: "r1", Name: "A", Permissions: []string{PermAdminAccess, PermManagePrayers}}
	store.roles["r2"] = &Role{ID: "r2", Name: "B", Permissions: []string{PermManagePrayers, PermViewAuditLogs}}
	store.assign = []RoleAssignment{
		{UserID: "u1", RoleID: "r1"},
		{UserID: "u1", RoleID: "r2"},
		{UserID: "u1", RoleID: "gone"},
	}

	p, err := svc.Principal(ctx, "u1")
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if len(p.Permissions) != 3 {
		t.Fatalf("expected union of 3 permissions, got %v", p.Permissions)
	}
	for _, key := range []string{PermAdminAccess, PermManagePrayers, PermViewAuditLogs} {
		if !p.HasPermission(key) {
			t.Fatalf("missing permission %s", key)
		}
	}
	if p.HasPermission(PermManageUsers) {
		t.Fatalf("unexpected permission")
	}
}

func TestCreateRoleFromPreset(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Preset: "Moderator"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "Moderator" {
		t.Fatalf("expected preset display name, got %q", role.Name)
	}
	want := map[string]bool{
		PermAdminAccess:           true,
		PermAdminReadOnly:         true,
		PermManagePrayers:         true,
		PermManagePrayerResponses: true,
		PermManageTestimonials:    true,
	}
	if len(role.Permissions) != len(want) {
		t.Fatalf("unexpected bundle size: %v", role.Permissions)
	}
	for _, key := range role.Permissions {
		if !want[key] {
			t.Fatalf("unexpected permission %s in bundle", key)
		}
	}

	if _, err := svc.CreateRole(ctx, CreateRoleInput{Preset: "warden"}); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
	if _, err := svc.CreateRole(ctx, CreateRoleInput{Name: "Custom"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty permissions, got %v", err)
	}
	if _, err := svc.CreateRole(ctx, CreateRoleInput{Name: "Custom", Permissions: []string{"launch_rockets"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown key, got %v", err)
	}
}

func TestLoginIsOpaqueAndIssuesToken(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	user, err := svc.RegisterUser(ctx, "Anna Petrova", "Anna@Example.com", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if user.Email != "anna@example.com" {
		t.Fatalf("email was not normalized: %s", user.Email)
	}

	token, logged, err := svc.Login(ctx, "anna@example.com", "long-enough-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("unexpected user: %s", logged.ID)
	}

	principal, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.User.ID != user.ID {
		t.Fatalf("unexpected principal: %s", principal.User.ID)
	}

	if _, _, err := svc.Login(ctx, "anna@example.com", "wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for bad password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "long-enough-pass"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown email, got %v", err)
	}

	inactive := false
	if _, err := svc.UpdateUser(ctx, user.ID, UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, _, err := svc.Login(ctx, "anna@example.com", "long-enough-pass"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for inactive account, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for inactive account, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, store, WithClock(func() time.Time { return current }))

	user, err := svc.RegisterUser(ctx, "Boris Ivanov", "boris@example.com", "original-pass", "")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if tok, err := svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil || tok != nil {
		t.Fatalf("unknown email must be silent, got tok=%v err=%v", tok, err)
	}

	tok, err := svc.RequestPasswordReset(ctx, "boris@example.com")
	if err != nil || tok == nil {
		t.Fatalf("RequestPasswordReset: tok=%v err=%v", tok, err)
	}
	if err := svc.ResetPassword(ctx, tok.Token, "replacement-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, _, err := svc.Login(ctx, "boris@example.com", "original-pass"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, logged, err := svc.Login(ctx, "boris@example.com", "replacement-pass"); err != nil || logged.ID != user.ID {
		t.Fatalf("new password login failed: %v", err)
	}
	if err := svc.ResetPassword(ctx, tok.Token, "another-pass"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("consumed token must not replay, got %v", err)
	}

	tok, err = svc.RequestPasswordReset(ctx, "boris@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	current = current.Add(31 * time.Minute)
	if err := svc.ResetPassword(ctx, tok.Token, "late-pass"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail, got %v", err)
	}
}

func TestVerifyEmailOTP(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	user, err := svc.RegisterUser(ctx, "Clara Diaz", "clara@example.com", "some-password", "")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	otp, err := svc.IssueEmailOTP(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueEmailOTP: %v", err)
	}
	if len(otp.Code) != 6 {
		t.Fatalf("expected six-digit code, got %q", otp.Code)
	}

	if err := svc.VerifyEmail(ctx, user.ID, "000000x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong code must fail, got %v", err)
	}
	if err := svc.VerifyEmail(ctx, user.ID, otp.Code); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	verified, err := svc.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if !verified.User.IsVerified {
		t.Fatalf("user was not marked verified")
	}
	if err := svc.VerifyEmail(ctx, user.ID, otp.Code); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("consumed code must not replay, got %v", err)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if _, err := svc.RegisterUser(ctx, "D", "d@example.com", "short", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "D", "not-an-email", "long-enough-pass", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for malformed email, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "D One", "dup@example.com", "long-enough-pass", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "D Two", "dup@example.com", "long-enough-pass", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestReadOnlyFlagBlocksWrites(t *testing.T) {
	readOnly := Principal{Permissions: map[string]struct{}{
		PermAdminAccess:   {},
		PermAdminReadOnly: {},
		PermManagePrayers: {},
	}}
	if !readOnly.IsReadOnly() {
		t.Fatalf("expected read-only principal")
	}
	if err := RequireWritable(readOnly); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}

	writable := Principal{Permissions: map[string]struct{}{PermAdminAccess: {}}}
	if err := RequireWritable(writable); err != nil {
		t.Fatalf("expected writable principal, got %v", err)
	}
}
