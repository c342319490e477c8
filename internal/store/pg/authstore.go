package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"parishnet.org/internal/auth"
)

var _ auth.Store = (*Store)(nil)

type userStore Store
type roleStore Store
type tokenStore Store

func (s *Store) Users(context.Context) auth.UserStore   { return (*userStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore   { return (*roleStore)(s) }
func (s *Store) Tokens(context.Context) auth.TokenStore { return (*tokenStore)(s) }

const userColumns = `id, full_name, email, password_hash, parish_id, is_active, is_verified, is_deleted, deleted_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u         auth.User
		parishID  sql.NullString
		deletedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &parishID, &u.IsActive, &u.IsVerified, &u.IsDeleted, &deletedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if parishID.Valid {
		u.ParishID = parishID.String
	}
	u.DeletedAt = timePtr(deletedAt)
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, full_name, email, password_hash, parish_id, is_active, is_verified, created_at, updated_at)
		values ($1, $2, lower($3), $4, $5, $6, $7, $8, $9)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, nullIfEmpty(u.ParishID), u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users where id = $1 and is_deleted = false
	`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users where lower(email) = lower($1) and is_deleted = false
	`, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context, f auth.UserFilter) ([]*auth.User, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if !f.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ilike $%d or email ilike $%d)", idx, idx))
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.ParishID != "" {
		where = append(where, fmt.Sprintf("parish_id = $%d", idx))
		args = append(args, f.ParishID)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	query := fmt.Sprintf(`select `+userColumns+` from users%s order by created_at desc limit $%d offset $%d`, clause, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.FullName != nil {
		sets = append(sets, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, *upd.FullName)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = lower($%d)", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.IsActive)
		idx++
	}
	if upd.IsVerified != nil {
		sets = append(sets, fmt.Sprintf("is_verified = $%d", idx))
		args = append(args, *upd.IsVerified)
		idx++
	}
	if upd.ParishID != nil {
		sets = append(sets, fmt.Sprintf("parish_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.ParishID))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d and is_deleted = false`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, auth.ErrConflict
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, auth.ErrNotFound
		}
	}
	return s.Find(ctx, id)
}

func (s *userStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_deleted = true, deleted_at = now(), updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, id, passwordHash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *userStore) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_verified = true, updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var (
		role     auth.Role
		rawPerms []byte
	)
	err := row.Scan(&role.ID, &role.Name, &rawPerms, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (id, name, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.Name, perms, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, permissions, created_at, updated_at from roles where id = $1
	`, id)
	return scanRole(row)
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, permissions, created_at, updated_at from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *roleStore) Update(ctx context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(upd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("marshal permissions: %w", err)
		}
		sets = append(sets, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, perms)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, auth.ErrConflict
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, auth.ErrNotFound
		}
	}
	return s.Find(ctx, id)
}

// Delete removes a role and every assignment referencing it in one
// transaction.
func (s *roleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return tx.Commit()
}

func (s *roleStore) Assign(ctx context.Context, a auth.RoleAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, assigned_at)
		values ($1, $2, $3)
	`, a.UserID, a.RoleID, a.AssignedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *roleStore) Assignments(ctx context.Context, userID string) ([]auth.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, assigned_at from user_roles where user_id = $1 order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []auth.RoleAssignment
	for rows.Next() {
		var a auth.RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.AssignedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *tokenStore) CreateReset(ctx context.Context, t *auth.PasswordResetToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into password_reset_tokens (id, user_id, token, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *tokenStore) FindReset(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	var t auth.PasswordResetToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, created_at
		from password_reset_tokens where token = $1
	`, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *tokenStore) ConsumeReset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from password_reset_tokens where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *tokenStore) CreateOTP(ctx context.Context, t *auth.EmailOTP) error {
	_, err := s.db.ExecContext(ctx, `
		insert into email_otps (id, user_id, code, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.Code, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *tokenStore) FindOTP(ctx context.Context, userID, code string) (*auth.EmailOTP, error) {
	var t auth.EmailOTP
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, code, expires_at, created_at
		from email_otps where user_id = $1 and code = $2
	`, userID, code).Scan(&t.ID, &t.UserID, &t.Code, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *tokenStore) ConsumeOTP(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from email_otps where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *tokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	res, err := s.db.ExecContext(ctx, `delete from password_reset_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	purged += n
	res, err = s.db.ExecContext(ctx, `delete from email_otps where expires_at <= $1`, now)
	if err != nil {
		return purged, err
	}
	n, _ = res.RowsAffected()
	purged += n
	return purged, nil
}
