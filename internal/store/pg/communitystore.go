package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parishnet.org/internal/community"
)

var _ community.Store = (*Store)(nil)

type parishStore Store
type prayerStore Store
type responseStore Store
type prayerReactionStore Store
type testimonyStore Store
type testimonyReactionStore Store
type notificationStore Store
type announcementStore Store
type eventStore Store

func (s *Store) Parishes(context.Context) community.ParishStore { return (*parishStore)(s) }
func (s *Store) Prayers(context.Context) community.PrayerStore  { return (*prayerStore)(s) }
func (s *Store) PrayerResponses(context.Context) community.PrayerResponseStore {
	return (*responseStore)(s)
}
func (s *Store) PrayerReactions(context.Context) community.PrayerReactionStore {
	return (*prayerReactionStore)(s)
}
func (s *Store) Testimonies(context.Context) community.TestimonyStore { return (*testimonyStore)(s) }
func (s *Store) TestimonyReactions(context.Context) community.TestimonyReactionStore {
	return (*testimonyReactionStore)(s)
}
func (s *Store) Notifications(context.Context) community.NotificationStore {
	return (*notificationStore)(s)
}
func (s *Store) Announcements(context.Context) community.AnnouncementStore {
	return (*announcementStore)(s)
}
func (s *Store) Events(context.Context) community.EventStore { return (*eventStore)(s) }

// Stats aggregates dashboard counts in one round trip.
func (s *Store) Stats(ctx context.Context) (*community.Stats, error) {
	var st community.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from prayers where is_deleted = false and expires_at > now()),
			(select count(*) from testimonies where is_deleted = false and expires_at > now()),
			(select count(*) from parishes where is_deleted = false),
			(select count(*) from announcements where is_deleted = false),
			(select count(*) from calendar_events where is_deleted = false and starts_at > now()),
			(select count(*) from notifications where is_deleted = false and is_read = false)
	`).Scan(&st.ActivePrayers, &st.ActiveTestimonies, &st.Parishes, &st.Announcements, &st.UpcomingEvents, &st.UnreadNotifications)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// PurgeExpired physically deletes expired prayers and testimonies with their
// dependents. Foreign keys are declared on delete cascade, so a single delete
// per root table suffices. The audit log is never touched here.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	for _, query := range []string{
		`delete from prayers where expires_at <= $1`,
		`delete from testimonies where expires_at <= $1`,
	} {
		res, err := s.db.ExecContext(ctx, query, before)
		if err != nil {
			return purged, err
		}
		n, _ := res.RowsAffected()
		purged += n
	}
	return purged, nil
}

func (s *parishStore) Create(ctx context.Context, p *community.Parish) error {
	_, err := s.db.ExecContext(ctx, `
		insert into parishes (id, name, city, address, created_at)
		values ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, nullIfEmpty(p.City), nullIfEmpty(p.Address), p.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return community.ErrConflict
		}
		return err
	}
	return nil
}

func (s *parishStore) Find(ctx context.Context, id string) (*community.Parish, error) {
	var (
		p       community.Parish
		city    sql.NullString
		address sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, city, address, created_at
		from parishes where id = $1 and is_deleted = false
	`, id).Scan(&p.ID, &p.Name, &city, &address, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.City = city.String
	p.Address = address.String
	return &p, nil
}

func (s *parishStore) List(ctx context.Context) ([]*community.Parish, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(city, ''), coalesce(address, ''), created_at
		from parishes where is_deleted = false order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parishes []*community.Parish
	for rows.Next() {
		var p community.Parish
		if err := rows.Scan(&p.ID, &p.Name, &p.City, &p.Address, &p.CreatedAt); err != nil {
			return nil, err
		}
		parishes = append(parishes, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parishes, nil
}

func (s *parishStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update parishes set is_deleted = true, deleted_at = $2
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

const prayerColumns = `id, user_id, author_name, parish_id, title, content, is_anonymous, is_approved, is_deleted, deleted_at, expires_at, created_at, updated_at`

func scanPrayer(row interface{ Scan(...any) error }) (*community.Prayer, error) {
	var (
		p          community.Prayer
		authorName sql.NullString
		parishID   sql.NullString
		deletedAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &authorName, &parishID, &p.Title, &p.Content, &p.IsAnonymous, &p.IsApproved, &p.IsDeleted, &deletedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.AuthorName = strPtr(authorName)
	p.ParishID = parishID.String
	p.DeletedAt = timePtr(deletedAt)
	return &p, nil
}

func (s *prayerStore) Create(ctx context.Context, p *community.Prayer) error {
	_, err := s.db.ExecContext(ctx, `
		insert into prayers (id, user_id, author_name, parish_id, title, content, is_anonymous, is_approved, expires_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.UserID, nullIfNil(p.AuthorName), nullIfEmpty(p.ParishID), p.Title, p.Content, p.IsAnonymous, p.IsApproved, p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *prayerStore) Find(ctx context.Context, id string, includeDeleted bool) (*community.Prayer, error) {
	query := `select ` + prayerColumns + ` from prayers where id = $1`
	if !includeDeleted {
		query += ` and is_deleted = false`
	}
	return scanPrayer(s.db.QueryRowContext(ctx, query, id))
}

func (s *prayerStore) List(ctx context.Context, f community.PrayerFilter) ([]*community.Prayer, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if !f.IncludeDeleted {
		where = append(where, "is_deleted = false", "expires_at > now()")
	}
	if f.ParishID != "" {
		where = append(where, fmt.Sprintf("parish_id = $%d", idx))
		args = append(args, f.ParishID)
		idx++
	}
	if f.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, f.UserID)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from prayers`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	query := fmt.Sprintf(`select `+prayerColumns+` from prayers%s order by created_at desc limit $%d offset $%d`, clause, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var prayers []*community.Prayer
	for rows.Next() {
		p, err := scanPrayer(rows)
		if err != nil {
			return nil, 0, err
		}
		prayers = append(prayers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return prayers, total, nil
}

func (s *prayerStore) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx, `
		update prayers set is_approved = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, id, approved)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

// SoftDeleteCascade marks the prayer and its dependents deleted in one
// transaction. Reactions are removed rather than flagged; they have no
// soft-delete representation of their own.
func (s *prayerStore) SoftDeleteCascade(ctx context.Context, id string, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update prayers set is_deleted = true, deleted_at = $2, updated_at = $2
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, community.ErrNotFound
	}

	res, err = tx.ExecContext(ctx, `
		update prayer_responses set is_deleted = true, deleted_at = $2
		where prayer_id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	affected += n

	res, err = tx.ExecContext(ctx, `delete from prayer_reactions where prayer_id = $1`, id)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	affected += n

	res, err = tx.ExecContext(ctx, `
		update notifications set is_deleted = true, deleted_at = $2
		where related_id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	affected += n

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *responseStore) Create(ctx context.Context, r *community.PrayerResponse) error {
	_, err := s.db.ExecContext(ctx, `
		insert into prayer_responses (id, prayer_id, user_id, author_name, content, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.PrayerID, r.UserID, nullIfNil(r.AuthorName), r.Content, r.ExpiresAt, r.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *responseStore) Find(ctx context.Context, id string) (*community.PrayerResponse, error) {
	var (
		r          community.PrayerResponse
		authorName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, prayer_id, user_id, author_name, content, expires_at, created_at
		from prayer_responses where id = $1 and is_deleted = false
	`, id).Scan(&r.ID, &r.PrayerID, &r.UserID, &authorName, &r.Content, &r.ExpiresAt, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.AuthorName = strPtr(authorName)
	return &r, nil
}

func (s *responseStore) ListByPrayer(ctx context.Context, prayerID string) ([]*community.PrayerResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, prayer_id, user_id, author_name, content, expires_at, created_at
		from prayer_responses
		where prayer_id = $1 and is_deleted = false
		order by created_at asc
	`, prayerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*community.PrayerResponse
	for rows.Next() {
		var (
			r          community.PrayerResponse
			authorName sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.PrayerID, &r.UserID, &authorName, &r.Content, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.AuthorName = strPtr(authorName)
		responses = append(responses, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *responseStore) UpdateContent(ctx context.Context, id, content string) (*community.PrayerResponse, error) {
	res, err := s.db.ExecContext(ctx, `
		update prayer_responses set content = $2
		where id = $1 and is_deleted = false
	`, id, content)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, community.ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *prayerReactionStore) Create(ctx context.Context, r *community.PrayerReaction) error {
	_, err := s.db.ExecContext(ctx, `
		insert into prayer_reactions (id, prayer_id, user_id, reaction, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.PrayerID, r.UserID, r.Reaction, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return community.ErrConflict
			case pgErrForeignKeyViolation:
				return community.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *prayerReactionStore) Find(ctx context.Context, prayerID, userID string) (*community.PrayerReaction, error) {
	var r community.PrayerReaction
	err := s.db.QueryRowContext(ctx, `
		select id, prayer_id, user_id, reaction, created_at, updated_at
		from prayer_reactions where prayer_id = $1 and user_id = $2
	`, prayerID, userID).Scan(&r.ID, &r.PrayerID, &r.UserID, &r.Reaction, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *prayerReactionStore) Update(ctx context.Context, id, reaction string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update prayer_reactions set reaction = $2, updated_at = $3 where id = $1
	`, id, reaction, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *prayerReactionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from prayer_reactions where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *prayerReactionStore) CountByPrayer(ctx context.Context, prayerID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select reaction, count(*) from prayer_reactions where prayer_id = $1 group by reaction
	`, prayerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			reaction string
			n        int
		)
		if err := rows.Scan(&reaction, &n); err != nil {
			return nil, err
		}
		counts[reaction] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

const testimonyColumns = `id, user_id, author_name, parish_id, content, is_deleted, deleted_at, expires_at, created_at`

func scanTestimony(row interface{ Scan(...any) error }) (*community.Testimony, error) {
	var (
		t          community.Testimony
		authorName sql.NullString
		parishID   sql.NullString
		deletedAt  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &authorName, &parishID, &t.Content, &t.IsDeleted, &deletedAt, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.AuthorName = strPtr(authorName)
	t.ParishID = parishID.String
	t.DeletedAt = timePtr(deletedAt)
	return &t, nil
}

func (s *testimonyStore) Create(ctx context.Context, t *community.Testimony) error {
	_, err := s.db.ExecContext(ctx, `
		insert into testimonies (id, user_id, author_name, parish_id, content, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, nullIfNil(t.AuthorName), nullIfEmpty(t.ParishID), t.Content, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *testimonyStore) Find(ctx context.Context, id string, includeDeleted bool) (*community.Testimony, error) {
	query := `select ` + testimonyColumns + ` from testimonies where id = $1`
	if !includeDeleted {
		query += ` and is_deleted = false`
	}
	return scanTestimony(s.db.QueryRowContext(ctx, query, id))
}

func (s *testimonyStore) List(ctx context.Context, f community.TestimonyFilter) ([]*community.Testimony, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if !f.IncludeDeleted {
		where = append(where, "is_deleted = false", "expires_at > now()")
	}
	if f.ParishID != "" {
		where = append(where, fmt.Sprintf("parish_id = $%d", idx))
		args = append(args, f.ParishID)
		idx++
	}
	if f.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, f.UserID)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from testimonies`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	query := fmt.Sprintf(`select `+testimonyColumns+` from testimonies%s order by created_at desc limit $%d offset $%d`, clause, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var testimonies []*community.Testimony
	for rows.Next() {
		t, err := scanTestimony(rows)
		if err != nil {
			return nil, 0, err
		}
		testimonies = append(testimonies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return testimonies, total, nil
}

func (s *testimonyStore) SoftDeleteCascade(ctx context.Context, id string, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update testimonies set is_deleted = true, deleted_at = $2
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, community.ErrNotFound
	}

	res, err = tx.ExecContext(ctx, `delete from testimony_reactions where testimony_id = $1`, id)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	affected += n

	res, err = tx.ExecContext(ctx, `
		update notifications set is_deleted = true, deleted_at = $2
		where related_id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	affected += n

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *testimonyReactionStore) Create(ctx context.Context, r *community.TestimonyReaction) error {
	_, err := s.db.ExecContext(ctx, `
		insert into testimony_reactions (id, testimony_id, user_id, reaction, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.TestimonyID, r.UserID, r.Reaction, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return community.ErrConflict
			case pgErrForeignKeyViolation:
				return community.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *testimonyReactionStore) Find(ctx context.Context, testimonyID, userID string) (*community.TestimonyReaction, error) {
	var r community.TestimonyReaction
	err := s.db.QueryRowContext(ctx, `
		select id, testimony_id, user_id, reaction, created_at, updated_at
		from testimony_reactions where testimony_id = $1 and user_id = $2
	`, testimonyID, userID).Scan(&r.ID, &r.TestimonyID, &r.UserID, &r.Reaction, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *testimonyReactionStore) Update(ctx context.Context, id, reaction string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update testimony_reactions set reaction = $2, updated_at = $3 where id = $1
	`, id, reaction, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *testimonyReactionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from testimony_reactions where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *testimonyReactionStore) CountByTestimony(ctx context.Context, testimonyID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select reaction, count(*) from testimony_reactions where testimony_id = $1 group by reaction
	`, testimonyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			reaction string
			n        int
		)
		if err := rows.Scan(&reaction, &n); err != nil {
			return nil, err
		}
		counts[reaction] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *notificationStore) Create(ctx context.Context, n *community.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		insert into notifications (id, user_id, type, message, related_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Type, n.Message, nullIfEmpty(n.RelatedID), n.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *notificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*community.Notification, error) {
	query := `
		select id, user_id, type, message, coalesce(related_id, ''), is_read, created_at
		from notifications
		where user_id = $1 and is_deleted = false`
	if unreadOnly {
		query += ` and is_read = false`
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*community.Notification
	for rows.Next() {
		var n community.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *notificationStore) MarkRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update notifications set is_read = true
		where id = $1 and user_id = $2 and is_deleted = false
	`, id, userID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *announcementStore) Create(ctx context.Context, a *community.Announcement) error {
	_, err := s.db.ExecContext(ctx, `
		insert into announcements (id, title, content, parish_id, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Title, a.Content, nullIfEmpty(a.ParishID), a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *announcementStore) Find(ctx context.Context, id string) (*community.Announcement, error) {
	var a community.Announcement
	err := s.db.QueryRowContext(ctx, `
		select id, title, content, coalesce(parish_id, ''), created_by, created_at, updated_at
		from announcements where id = $1 and is_deleted = false
	`, id).Scan(&a.ID, &a.Title, &a.Content, &a.ParishID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *announcementStore) List(ctx context.Context, parishID string) ([]*community.Announcement, error) {
	query := `
		select id, title, content, coalesce(parish_id, ''), created_by, created_at, updated_at
		from announcements where is_deleted = false`
	var args []any
	if parishID != "" {
		query += ` and parish_id = $1`
		args = append(args, parishID)
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var announcements []*community.Announcement
	for rows.Next() {
		var a community.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.ParishID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		announcements = append(announcements, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return announcements, nil
}

func (s *announcementStore) Update(ctx context.Context, a *community.Announcement) error {
	res, err := s.db.ExecContext(ctx, `
		update announcements set title = $2, content = $3, parish_id = $4, updated_at = $5
		where id = $1 and is_deleted = false
	`, a.ID, a.Title, a.Content, nullIfEmpty(a.ParishID), a.UpdatedAt)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *announcementStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update announcements set is_deleted = true, deleted_at = $2
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *eventStore) Create(ctx context.Context, e *community.CalendarEvent) error {
	_, err := s.db.ExecContext(ctx, `
		insert into calendar_events (id, title, description, location, parish_id, starts_at, ends_at, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Title, nullIfEmpty(e.Description), nullIfEmpty(e.Location), nullIfEmpty(e.ParishID), e.StartsAt, nullTime(e.EndsAt), e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return community.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *eventStore) Find(ctx context.Context, id string) (*community.CalendarEvent, error) {
	var (
		e      community.CalendarEvent
		endsAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, title, coalesce(description, ''), coalesce(location, ''), coalesce(parish_id, ''), starts_at, ends_at, created_by, created_at, updated_at
		from calendar_events where id = $1 and is_deleted = false
	`, id).Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.ParishID, &e.StartsAt, &endsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, community.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if endsAt.Valid {
		e.EndsAt = endsAt.Time
	}
	return &e, nil
}

func (s *eventStore) List(ctx context.Context, parishID string, from time.Time) ([]*community.CalendarEvent, error) {
	query := `
		select id, title, coalesce(description, ''), coalesce(location, ''), coalesce(parish_id, ''), starts_at, ends_at, created_by, created_at, updated_at
		from calendar_events where is_deleted = false and starts_at >= $1`
	args := []any{from}
	if parishID != "" {
		query += ` and parish_id = $2`
		args = append(args, parishID)
	}
	query += ` order by starts_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*community.CalendarEvent
	for rows.Next() {
		var (
			e      community.CalendarEvent
			endsAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.ParishID, &e.StartsAt, &endsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if endsAt.Valid {
			e.EndsAt = endsAt.Time
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *eventStore) Update(ctx context.Context, e *community.CalendarEvent) error {
	res, err := s.db.ExecContext(ctx, `
		update calendar_events
		set title = $2, description = $3, location = $4, parish_id = $5, starts_at = $6, ends_at = $7, updated_at = $8
		where id = $1 and is_deleted = false
	`, e.ID, e.Title, nullIfEmpty(e.Description), nullIfEmpty(e.Location), nullIfEmpty(e.ParishID), e.StartsAt, nullTime(e.EndsAt), e.UpdatedAt)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func (s *eventStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update calendar_events set is_deleted = true, deleted_at = $2
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return community.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
