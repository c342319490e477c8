package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"parishnet.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Append inserts one audit entry. There is no corresponding update or delete
// statement anywhere in this package.
func (s *Store) Append(ctx context.Context, e *audit.Entry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, admin_user_id, action, entity_type, entity_id, metadata, ip_address, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.AdminUserID, e.Action, e.EntityType, nullIfEmpty(e.EntityID), meta, nullIfEmpty(e.IPAddress), e.CreatedAt)
	return err
}

// List returns matching entries newest first plus the total match count.
func (s *Store) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, int, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.Action != "" {
		where = append(where, fmt.Sprintf("action ilike $%d", idx))
		args = append(args, "%"+f.Action+"%")
		idx++
	}
	if f.EntityType != "" {
		where = append(where, fmt.Sprintf("entity_type ilike $%d", idx))
		args = append(args, "%"+f.EntityType+"%")
		idx++
	}
	if !f.From.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where = append(where, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, f.To)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	query := fmt.Sprintf(`
		select id, admin_user_id, action, entity_type, coalesce(entity_id, ''), metadata, coalesce(ip_address, ''), created_at
		from audit_logs%s
		order by created_at desc
		limit $%d offset $%d
	`, clause, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			rawMeta []byte
		)
		if err := rows.Scan(&e.ID, &e.AdminUserID, &e.Action, &e.EntityType, &e.EntityID, &rawMeta, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
