package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parishnet.org/internal/ids"
)

// ErrWriteFailed marks an audit append that failed after the domain mutation
// already succeeded. Callers must not roll back the mutation; they log the
// failure and count it instead.
var ErrWriteFailed = errors.New("audit: write failed")

// Entry is one append-only record of a privileged mutation. There is no
// update or delete operation on entries, ever.
type Entry struct {
	ID          string         `json:"id"`
	AdminUserID string         `json:"admin_user_id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Filter narrows entry listings. Action and EntityType are case-insensitive
// substring matches; the time bounds are inclusive.
type Filter struct {
	Action     string
	EntityType string
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

// Store persists entries. The interface deliberately exposes no mutation of
// existing rows.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, int, error)
}

// Logger records privileged mutations.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger constructs a Logger.
func NewLogger(store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// Record appends exactly one entry for an admin mutation. A cascade that
// touches many rows still yields a single entry for the root action.
func (l *Logger) Record(ctx context.Context, adminUserID, action, entityType, entityID string, metadata map[string]any, ip string) error {
	adminUserID = strings.TrimSpace(adminUserID)
	action = strings.TrimSpace(action)
	entityType = strings.TrimSpace(entityType)
	if adminUserID == "" || action == "" || entityType == "" {
		return fmt.Errorf("audit: admin user, action and entity type are required")
	}
	entry := &Entry{
		ID:          ids.New(),
		AdminUserID: adminUserID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    metadata,
		IPAddress:   ip,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// List returns entries sorted by created_at descending with offset
// pagination, plus the total count matching the filter.
func (l *Logger) List(ctx context.Context, f Filter) ([]*Entry, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	return l.store.List(ctx, f)
}
