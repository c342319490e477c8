package community

import (
	"context"
	"time"
)

// Store describes persistence operations required by the community subsystem.
type Store interface {
	Parishes(ctx context.Context) ParishStore
	Prayers(ctx context.Context) PrayerStore
	PrayerResponses(ctx context.Context) PrayerResponseStore
	PrayerReactions(ctx context.Context) PrayerReactionStore
	Testimonies(ctx context.Context) TestimonyStore
	TestimonyReactions(ctx context.Context) TestimonyReactionStore
	Notifications(ctx context.Context) NotificationStore
	Announcements(ctx context.Context) AnnouncementStore
	Events(ctx context.Context) EventStore

	// Stats aggregates dashboard counts.
	Stats(ctx context.Context) (*Stats, error)
	// PurgeExpired physically deletes rows whose expires_at is at or before
	// the given instant, with their dependents. The audit log is never touched.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// ParishStore manages parishes.
type ParishStore interface {
	Create(ctx context.Context, p *Parish) error
	Find(ctx context.Context, id string) (*Parish, error)
	List(ctx context.Context) ([]*Parish, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// PrayerStore manages prayers. Standard reads exclude soft-deleted and
// expired rows; includeDeleted lifts the soft-delete filter for audit and
// export reads.
type PrayerStore interface {
	Create(ctx context.Context, p *Prayer) error
	Find(ctx context.Context, id string, includeDeleted bool) (*Prayer, error)
	List(ctx context.Context, f PrayerFilter) ([]*Prayer, int, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	// SoftDeleteCascade marks the prayer and every dependent row (responses,
	// reactions, notifications keyed by related_id) deleted in one
	// transaction and returns the number of rows affected. An already-deleted
	// or missing prayer yields ErrNotFound with no side effects.
	SoftDeleteCascade(ctx context.Context, id string, at time.Time) (int64, error)
}

// PrayerResponseStore manages prayer responses.
type PrayerResponseStore interface {
	Create(ctx context.Context, r *PrayerResponse) error
	Find(ctx context.Context, id string) (*PrayerResponse, error)
	ListByPrayer(ctx context.Context, prayerID string) ([]*PrayerResponse, error)
	UpdateContent(ctx context.Context, id, content string) (*PrayerResponse, error)
}

// PrayerReactionStore manages prayer reactions. Create must enforce the
// (prayer_id, user_id) uniqueness and surface a violation as ErrConflict.
type PrayerReactionStore interface {
	Create(ctx context.Context, r *PrayerReaction) error
	Find(ctx context.Context, prayerID, userID string) (*PrayerReaction, error)
	Update(ctx context.Context, id, reaction string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByPrayer(ctx context.Context, prayerID string) (map[string]int, error)
}

// TestimonyStore manages testimonies.
type TestimonyStore interface {
	Create(ctx context.Context, t *Testimony) error
	Find(ctx context.Context, id string, includeDeleted bool) (*Testimony, error)
	List(ctx context.Context, f TestimonyFilter) ([]*Testimony, int, error)
	// SoftDeleteCascade mirrors the prayer cascade for testimonies.
	SoftDeleteCascade(ctx context.Context, id string, at time.Time) (int64, error)
}

// TestimonyReactionStore manages testimony reactions with the same
// uniqueness contract as PrayerReactionStore.
type TestimonyReactionStore interface {
	Create(ctx context.Context, r *TestimonyReaction) error
	Find(ctx context.Context, testimonyID, userID string) (*TestimonyReaction, error)
	Update(ctx context.Context, id, reaction string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByTestimony(ctx context.Context, testimonyID string) (map[string]int, error)
}

// NotificationStore manages notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// AnnouncementStore manages announcements.
type AnnouncementStore interface {
	Create(ctx context.Context, a *Announcement) error
	Find(ctx context.Context, id string) (*Announcement, error)
	List(ctx context.Context, parishID string) ([]*Announcement, error)
	Update(ctx context.Context, a *Announcement) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// EventStore manages calendar events.
type EventStore interface {
	Create(ctx context.Context, e *CalendarEvent) error
	Find(ctx context.Context, id string) (*CalendarEvent, error)
	List(ctx context.Context, parishID string, from time.Time) ([]*CalendarEvent, error)
	Update(ctx context.Context, e *CalendarEvent) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
