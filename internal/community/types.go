package community

import "time"

// Reactions available on prayers.
const (
	ReactionPrayed = "prayed"
	ReactionAmen   = "amen"
	ReactionPeace  = "peace"
)

// Reactions available on testimonies.
const (
	TestimonyReactionPraise = "praise"
	TestimonyReactionAmen   = "amen"
	TestimonyReactionThanks = "thanks"
)

// Notification types.
const (
	NotificationPrayerReaction    = "prayer_reaction"
	NotificationPrayerResponse    = "prayer_response"
	NotificationAnnouncement      = "announcement"
	NotificationTestimonyReaction = "testimony_reaction"
)

var prayerReactions = map[string]struct{}{
	ReactionPrayed: {},
	ReactionAmen:   {},
	ReactionPeace:  {},
}

var testimonyReactions = map[string]struct{}{
	TestimonyReactionPraise: {},
	TestimonyReactionAmen:   {},
	TestimonyReactionThanks: {},
}

// Parish is a congregation that users and content may belong to.
type Parish struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	City      string     `json:"city,omitempty"`
	Address   string     `json:"address,omitempty"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Prayer is a prayer request. Prayers expire 24 hours after creation and are
// physically purged by the sweeper once expired.
type Prayer struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	AuthorName  *string    `json:"author_name,omitempty"`
	ParishID    string     `json:"parish_id,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	IsAnonymous bool       `json:"is_anonymous"`
	IsApproved  bool       `json:"is_approved"`
	IsDeleted   bool       `json:"is_deleted,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PrayerResponse is a reply to a prayer. Its expiry is inherited from the
// parent prayer at creation time; a nil AuthorName renders as anonymous.
type PrayerResponse struct {
	ID         string     `json:"id"`
	PrayerID   string     `json:"prayer_id"`
	UserID     string     `json:"user_id"`
	AuthorName *string    `json:"author_name,omitempty"`
	Content    string     `json:"content"`
	IsDeleted  bool       `json:"is_deleted,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PrayerReaction records one user's current reaction to a prayer. At most one
// row exists per (prayer, user).
type PrayerReaction struct {
	ID        string    `json:"id"`
	PrayerID  string    `json:"prayer_id"`
	UserID    string    `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Testimony is a shared testimony. Same 24 hour lifetime as prayers.
type Testimony struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AuthorName *string    `json:"author_name,omitempty"`
	ParishID   string     `json:"parish_id,omitempty"`
	Content    string     `json:"content"`
	IsDeleted  bool       `json:"is_deleted,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TestimonyReaction records one user's current reaction to a testimony.
type TestimonyReaction struct {
	ID          string    `json:"id"`
	TestimonyID string    `json:"testimony_id"`
	UserID      string    `json:"user_id"`
	Reaction    string    `json:"reaction"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	RelatedID string     `json:"related_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Announcement is a parish-wide or global announcement.
type Announcement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ParishID  string     `json:"parish_id,omitempty"`
	CreatedBy string     `json:"created_by"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CalendarEvent is a scheduled parish event.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	ParishID    string     `json:"parish_id,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	IsDeleted   bool       `json:"is_deleted,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Stats aggregates counts for the admin dashboard. Counts respect soft-delete
// and expiry.
type Stats struct {
	ActivePrayers       int `json:"active_prayers"`
	ActiveTestimonies   int `json:"active_testimonies"`
	Parishes            int `json:"parishes"`
	Announcements       int `json:"announcements"`
	UpcomingEvents      int `json:"upcoming_events"`
	UnreadNotifications int `json:"unread_notifications"`
}

// PrayerFilter narrows prayer listings. IncludeDeleted is honored only by
// audit/export code paths.
type PrayerFilter struct {
	ParishID       string
	UserID         string
	IncludeDeleted bool
	Page           int
	Limit          int
}

// TestimonyFilter narrows testimony listings.
type TestimonyFilter struct {
	ParishID       string
	UserID         string
	IncludeDeleted bool
	Page           int
	Limit          int
}
