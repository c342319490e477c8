package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parishnet.org/internal/feed"
	"parishnet.org/internal/ids"
)

const (
	// contentTTL bounds the lifetime of prayers and testimonies.
	contentTTL = 24 * time.Hour

	maxContentLength = 4000
	maxTitleLength   = 200
)

// Service implements the community domain: prayers, testimonies, reactions,
// notifications, announcements, events and parishes. Live-feed events are
// published only after the underlying write commits.
type Service struct {
	store        Store
	prayerBus    *feed.Bus
	testimonyBus *feed.Bus
	now          func() time.Time
}

// ServiceOption configures optional service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the community service. The feed buses may be nil, in
// which case publishing is skipped.
func NewService(store Store, prayerBus, testimonyBus *feed.Bus, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("community store is required")
	}
	s := &Service{
		store:        store,
		prayerBus:    prayerBus,
		testimonyBus: testimonyBus,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) publishPrayer(evt feed.Event) {
	if s.prayerBus != nil {
		s.prayerBus.Publish(evt)
	}
}

func (s *Service) publishTestimony(evt feed.Event) {
	if s.testimonyBus != nil {
		s.testimonyBus.Publish(evt)
	}
}

// CreatePrayerInput carries fields for a new prayer.
type CreatePrayerInput struct {
	UserID      string
	AuthorName  string
	ParishID    string
	Title       string
	Content     string
	IsAnonymous bool
}

// CreatePrayer stores a prayer with the default lifetime and announces it on
// the prayer feed.
func (s *Service) CreatePrayer(ctx context.Context, in CreatePrayerInput) (*Prayer, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be 1..%d characters", ErrInvalidInput, maxTitleLength)
	}
	if in.Content == "" || len(in.Content) > maxContentLength {
		return nil, fmt.Errorf("%w: content must be 1..%d characters", ErrInvalidInput, maxContentLength)
	}

	now := s.now().UTC()
	p := &Prayer{
		ID:          ids.New(),
		UserID:      in.UserID,
		ParishID:    strings.TrimSpace(in.ParishID),
		Title:       in.Title,
		Content:     in.Content,
		IsAnonymous: in.IsAnonymous,
		IsApproved:  true,
		ExpiresAt:   now.Add(contentTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !in.IsAnonymous {
		name := strings.TrimSpace(in.AuthorName)
		if name != "" {
			p.AuthorName = &name
		}
	}
	if err := s.store.Prayers(ctx).Create(ctx, p); err != nil {
		return nil, err
	}
	s.publishPrayer(feed.Event{Type: feed.TypePrayerCreated, PrayerID: p.ID, Payload: p})
	return p, nil
}

// GetPrayer returns an active prayer. Soft-deleted and expired prayers are
// indistinguishable from missing ones.
func (s *Service) GetPrayer(ctx context.Context, id string) (*Prayer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: prayer id is required", ErrInvalidInput)
	}
	p, err := s.store.Prayers(ctx).Find(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !p.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListPrayers lists active prayers, newest first.
func (s *Service) ListPrayers(ctx context.Context, f PrayerFilter) ([]*Prayer, int, error) {
	f.IncludeDeleted = false
	normalizePage(&f.Page, &f.Limit)
	return s.store.Prayers(ctx).List(ctx, f)
}

// ListPrayersForExport lists prayers including soft-deleted ones. Expired
// rows still appear until the sweeper purges them.
func (s *Service) ListPrayersForExport(ctx context.Context, f PrayerFilter) ([]*Prayer, int, error) {
	f.IncludeDeleted = true
	normalizePage(&f.Page, &f.Limit)
	return s.store.Prayers(ctx).List(ctx, f)
}

// SetPrayerApproved flips the moderation flag on a prayer.
func (s *Service) SetPrayerApproved(ctx context.Context, id string, approved bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: prayer id is required", ErrInvalidInput)
	}
	return s.store.Prayers(ctx).SetApproved(ctx, id, approved)
}

// SoftDeletePrayer marks the prayer and all of its dependents deleted in one
// transaction and publishes a single prayer_deleted event. Deleting an
// already-deleted prayer returns ErrNotFound and publishes nothing.
func (s *Service) SoftDeletePrayer(ctx context.Context, id string) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("%w: prayer id is required", ErrInvalidInput)
	}
	affected, err := s.store.Prayers(ctx).SoftDeleteCascade(ctx, id, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.publishPrayer(feed.Event{Type: feed.TypePrayerDeleted, PrayerID: id})
	return affected, nil
}

// RespondInput carries fields for a new prayer response.
type RespondInput struct {
	PrayerID    string
	UserID      string
	AuthorName  string
	Content     string
	IsAnonymous bool
}

// RespondToPrayer attaches a response to an active prayer. The response
// inherits the parent's expiry, and the prayer author is notified unless they
// responded to themselves.
func (s *Service) RespondToPrayer(ctx context.Context, in RespondInput) (*PrayerResponse, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Content = strings.TrimSpace(in.Content)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.Content == "" || len(in.Content) > maxContentLength {
		return nil, fmt.Errorf("%w: content must be 1..%d characters", ErrInvalidInput, maxContentLength)
	}
	prayer, err := s.GetPrayer(ctx, in.PrayerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &PrayerResponse{
		ID:        ids.New(),
		PrayerID:  prayer.ID,
		UserID:    in.UserID,
		Content:   in.Content,
		ExpiresAt: prayer.ExpiresAt,
		CreatedAt: now,
	}
	if !in.IsAnonymous {
		name := strings.TrimSpace(in.AuthorName)
		if name != "" {
			r.AuthorName = &name
		}
	}
	if err := s.store.PrayerResponses(ctx).Create(ctx, r); err != nil {
		return nil, err
	}

	if prayer.UserID != in.UserID {
		s.notify(ctx, prayer.UserID, NotificationPrayerResponse, prayer.ID,
			fmt.Sprintf("%s responded to your prayer", displayName(r.AuthorName)))
	}
	return r, nil
}

// ListResponses lists responses to an active prayer.
func (s *Service) ListResponses(ctx context.Context, prayerID string) ([]*PrayerResponse, error) {
	if _, err := s.GetPrayer(ctx, prayerID); err != nil {
		return nil, err
	}
	return s.store.PrayerResponses(ctx).ListByPrayer(ctx, prayerID)
}

// UpdateResponseContent rewrites a response's content. Admin moderation path.
func (s *Service) UpdateResponseContent(ctx context.Context, id, content string) (*PrayerResponse, error) {
	id = strings.TrimSpace(id)
	content = strings.TrimSpace(content)
	if id == "" {
		return nil, fmt.Errorf("%w: response id is required", ErrInvalidInput)
	}
	if content == "" || len(content) > maxContentLength {
		return nil, fmt.Errorf("%w: content must be 1..%d characters", ErrInvalidInput, maxContentLength)
	}
	return s.store.PrayerResponses(ctx).UpdateContent(ctx, id, content)
}

// CreateTestimonyInput carries fields for a new testimony.
type CreateTestimonyInput struct {
	UserID      string
	AuthorName  string
	ParishID    string
	Content     string
	IsAnonymous bool
}

// CreateTestimony stores a testimony with the default lifetime and announces
// it on the testimony feed.
func (s *Service) CreateTestimony(ctx context.Context, in CreateTestimonyInput) (*Testimony, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Content = strings.TrimSpace(in.Content)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.Content == "" || len(in.Content) > maxContentLength {
		return nil, fmt.Errorf("%w: content must be 1..%d characters", ErrInvalidInput, maxContentLength)
	}

	now := s.now().UTC()
	t := &Testimony{
		ID:        ids.New(),
		UserID:    in.UserID,
		ParishID:  strings.TrimSpace(in.ParishID),
		Content:   in.Content,
		ExpiresAt: now.Add(contentTTL),
		CreatedAt: now,
	}
	if !in.IsAnonymous {
		name := strings.TrimSpace(in.AuthorName)
		if name != "" {
			t.AuthorName = &name
		}
	}
	if err := s.store.Testimonies(ctx).Create(ctx, t); err != nil {
		return nil, err
	}
	s.publishTestimony(feed.Event{Type: feed.TypeTestimonyAdded, TestimonyID: t.ID, Payload: t})
	return t, nil
}

// GetTestimony returns an active testimony.
func (s *Service) GetTestimony(ctx context.Context, id string) (*Testimony, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: testimony id is required", ErrInvalidInput)
	}
	t, err := s.store.Testimonies(ctx).Find(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !t.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrNotFound
	}
	return t, nil
}

// ListTestimonies lists active testimonies, newest first.
func (s *Service) ListTestimonies(ctx context.Context, f TestimonyFilter) ([]*Testimony, int, error) {
	f.IncludeDeleted = false
	normalizePage(&f.Page, &f.Limit)
	return s.store.Testimonies(ctx).List(ctx, f)
}

// DeleteTestimony soft-deletes a testimony with the same cascade policy as
// prayers. A non-owner without force gets ErrPermissionDenied.
func (s *Service) DeleteTestimony(ctx context.Context, id, actorID string, force bool) (int64, error) {
	t, err := s.GetTestimony(ctx, id)
	if err != nil {
		return 0, err
	}
	if !force && t.UserID != strings.TrimSpace(actorID) {
		return 0, ErrPermissionDenied
	}
	affected, err := s.store.Testimonies(ctx).SoftDeleteCascade(ctx, t.ID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.publishTestimony(feed.Event{Type: feed.TypeTestimonyDeleted, TestimonyID: t.ID})
	return affected, nil
}

// ListNotifications lists a user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Notifications(ctx).ListByUser(ctx, userID, unreadOnly)
}

// MarkNotificationRead marks one of the user's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	userID = strings.TrimSpace(userID)
	if id == "" || userID == "" {
		return fmt.Errorf("%w: notification id and user id are required", ErrInvalidInput)
	}
	return s.store.Notifications(ctx).MarkRead(ctx, id, userID)
}

// AnnouncementInput carries fields for creating or updating an announcement.
type AnnouncementInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ParishID string `json:"parish_id"`
}

func (in *AnnouncementInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be 1..%d characters", ErrInvalidInput, maxTitleLength)
	}
	if in.Content == "" || len(in.Content) > maxContentLength {
		return fmt.Errorf("%w: content must be 1..%d characters", ErrInvalidInput, maxContentLength)
	}
	return nil
}

// CreateAnnouncement stores an announcement.
func (s *Service) CreateAnnouncement(ctx context.Context, createdBy string, in AnnouncementInput) (*Announcement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a := &Announcement{
		ID:        ids.New(),
		Title:     in.Title,
		Content:   in.Content,
		ParishID:  strings.TrimSpace(in.ParishID),
		CreatedBy: strings.TrimSpace(createdBy),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.CreatedBy == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if err := s.store.Announcements(ctx).Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnnouncements lists active announcements, optionally scoped to a parish.
func (s *Service) ListAnnouncements(ctx context.Context, parishID string) ([]*Announcement, error) {
	return s.store.Announcements(ctx).List(ctx, strings.TrimSpace(parishID))
}

// UpdateAnnouncement rewrites an announcement from a full structured input.
func (s *Service) UpdateAnnouncement(ctx context.Context, id string, in AnnouncementInput) (*Announcement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a, err := s.store.Announcements(ctx).Find(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	a.Title = in.Title
	a.Content = in.Content
	a.ParishID = strings.TrimSpace(in.ParishID)
	a.UpdatedAt = s.now().UTC()
	if err := s.store.Announcements(ctx).Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAnnouncement soft-deletes an announcement.
func (s *Service) DeleteAnnouncement(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: announcement id is required", ErrInvalidInput)
	}
	return s.store.Announcements(ctx).SoftDelete(ctx, id, s.now().UTC())
}

// EventInput carries fields for creating or updating a calendar event.
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	ParishID    string    `json:"parish_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

func (in *EventInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be 1..%d characters", ErrInvalidInput, maxTitleLength)
	}
	if in.StartsAt.IsZero() {
		return fmt.Errorf("%w: starts_at is required", ErrInvalidInput)
	}
	if !in.EndsAt.IsZero() && in.EndsAt.Before(in.StartsAt) {
		return fmt.Errorf("%w: ends_at precedes starts_at", ErrInvalidInput)
	}
	return nil
}

// CreateEvent stores a calendar event.
func (s *Service) CreateEvent(ctx context.Context, createdBy string, in EventInput) (*CalendarEvent, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	e := &CalendarEvent{
		ID:          ids.New(),
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		ParishID:    strings.TrimSpace(in.ParishID),
		StartsAt:    in.StartsAt.UTC(),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !in.EndsAt.IsZero() {
		e.EndsAt = in.EndsAt.UTC()
	}
	if err := s.store.Events(ctx).Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvents lists upcoming events, optionally scoped to a parish.
func (s *Service) ListEvents(ctx context.Context, parishID string) ([]*CalendarEvent, error) {
	return s.store.Events(ctx).List(ctx, strings.TrimSpace(parishID), s.now().UTC())
}

// UpdateEvent rewrites an event from a full structured input.
func (s *Service) UpdateEvent(ctx context.Context, id string, in EventInput) (*CalendarEvent, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e, err := s.store.Events(ctx).Find(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	e.Title = in.Title
	e.Description = strings.TrimSpace(in.Description)
	e.Location = strings.TrimSpace(in.Location)
	e.ParishID = strings.TrimSpace(in.ParishID)
	e.StartsAt = in.StartsAt.UTC()
	if in.EndsAt.IsZero() {
		e.EndsAt = time.Time{}
	} else {
		e.EndsAt = in.EndsAt.UTC()
	}
	e.UpdatedAt = s.now().UTC()
	if err := s.store.Events(ctx).Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEvent soft-deletes a calendar event.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	return s.store.Events(ctx).SoftDelete(ctx, id, s.now().UTC())
}

// CreateParish stores a parish.
func (s *Service) CreateParish(ctx context.Context, name, city, address string) (*Parish, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTitleLength {
		return nil, fmt.Errorf("%w: name must be 1..%d characters", ErrInvalidInput, maxTitleLength)
	}
	p := &Parish{
		ID:        ids.New(),
		Name:      name,
		City:      strings.TrimSpace(city),
		Address:   strings.TrimSpace(address),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Parishes(ctx).Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListParishes lists active parishes.
func (s *Service) ListParishes(ctx context.Context) ([]*Parish, error) {
	return s.store.Parishes(ctx).List(ctx)
}

// DeleteParish soft-deletes a parish.
func (s *Service) DeleteParish(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: parish id is required", ErrInvalidInput)
	}
	return s.store.Parishes(ctx).SoftDelete(ctx, id, s.now().UTC())
}

// DashboardStats returns the aggregate counts for the admin dashboard.
func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// notify records a notification, swallowing store errors: notifications are
// best-effort side effects of the triggering mutation.
func (s *Service) notify(ctx context.Context, userID, kind, relatedID, message string) {
	n := &Notification{
		ID:        ids.New(),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		RelatedID: relatedID,
		CreatedAt: s.now().UTC(),
	}
	_ = s.store.Notifications(ctx).Create(ctx, n)
}

func displayName(name *string) string {
	if name == nil || strings.TrimSpace(*name) == "" {
		return "Someone"
	}
	return *name
}

func normalizePage(page, limit *int) {
	if *page < 1 {
		*page = 1
	}
	if *limit < 1 || *limit > 100 {
		*limit = 20
	}
}
