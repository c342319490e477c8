package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"parishnet.org/internal/audit"
	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
	"parishnet.org/internal/feed"
)

// --- in-memory auth store ---

type fakeAuthData struct {
	mu          sync.Mutex
	users       map[string]*auth.User
	roles       map[string]*auth.Role
	assignments []auth.RoleAssignment
	resets      map[string]*auth.PasswordResetToken
	otps        map[string]*auth.EmailOTP
}

type fakeAuthStore struct{ d *fakeAuthData }
type fakeUsers fakeAuthStore
type fakeRoles fakeAuthStore
type fakeTokens fakeAuthStore

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{d: &fakeAuthData{
		users:  make(map[string]*auth.User),
		roles:  make(map[string]*auth.Role),
		resets: make(map[string]*auth.PasswordResetToken),
		otps:   make(map[string]*auth.EmailOTP),
	}}
}

func (s *fakeAuthStore) Users(context.Context) auth.UserStore   { return (*fakeUsers)(s) }
func (s *fakeAuthStore) Roles(context.Context) auth.RoleStore   { return (*fakeRoles)(s) }
func (s *fakeAuthStore) Tokens(context.Context) auth.TokenStore { return (*fakeTokens)(s) }

func (s *fakeUsers) Create(_ context.Context, u *auth.User) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.users {
		if existing.Email == u.Email && !existing.IsDeleted {
			return auth.ErrConflict
		}
	}
	cp := *u
	s.d.users[u.ID] = &cp
	return nil
}

func (s *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok || u.IsDeleted {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, u := range s.d.users {
		if u.Email == email && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeUsers) List(_ context.Context, f auth.UserFilter) ([]*auth.User, int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*auth.User
	for _, u := range s.d.users {
		if u.IsDeleted && !f.IncludeDeleted {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *fakeUsers) Update(_ context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok || u.IsDeleted {
		return nil, auth.ErrNotFound
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
	cp := *u
	return &cp, nil
}

func (s *fakeUsers) SoftDelete(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok || u.IsDeleted {
		return auth.ErrNotFound
	}
	u.IsDeleted = true
	return nil
}

func (s *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok || u.IsDeleted {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *fakeUsers) MarkVerified(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok || u.IsDeleted {
		return auth.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (s *fakeRoles) Create(_ context.Context, role *auth.Role) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *role
	s.d.roles[role.ID] = &cp
	return nil
}

func (s *fakeRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	role, ok := s.d.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *fakeRoles) List(_ context.Context) ([]*auth.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*auth.Role
	for _, role := range s.d.roles {
		cp := *role
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeRoles) Update(_ context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	role, ok := s.d.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	cp := *role
	return &cp, nil
}

func (s *fakeRoles) Delete(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.d.roles, id)
	kept := s.d.assignments[:0]
	for _, a := range s.d.assignments {
		if a.RoleID != id {
			kept = append(kept, a)
		}
	}
	s.d.assignments = kept
	return nil
}

func (s *fakeRoles) Assign(_ context.Context, a auth.RoleAssignment) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID {
			return auth.ErrConflict
		}
	}
	s.d.assignments = append(s.d.assignments, a)
	return nil
}

func (s *fakeRoles) Unassign(_ context.Context, userID, roleID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i, a := range s.d.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			s.d.assignments = append(s.d.assignments[:i], s.d.assignments[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *fakeRoles) Assignments(_ context.Context, userID string) ([]auth.RoleAssignment, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []auth.RoleAssignment
	for _, a := range s.d.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeTokens) CreateReset(_ context.Context, t *auth.PasswordResetToken) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *t
	s.d.resets[t.ID] = &cp
	return nil
}

func (s *fakeTokens) FindReset(_ context.Context, token string) (*auth.PasswordResetToken, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, t := range s.d.resets {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeTokens) ConsumeReset(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.resets[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.d.resets, id)
	return nil
}

func (s *fakeTokens) CreateOTP(_ context.Context, t *auth.EmailOTP) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *t
	s.d.otps[t.ID] = &cp
	return nil
}

func (s *fakeTokens) FindOTP(_ context.Context, userID, code string) (*auth.EmailOTP, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, t := range s.d.otps {
		if t.UserID == userID && t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeTokens) ConsumeOTP(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.otps[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.d.otps, id)
	return nil
}

func (s *fakeTokens) PurgeExpired(context.Context, time.Time) (int64, error) { return 0, nil }

// --- in-memory community store ---

type fakeCommunityData struct {
	mu            sync.Mutex
	parishes      map[string]*community.Parish
	prayers       map[string]*community.Prayer
	responses     map[string]*community.PrayerResponse
	reactions     map[string]*community.PrayerReaction
	testimonies   map[string]*community.Testimony
	tReactions    map[string]*community.TestimonyReaction
	notifications map[string]*community.Notification
	announcements map[string]*community.Announcement
	events        map[string]*community.CalendarEvent
}

type fakeCommunityStore struct{ d *fakeCommunityData }
type fakeParishes fakeCommunityStore
type fakePrayers fakeCommunityStore
type fakeResponses fakeCommunityStore
type fakeReactions fakeCommunityStore
type fakeTestimonies fakeCommunityStore
type fakeTReactions fakeCommunityStore
type fakeNotifications fakeCommunityStore
type fakeAnnouncements fakeCommunityStore
type fakeEvents fakeCommunityStore

func newFakeCommunityStore() *fakeCommunityStore {
	return &fakeCommunityStore{d: &fakeCommunityData{
		parishes:      make(map[string]*community.Parish),
		prayers:       make(map[string]*community.Prayer),
		responses:     make(map[string]*community.PrayerResponse),
		reactions:     make(map[string]*community.PrayerReaction),
		testimonies:   make(map[string]*community.Testimony),
		tReactions:    make(map[string]*community.TestimonyReaction),
		notifications: make(map[string]*community.Notification),
		announcements: make(map[string]*community.Announcement),
		events:        make(map[string]*community.CalendarEvent),
	}}
}

func (s *fakeCommunityStore) Parishes(context.Context) community.ParishStore {
	return (*fakeParishes)(s)
}
func (s *fakeCommunityStore) Prayers(context.Context) community.PrayerStore {
	return (*fakePrayers)(s)
}
func (s *fakeCommunityStore) PrayerResponses(context.Context) community.PrayerResponseStore {
	return (*fakeResponses)(s)
}
func (s *fakeCommunityStore) PrayerReactions(context.Context) community.PrayerReactionStore {
	return (*fakeReactions)(s)
}
func (s *fakeCommunityStore) Testimonies(context.Context) community.TestimonyStore {
	return (*fakeTestimonies)(s)
}
func (s *fakeCommunityStore) TestimonyReactions(context.Context) community.TestimonyReactionStore {
	return (*fakeTReactions)(s)
}
func (s *fakeCommunityStore) Notifications(context.Context) community.NotificationStore {
	return (*fakeNotifications)(s)
}
func (s *fakeCommunityStore) Announcements(context.Context) community.AnnouncementStore {
	return (*fakeAnnouncements)(s)
}
func (s *fakeCommunityStore) Events(context.Context) community.EventStore {
	return (*fakeEvents)(s)
}

func (s *fakeCommunityStore) Stats(context.Context) (*community.Stats, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	stats := &community.Stats{}
	for _, p := range s.d.prayers {
		if !p.IsDeleted {
			stats.ActivePrayers++
		}
	}
	for _, t := range s.d.testimonies {
		if !t.IsDeleted {
			stats.ActiveTestimonies++
		}
	}
	stats.Parishes = len(s.d.parishes)
	return stats, nil
}

func (s *fakeCommunityStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeParishes) Create(_ context.Context, p *community.Parish) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *p
	s.d.parishes[p.ID] = &cp
	return nil
}

func (s *fakeParishes) Find(_ context.Context, id string) (*community.Parish, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.parishes[id]
	if !ok || p.IsDeleted {
		return nil, community.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeParishes) List(context.Context) ([]*community.Parish, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.Parish
	for _, p := range s.d.parishes {
		if !p.IsDeleted {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeParishes) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.parishes[id]
	if !ok || p.IsDeleted {
		return community.ErrNotFound
	}
	p.IsDeleted = true
	p.DeletedAt = &at
	return nil
}

func (s *fakePrayers) Create(_ context.Context, p *community.Prayer) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *p
	s.d.prayers[p.ID] = &cp
	return nil
}

func (s *fakePrayers) Find(_ context.Context, id string, includeDeleted bool) (*community.Prayer, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.prayers[id]
	if !ok || (p.IsDeleted && !includeDeleted) {
		return nil, community.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePrayers) List(_ context.Context, f community.PrayerFilter) ([]*community.Prayer, int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.Prayer
	for _, p := range s.d.prayers {
		if p.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *fakePrayers) SetApproved(_ context.Context, id string, approved bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.prayers[id]
	if !ok || p.IsDeleted {
		return community.ErrNotFound
	}
	p.IsApproved = approved
	return nil
}

func (s *fakePrayers) SoftDeleteCascade(_ context.Context, id string, at time.Time) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.prayers[id]
	if !ok || p.IsDeleted {
		return 0, community.ErrNotFound
	}
	p.IsDeleted = true
	p.DeletedAt = &at
	affected := int64(1)
	for _, r := range s.d.responses {
		if r.PrayerID == id && !r.IsDeleted {
			r.IsDeleted = true
			affected++
		}
	}
	for rid, r := range s.d.reactions {
		if r.PrayerID == id {
			delete(s.d.reactions, rid)
			affected++
		}
	}
	return affected, nil
}

func (s *fakeResponses) Create(_ context.Context, r *community.PrayerResponse) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *r
	s.d.responses[r.ID] = &cp
	return nil
}

func (s *fakeResponses) Find(_ context.Context, id string) (*community.PrayerResponse, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.responses[id]
	if !ok || r.IsDeleted {
		return nil, community.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeResponses) ListByPrayer(_ context.Context, prayerID string) ([]*community.PrayerResponse, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.PrayerResponse
	for _, r := range s.d.responses {
		if r.PrayerID == prayerID && !r.IsDeleted {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeResponses) UpdateContent(_ context.Context, id, content string) (*community.PrayerResponse, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.responses[id]
	if !ok || r.IsDeleted {
		return nil, community.ErrNotFound
	}
	r.Content = content
	cp := *r
	return &cp, nil
}

func (s *fakeReactions) Create(_ context.Context, r *community.PrayerReaction) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.reactions {
		if existing.PrayerID == r.PrayerID && existing.UserID == r.UserID {
			return community.ErrConflict
		}
	}
	cp := *r
	s.d.reactions[r.ID] = &cp
	return nil
}

func (s *fakeReactions) Find(_ context.Context, prayerID, userID string) (*community.PrayerReaction, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, r := range s.d.reactions {
		if r.PrayerID == prayerID && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, community.ErrNotFound
}

func (s *fakeReactions) Update(_ context.Context, id, reaction string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.reactions[id]
	if !ok {
		return community.ErrNotFound
	}
	r.Reaction = reaction
	r.UpdatedAt = at
	return nil
}

func (s *fakeReactions) Delete(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.reactions[id]; !ok {
		return community.ErrNotFound
	}
	delete(s.d.reactions, id)
	return nil
}

func (s *fakeReactions) CountByPrayer(_ context.Context, prayerID string) (map[string]int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range s.d.reactions {
		if r.PrayerID == prayerID {
			counts[r.Reaction]++
		}
	}
	return counts, nil
}

func (s *fakeTestimonies) Create(_ context.Context, t *community.Testimony) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *t
	s.d.testimonies[t.ID] = &cp
	return nil
}

func (s *fakeTestimonies) Find(_ context.Context, id string, includeDeleted bool) (*community.Testimony, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	t, ok := s.d.testimonies[id]
	if !ok || (t.IsDeleted && !includeDeleted) {
		return nil, community.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTestimonies) List(_ context.Context, f community.TestimonyFilter) ([]*community.Testimony, int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.Testimony
	for _, t := range s.d.testimonies {
		if t.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.UserID != "" && t.UserID != f.UserID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *fakeTestimonies) SoftDeleteCascade(_ context.Context, id string, at time.Time) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	t, ok := s.d.testimonies[id]
	if !ok || t.IsDeleted {
		return 0, community.ErrNotFound
	}
	t.IsDeleted = true
	t.DeletedAt = &at
	affected := int64(1)
	for rid, r := range s.d.tReactions {
		if r.TestimonyID == id {
			delete(s.d.tReactions, rid)
			affected++
		}
	}
	return affected, nil
}

func (s *fakeTReactions) Create(_ context.Context, r *community.TestimonyReaction) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.tReactions {
		if existing.TestimonyID == r.TestimonyID && existing.UserID == r.UserID {
			return community.ErrConflict
		}
	}
	cp := *r
	s.d.tReactions[r.ID] = &cp
	return nil
}

func (s *fakeTReactions) Find(_ context.Context, testimonyID, userID string) (*community.TestimonyReaction, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, r := range s.d.tReactions {
		if r.TestimonyID == testimonyID && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, community.ErrNotFound
}

func (s *fakeTReactions) Update(_ context.Context, id, reaction string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.tReactions[id]
	if !ok {
		return community.ErrNotFound
	}
	r.Reaction = reaction
	r.UpdatedAt = at
	return nil
}

func (s *fakeTReactions) Delete(_ context.Context, id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.tReactions[id]; !ok {
		return community.ErrNotFound
	}
	delete(s.d.tReactions, id)
	return nil
}

func (s *fakeTReactions) CountByTestimony(_ context.Context, testimonyID string) (map[string]int, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range s.d.tReactions {
		if r.TestimonyID == testimonyID {
			counts[r.Reaction]++
		}
	}
	return counts, nil
}

func (s *fakeNotifications) Create(_ context.Context, n *community.Notification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *n
	s.d.notifications[n.ID] = &cp
	return nil
}

func (s *fakeNotifications) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]*community.Notification, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.Notification
	for _, n := range s.d.notifications {
		if n.UserID != userID || n.IsDeleted {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeNotifications) MarkRead(_ context.Context, id, userID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	n, ok := s.d.notifications[id]
	if !ok || n.UserID != userID || n.IsDeleted {
		return community.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (s *fakeAnnouncements) Create(_ context.Context, a *community.Announcement) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *a
	s.d.announcements[a.ID] = &cp
	return nil
}

func (s *fakeAnnouncements) Find(_ context.Context, id string) (*community.Announcement, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	a, ok := s.d.announcements[id]
	if !ok || a.IsDeleted {
		return nil, community.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAnnouncements) List(_ context.Context, parishID string) ([]*community.Announcement, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.Announcement
	for _, a := range s.d.announcements {
		if a.IsDeleted {
			continue
		}
		if parishID != "" && a.ParishID != parishID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeAnnouncements) Update(_ context.Context, a *community.Announcement) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.announcements[a.ID]; !ok {
		return community.ErrNotFound
	}
	cp := *a
	s.d.announcements[a.ID] = &cp
	return nil
}

func (s *fakeAnnouncements) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	a, ok := s.d.announcements[id]
	if !ok || a.IsDeleted {
		return community.ErrNotFound
	}
	a.IsDeleted = true
	a.DeletedAt = &at
	return nil
}

func (s *fakeEvents) Create(_ context.Context, e *community.CalendarEvent) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *e
	s.d.events[e.ID] = &cp
	return nil
}

func (s *fakeEvents) Find(_ context.Context, id string) (*community.CalendarEvent, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	e, ok := s.d.events[id]
	if !ok || e.IsDeleted {
		return nil, community.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeEvents) List(_ context.Context, parishID string, from time.Time) ([]*community.CalendarEvent, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []*community.CalendarEvent
	for _, e := range s.d.events {
		if e.IsDeleted || e.StartsAt.Before(from) {
			continue
		}
		if parishID != "" && e.ParishID != parishID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeEvents) Update(_ context.Context, e *community.CalendarEvent) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.events[e.ID]; !ok {
		return community.ErrNotFound
	}
	cp := *e
	s.d.events[e.ID] = &cp
	return nil
}

func (s *fakeEvents) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	e, ok := s.d.events[id]
	if !ok || e.IsDeleted {
		return community.ErrNotFound
	}
	e.IsDeleted = true
	e.DeletedAt = &at
	return nil
}

// --- in-memory audit store ---

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (s *fakeAuditStore) Append(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, f audit.Filter) ([]*audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if f.Action != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(f.Action)) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *fakeAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- test harness ---

type testEnv struct {
	api       *API
	handler   http.Handler
	authData  *fakeAuthStore
	community *fakeCommunityStore
	auditRec  *fakeAuditStore
	prayerBus *feed.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("PARISHNET_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	authStore := newFakeAuthStore()
	communityStore := newFakeCommunityStore()
	auditStore := &fakeAuditStore{}

	authSvc, err := auth.NewService(authStore)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	auditLog, err := audit.NewLogger(auditStore)
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	prayerBus := feed.New("prayers", time.Minute)
	testimonyBus := feed.New("testimonies", time.Minute)
	t.Cleanup(prayerBus.Close)
	t.Cleanup(testimonyBus.Close)

	communitySvc, err := community.NewService(communityStore, prayerBus, testimonyBus)
	if err != nil {
		t.Fatalf("community.NewService: %v", err)
	}

	api := New(authSvc, auditLog, communitySvc, prayerBus, testimonyBus, ReadyProbe{}, "test")
	return &testEnv{
		api:       api,
		handler:   api.Handler(),
		authData:  authStore,
		community: communityStore,
		auditRec:  auditStore,
		prayerBus: prayerBus,
	}
}

func (env *testEnv) seedUser(t *testing.T, id, email string, perms []string) string {
	t.Helper()
	hash, err := auth.HashPassword("parish-pass-1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	err = env.authData.Users(context.Background()).Create(context.Background(), &auth.User{
		ID: id, FullName: "User " + id, Email: email, PasswordHash: hash,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if len(perms) > 0 {
		role := &auth.Role{ID: "role-" + id, Name: "Role " + id, Permissions: perms, CreatedAt: now, UpdatedAt: now}
		if err := env.authData.Roles(context.Background()).Create(context.Background(), role); err != nil {
			t.Fatalf("seed role: %v", err)
		}
		err = env.authData.Roles(context.Background()).Assign(context.Background(), auth.RoleAssignment{
			UserID: id, RoleID: role.ID, AssignedAt: now,
		})
		if err != nil {
			t.Fatalf("seed assignment: %v", err)
		}
	}
	token, err := auth.GenerateToken(id, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// --- tests ---

func TestLoginIssuesUsableToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "anna@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "anna@example.org", "password": "parish-pass-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}

	rec = env.do(t, http.MethodGet, "/v1/prayers", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated list status = %d", rec.Code)
	}
}

func TestLoginWrongPasswordIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "anna@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "anna@example.org", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/prayers", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestCreatePrayerAndToggleReaction(t *testing.T) {
	env := newTestEnv(t)
	author := env.seedUser(t, "author", "author@example.org", nil)
	reactor := env.seedUser(t, "reactor", "reactor@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/prayers", author, map[string]any{
		"title": "Family",
		"content": "please pray for my family",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var prayer community.Prayer
	decodeBody(t, rec, &prayer)

	rec = env.do(t, http.MethodPost, "/v1/prayers/"+prayer.ID+"/react", reactor, map[string]string{
		"reaction": "prayed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("react status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result community.ReactionResult
	decodeBody(t, rec, &result)
	if result.Outcome != community.OutcomeAdded {
		t.Fatalf("outcome = %q, want added", result.Outcome)
	}

	rec = env.do(t, http.MethodPost, "/v1/prayers/"+prayer.ID+"/react", reactor, map[string]string{
		"reaction": "prayed",
	})
	decodeBody(t, rec, &result)
	if result.Outcome != community.OutcomeRemoved {
		t.Fatalf("second react outcome = %q, want removed", result.Outcome)
	}

	rec = env.do(t, http.MethodPost, "/v1/prayers/"+prayer.ID+"/react", reactor, map[string]string{
		"reaction": "praise",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid reaction status = %d, want 400", rec.Code)
	}
}

func TestAdminRouteRequiresAdminAccess(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedUser(t, "member", "member@example.org", nil)

	rec := env.do(t, http.MethodGet, "/v1/admin/dashboard", member, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestReadOnlyAdminMutationBlockedBeforeAnyEffect(t *testing.T) {
	env := newTestEnv(t)
	ro := env.seedUser(t, "ro", "ro@example.org", []string{
		auth.PermAdminAccess, auth.PermAdminReadOnly, auth.PermManagePrayers,
	})
	author := env.seedUser(t, "author", "author@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/prayers", author, map[string]any{
		"title": "Strength",
		"content": "keep me standing",
	})
	var prayer community.Prayer
	decodeBody(t, rec, &prayer)

	rec = env.do(t, http.MethodDelete, "/v1/admin/prayers/"+prayer.ID, ro, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &resp)
	if resp.Code != "read_only_forbidden" {
		t.Fatalf("code = %q, want read_only_forbidden", resp.Code)
	}

	if env.auditRec.count() != 0 {
		t.Fatalf("audit entries = %d, want 0", env.auditRec.count())
	}
	rec = env.do(t, http.MethodGet, "/v1/prayers/"+prayer.ID, author, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prayer should be untouched, status = %d", rec.Code)
	}
}

func TestReadOnlyAdminCanStillRead(t *testing.T) {
	env := newTestEnv(t)
	ro := env.seedUser(t, "ro", "ro@example.org", []string{
		auth.PermAdminAccess, auth.PermAdminReadOnly, auth.PermManagePrayers,
	})

	rec := env.do(t, http.MethodGet, "/v1/admin/dashboard", ro, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, want 200", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/admin/prayers", ro, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin prayers status = %d, want 200", rec.Code)
	}
}

func TestPresetRoleCreation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", "admin@example.org", []string{
		auth.PermAdminAccess, auth.PermManageRoles,
	})

	rec := env.do(t, http.MethodPost, "/v1/admin/roles", admin, map[string]string{
		"preset": "moderator",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var role auth.Role
	decodeBody(t, rec, &role)
	if role.Name != "Moderator" {
		t.Fatalf("name = %q, want Moderator", role.Name)
	}
	want := map[string]bool{
		auth.PermAdminAccess:           true,
		auth.PermAdminReadOnly:         true,
		auth.PermManagePrayers:         true,
		auth.PermManagePrayerResponses: true,
		auth.PermManageTestimonials:    true,
	}
	if len(role.Permissions) != len(want) {
		t.Fatalf("permissions = %v", role.Permissions)
	}
	for _, p := range role.Permissions {
		if !want[p] {
			t.Fatalf("unexpected permission %q", p)
		}
	}

	if env.auditRec.count() != 1 {
		t.Fatalf("audit entries = %d, want 1", env.auditRec.count())
	}
}

func TestUnknownPresetRejected(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", "admin@example.org", []string{
		auth.PermAdminAccess, auth.PermManageRoles,
	})

	rec := env.do(t, http.MethodPost, "/v1/admin/roles", admin, map[string]string{
		"preset": "emperor",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdminMutationFixedWindowLimit(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", "admin@example.org", []string{
		auth.PermAdminAccess, auth.PermManageRoles,
	})

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/v1/admin/roles", admin, map[string]any{
			"name":        fmt.Sprintf("Greeter %d", i),
			"permissions": []string{auth.PermManagePrayers},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("mutation %d status = %d, body %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodPost, "/v1/admin/roles", admin, map[string]any{
		"name":        "One Too Many",
		"permissions": []string{auth.PermManagePrayers},
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth mutation status = %d, want 429", rec.Code)
	}
}

func TestAdminActivitiesListsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", "admin@example.org", []string{
		auth.PermAdminAccess, auth.PermManageRoles, auth.PermViewAuditLogs,
	})

	rec := env.do(t, http.MethodPost, "/v1/admin/roles", admin, map[string]string{
		"preset": "admin",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("role create status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/admin/activities?action=role", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activities status = %d", rec.Code)
	}
	var resp struct {
		Activities []*audit.Entry `json:"activities"`
		Total      int            `json:"total"`
	}
	decodeBody(t, rec, &resp)
	if resp.Total != 1 || len(resp.Activities) != 1 {
		t.Fatalf("total = %d len = %d, want 1/1", resp.Total, len(resp.Activities))
	}
	if resp.Activities[0].Action != "ROLE_CREATED" {
		t.Fatalf("action = %q", resp.Activities[0].Action)
	}
}

func TestSoftDeletedPrayerHiddenButExported(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", "admin@example.org", []string{
		auth.PermAdminAccess, auth.PermManagePrayers, auth.PermExportData,
	})
	author := env.seedUser(t, "author", "author@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/prayers", author, map[string]any{
		"title": "Harvest",
		"content": "for the harvest",
	})
	var prayer community.Prayer
	decodeBody(t, rec, &prayer)

	rec = env.do(t, http.MethodDelete, "/v1/admin/prayers/"+prayer.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/prayers/"+prayer.ID, author, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted prayer status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/admin/export/prayers", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), prayer.ID) {
		t.Fatal("export should include the soft-deleted prayer")
	}
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u1", "anna@example.org", nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/prayers/stream?token="+token, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.handler.ServeHTTP(rec, req)
	}()

	// Give the subscriber time to attach, then publish and disconnect.
	time.Sleep(50 * time.Millisecond)
	env.prayerBus.Publish(feed.Event{Type: feed.TypePrayerCreated, PrayerID: "p-1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, ": stream started") {
		t.Fatalf("missing stream preamble: %q", body)
	}
	if !strings.Contains(body, `"prayer_id":"p-1"`) {
		t.Fatalf("missing published event: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestStreamRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/prayers/stream", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestNotificationReadScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	author := env.seedUser(t, "author", "author@example.org", nil)
	reactor := env.seedUser(t, "reactor", "reactor@example.org", nil)

	rec := env.do(t, http.MethodPost, "/v1/prayers", author, map[string]any{
		"title": "Travel",
		"content": "travel mercies",
	})
	var prayer community.Prayer
	decodeBody(t, rec, &prayer)

	rec = env.do(t, http.MethodPost, "/v1/prayers/"+prayer.ID+"/react", reactor, map[string]string{
		"reaction": "amen",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("react status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/notifications", author, nil)
	var listResp struct {
		Notifications []*community.Notification `json:"notifications"`
	}
	decodeBody(t, rec, &listResp)
	if len(listResp.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(listResp.Notifications))
	}
	nid := listResp.Notifications[0].ID

	// The reactor cannot mark the author's notification.
	rec = env.do(t, http.MethodPost, "/v1/notifications/"+nid+"/read", reactor, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign mark-read status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/notifications/"+nid+"/read", author, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own mark-read status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowedCarriesAllowHeader(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u1", "anna@example.org", nil)

	rec := env.do(t, http.MethodDelete, "/v1/prayers", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Fatalf("Allow header = %q", allow)
	}
}
