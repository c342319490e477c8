package community

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parishnet.org/internal/feed"
	"parishnet.org/internal/ids"
)

// Reaction outcomes.
const (
	OutcomeAdded   = "added"
	OutcomeRemoved = "removed"
	OutcomeUpdated = "updated"
)

// ReactionResult describes the state transition a toggle produced.
type ReactionResult struct {
	Outcome     string `json:"outcome"`
	Reaction    string `json:"reaction,omitempty"`
	OldReaction string `json:"old_reaction,omitempty"`
	NewReaction string `json:"new_reaction,omitempty"`
}

// ReactInput identifies one user's reaction to one target.
type ReactInput struct {
	TargetID    string
	UserID      string
	ReactorName string
	Reaction    string
}

func (in *ReactInput) normalize() error {
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Reaction = strings.ToLower(strings.TrimSpace(in.Reaction))
	if in.TargetID == "" || in.UserID == "" {
		return fmt.Errorf("%w: target id and user id are required", ErrInvalidInput)
	}
	return nil
}

// ReactToPrayer toggles the caller's reaction on an active prayer. Sending
// the current reaction removes it; sending a different one replaces it. The
// prayer author is notified only when a reaction is first added and the
// reactor is someone else.
func (s *Service) ReactToPrayer(ctx context.Context, in ReactInput) (*ReactionResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, ok := prayerReactions[in.Reaction]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReaction, in.Reaction)
	}
	prayer, err := s.GetPrayer(ctx, in.TargetID)
	if err != nil {
		return nil, err
	}

	reactions := s.store.PrayerReactions(ctx)
	existing, err := reactions.Find(ctx, prayer.ID, in.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		now := s.now().UTC()
		r := &PrayerReaction{
			ID:        ids.New(),
			PrayerID:  prayer.ID,
			UserID:    in.UserID,
			Reaction:  in.Reaction,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := reactions.Create(ctx, r); err != nil {
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
			// Lost a race with a concurrent first reaction from the same
			// user. Same kind means the winner already produced the row and
			// the event; report added without touching anything. A different
			// kind proceeds down the toggle path against the winner row.
			existing, err = reactions.Find(ctx, prayer.ID, in.UserID)
			if err != nil {
				return nil, err
			}
			if existing.Reaction == in.Reaction {
				return &ReactionResult{Outcome: OutcomeAdded, Reaction: in.Reaction}, nil
			}
			return s.togglePrayerReaction(ctx, prayer, existing, in.Reaction)
		}
		if prayer.UserID != in.UserID {
			s.notify(ctx, prayer.UserID, NotificationPrayerReaction, prayer.ID,
				fmt.Sprintf("%s reacted %s to your prayer", reactorName(in.ReactorName), in.Reaction))
		}
		s.publishPrayer(feed.Event{
			Type:     feed.TypeReactionAdded,
			PrayerID: prayer.ID,
			UserID:   in.UserID,
			Reaction: in.Reaction,
		})
		return &ReactionResult{Outcome: OutcomeAdded, Reaction: in.Reaction}, nil
	case err != nil:
		return nil, err
	}
	return s.togglePrayerReaction(ctx, prayer, existing, in.Reaction)
}

func (s *Service) togglePrayerReaction(ctx context.Context, prayer *Prayer, existing *PrayerReaction, reaction string) (*ReactionResult, error) {
	reactions := s.store.PrayerReactions(ctx)
	if existing.Reaction == reaction {
		if err := reactions.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		s.publishPrayer(feed.Event{
			Type:     feed.TypeReactionRemoved,
			PrayerID: prayer.ID,
			UserID:   existing.UserID,
			Reaction: reaction,
		})
		return &ReactionResult{Outcome: OutcomeRemoved, Reaction: reaction}, nil
	}
	// Capture before Update: stores may hand back live rows, and the update
	// would overwrite the old kind in place.
	old := existing.Reaction
	if err := reactions.Update(ctx, existing.ID, reaction, s.now().UTC()); err != nil {
		return nil, err
	}
	s.publishPrayer(feed.Event{
		Type:        feed.TypeReactionUpdated,
		PrayerID:    prayer.ID,
		UserID:      existing.UserID,
		OldReaction: old,
		NewReaction: reaction,
	})
	return &ReactionResult{Outcome: OutcomeUpdated, OldReaction: old, NewReaction: reaction}, nil
}

// ReactToTestimony toggles the caller's reaction on an active testimony with
// the same state machine as prayer reactions.
func (s *Service) ReactToTestimony(ctx context.Context, in ReactInput) (*ReactionResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, ok := testimonyReactions[in.Reaction]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReaction, in.Reaction)
	}
	testimony, err := s.GetTestimony(ctx, in.TargetID)
	if err != nil {
		return nil, err
	}

	reactions := s.store.TestimonyReactions(ctx)
	existing, err := reactions.Find(ctx, testimony.ID, in.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		now := s.now().UTC()
		r := &TestimonyReaction{
			ID:          ids.New(),
			TestimonyID: testimony.ID,
			UserID:      in.UserID,
			Reaction:    in.Reaction,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := reactions.Create(ctx, r); err != nil {
			if !errors.Is(err, ErrConflict) {
				return nil, err
			}
			existing, err = reactions.Find(ctx, testimony.ID, in.UserID)
			if err != nil {
				return nil, err
			}
			if existing.Reaction == in.Reaction {
				return &ReactionResult{Outcome: OutcomeAdded, Reaction: in.Reaction}, nil
			}
			return s.toggleTestimonyReaction(ctx, testimony, existing, in.Reaction)
		}
		if testimony.UserID != in.UserID {
			s.notify(ctx, testimony.UserID, NotificationTestimonyReaction, testimony.ID,
				fmt.Sprintf("%s reacted %s to your testimony", reactorName(in.ReactorName), in.Reaction))
		}
		s.publishTestimony(feed.Event{
			Type:        feed.TypeTestimonyReactionAdded,
			TestimonyID: testimony.ID,
			UserID:      in.UserID,
			Reaction:    in.Reaction,
		})
		return &ReactionResult{Outcome: OutcomeAdded, Reaction: in.Reaction}, nil
	case err != nil:
		return nil, err
	}
	return s.toggleTestimonyReaction(ctx, testimony, existing, in.Reaction)
}

func (s *Service) toggleTestimonyReaction(ctx context.Context, testimony *Testimony, existing *TestimonyReaction, reaction string) (*ReactionResult, error) {
	reactions := s.store.TestimonyReactions(ctx)
	if existing.Reaction == reaction {
		if err := reactions.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		s.publishTestimony(feed.Event{
			Type:        feed.TypeTestimonyReactionRemoved,
			TestimonyID: testimony.ID,
			UserID:      existing.UserID,
			Reaction:    reaction,
		})
		return &ReactionResult{Outcome: OutcomeRemoved, Reaction: reaction}, nil
	}
	old := existing.Reaction
	if err := reactions.Update(ctx, existing.ID, reaction, s.now().UTC()); err != nil {
		return nil, err
	}
	s.publishTestimony(feed.Event{
		Type:        feed.TypeTestimonyReactionUpdated,
		TestimonyID: testimony.ID,
		UserID:      existing.UserID,
		OldReaction: old,
		NewReaction: reaction,
	})
	return &ReactionResult{Outcome: OutcomeUpdated, OldReaction: old, NewReaction: reaction}, nil
}

// PrayerReactionCounts tallies current reactions on an active prayer.
func (s *Service) PrayerReactionCounts(ctx context.Context, prayerID string) (map[string]int, error) {
	p, err := s.GetPrayer(ctx, prayerID)
	if err != nil {
		return nil, err
	}
	return s.store.PrayerReactions(ctx).CountByPrayer(ctx, p.ID)
}

// TestimonyReactionCounts tallies current reactions on an active testimony.
func (s *Service) TestimonyReactionCounts(ctx context.Context, testimonyID string) (map[string]int, error) {
	t, err := s.GetTestimony(ctx, testimonyID)
	if err != nil {
		return nil, err
	}
	return s.store.TestimonyReactions(ctx).CountByTestimony(ctx, t.ID)
}

func reactorName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Someone"
	}
	return name
}
