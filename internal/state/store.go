package state

import (
	"context"
	"fmt"
	"sync"

	"chatmallu/client/internal/models"
	"github.com/google/uuid"
)

// Store owns the current Snapshot. Reads get copies or run under a read
// lock; writes are functional updates applied to a private clone, saved
// through the Repository and published only if saving succeeded.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	repo Repository
}

// Open loads state from repo, seeding defaults on first run.
func Open(ctx context.Context, repo Repository) (*Store, error) {
	snap, found, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{snap: snap, repo: repo}
	if found {
		return s, nil
	}

	seeded := NewSnapshot()
	seeded.Characters = DefaultCharacters()
	if err := repo.Save(ctx, seeded); err != nil {
		return nil, fmt.Errorf("seed state: %w", err)
	}
	s.snap = seeded
	return s, nil
}

// DefaultCharacters are created on first run.
func DefaultCharacters() []models.Character {
	return []models.Character{
		{
			ID:     uuid.NewString(),
			Name:   "Aiden",
			Avatar: "🧑‍💻",
			Policy: "You are Aiden, a friendly and curious software engineer. " +
				"You speak casually, love explaining how things work, and keep replies short.",
		},
		{
			ID:     uuid.NewString(),
			Name:   "Luna",
			Avatar: "🌙",
			Policy: "You are Luna, a thoughtful writer with a dry sense of humour. " +
				"You answer warmly, ask follow-up questions and never break character.",
		},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Read runs fn against the current state without copying. fn must not
// modify or retain anything reachable from the snapshot.
func (s *Store) Read(fn func(snap *Snapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.snap)
}

// Settings returns the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Settings
}

// Update applies fn to a clone of the state, persists the result and makes
// it current. If fn or saving fails the state is left unchanged.
func (s *Store) Update(ctx context.Context, fn func(snap *Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.snap = next
	return nil
}
