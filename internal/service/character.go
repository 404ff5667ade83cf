package service

import (
	"context"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"

	"github.com/google/uuid"
)

// CharacterService manages the character roster.
type CharacterService struct {
	rt *Runtime
}

// NewCharacterService returns a CharacterService backed by rt's store.
func NewCharacterService(rt *Runtime) *CharacterService {
	return &CharacterService{rt: rt}
}

// List returns every character in roster order.
func (s *CharacterService) List() []models.Character {
	return s.rt.store.Snapshot().Characters
}

// Get returns the character with id or state.ErrCharacterNotFound.
func (s *CharacterService) Get(id string) (models.Character, error) {
	var (
		c  models.Character
		ok bool
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		c, ok = snap.Character(id)
	})
	if !ok {
		return models.Character{}, state.ErrCharacterNotFound
	}
	return c, nil
}

// FindByName resolves a character by id or case-insensitive name.
func (s *CharacterService) FindByName(ref string) (models.Character, error) {
	for _, c := range s.List() {
		if c.ID == ref || equalFold(c.Name, ref) {
			return c, nil
		}
	}
	return models.Character{}, state.ErrCharacterNotFound
}

// Create adds a character under a fresh id.
func (s *CharacterService) Create(ctx context.Context, req models.CreateCharacterRequest) (models.Character, error) {
	c := models.Character{
		ID:     uuid.NewString(),
		Name:   req.Name,
		Avatar: req.Avatar,
		Policy: req.Policy,
	}
	var created models.Character
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if err := snap.AddCharacter(c); err != nil {
			return err
		}
		created, _ = snap.Character(c.ID)
		return nil
	})
	return created, err
}

// Update applies the non-nil fields of req.
func (s *CharacterService) Update(ctx context.Context, id string, req models.UpdateCharacterRequest) (models.Character, error) {
	var updated models.Character
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		var err error
		updated, err = snap.UpdateCharacter(id, req)
		return err
	})
	return updated, err
}

// Delete removes the character, its chat, and its place in every group.
func (s *CharacterService) Delete(ctx context.Context, id string) error {
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		return snap.DeleteCharacter(id)
	})
	if err != nil {
		return err
	}
	s.rt.presence.Forget(id)
	s.rt.events.Publish(ws.EventDeleted, DeletedEvent{Kind: models.KindCharacter, ID: id})
	return nil
}
