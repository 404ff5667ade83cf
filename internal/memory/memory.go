// Package memory keeps each character's private, capped view of a group
// conversation.
package memory

import (
	"context"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
)

// Append adds entry to the (groupID, characterID) list and drops the oldest
// entries beyond limit.
func Append(snap *state.Snapshot, groupID, characterID string, entry models.MemoryEntry, limit int) {
	if limit <= 0 {
		limit = 1
	}
	byChar := snap.Memories[groupID]
	if byChar == nil {
		byChar = make(map[string][]models.MemoryEntry)
		snap.Memories[groupID] = byChar
	}
	list := append(byChar[characterID], entry)
	if over := len(list) - limit; over > 0 {
		list = append([]models.MemoryEntry(nil), list[over:]...)
	}
	byChar[characterID] = list
}

// RecordReply stores a reply from speakerID: as its own assistant turn for
// the speaker and as a user turn labelled with the speaker's name for every
// other member, so nobody mistakes another character's words for its own.
func RecordReply(snap *state.Snapshot, groupID, speakerID, speakerName string, memberIDs []string, text string, limit int) {
	for _, id := range memberIDs {
		if id == speakerID {
			Append(snap, groupID, id, models.MemoryEntry{Role: models.RoleAssistant, Content: text}, limit)
			continue
		}
		Append(snap, groupID, id, models.MemoryEntry{Role: models.RoleUser, Content: speakerName + ": " + text}, limit)
	}
}

// Window returns the last n entries. n <= 0 yields none.
func Window(entries []models.MemoryEntry, n int) []models.MemoryEntry {
	if n <= 0 {
		return nil
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]models.MemoryEntry(nil), entries...)
}

// Store is the persisted facade over the snapshot memory functions.
type Store struct {
	state *state.Store
}

func NewStore(st *state.Store) *Store {
	return &Store{state: st}
}

// Get returns a copy of a character's memory of a group; empty if absent.
func (m *Store) Get(groupID, characterID string) []models.MemoryEntry {
	var out []models.MemoryEntry
	m.state.Read(func(snap *state.Snapshot) {
		out = append([]models.MemoryEntry{}, snap.Memories[groupID][characterID]...)
	})
	return out
}

// Update appends one entry, capped at the characterMemorySize setting.
func (m *Store) Update(ctx context.Context, groupID, characterID string, entry models.MemoryEntry) error {
	return m.state.Update(ctx, func(snap *state.Snapshot) error {
		Append(snap, groupID, characterID, entry, snap.Settings.CharacterMemorySize)
		return nil
	})
}

// Clear drops every character's memory of the group.
func (m *Store) Clear(ctx context.Context, groupID string) error {
	return m.state.Update(ctx, func(snap *state.Snapshot) error {
		delete(snap.Memories, groupID)
		return nil
	})
}
