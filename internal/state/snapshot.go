// Package state holds the client's application state: an immutable-by-
// convention Snapshot, pure operations over it, and a Store that mirrors
// every change to durable keyed storage.
package state

import (
	"time"

	"chatmallu/client/internal/models"
)

// Snapshot is the complete persisted state of the client.
type Snapshot struct {
	Characters    []models.Character
	Groups        []models.Group
	Messages      map[string][]models.Message      // chat (character) id
	GroupMessages map[string][]models.GroupMessage // group id
	Memories      map[string]map[string][]models.MemoryEntry
	Settings      models.Settings
	Unread        map[string]int
}

// NewSnapshot returns an empty snapshot with default settings.
func NewSnapshot() Snapshot {
	return Snapshot{
		Characters:    []models.Character{},
		Groups:        []models.Group{},
		Messages:      make(map[string][]models.Message),
		GroupMessages: make(map[string][]models.GroupMessage),
		Memories:      make(map[string]map[string][]models.MemoryEntry),
		Settings:      models.DefaultSettings(),
		Unread:        make(map[string]int),
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Characters:    make([]models.Character, len(s.Characters)),
		Groups:        make([]models.Group, len(s.Groups)),
		Messages:      make(map[string][]models.Message, len(s.Messages)),
		GroupMessages: make(map[string][]models.GroupMessage, len(s.GroupMessages)),
		Memories:      make(map[string]map[string][]models.MemoryEntry, len(s.Memories)),
		Settings:      s.Settings,
		Unread:        make(map[string]int, len(s.Unread)),
	}

	for i, c := range s.Characters {
		c.LastMessageAt = cloneTime(c.LastMessageAt)
		out.Characters[i] = c
	}
	for i, g := range s.Groups {
		g.MemberIDs = append([]string(nil), g.MemberIDs...)
		g.LastMessageAt = cloneTime(g.LastMessageAt)
		out.Groups[i] = g
	}
	for k, v := range s.Messages {
		out.Messages[k] = append([]models.Message(nil), v...)
	}
	for k, v := range s.GroupMessages {
		out.GroupMessages[k] = append([]models.GroupMessage(nil), v...)
	}
	for gid, byChar := range s.Memories {
		m := make(map[string][]models.MemoryEntry, len(byChar))
		for cid, entries := range byChar {
			m[cid] = append([]models.MemoryEntry(nil), entries...)
		}
		out.Memories[gid] = m
	}
	for k, v := range s.Unread {
		out.Unread[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
