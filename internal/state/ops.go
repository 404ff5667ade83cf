package state

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"chatmallu/client/internal/models"
)

// The functions below mutate a *Snapshot handed out by Store.Update, which
// owns a private clone, so callers never see a half-applied change.

func (s *Snapshot) Character(id string) (models.Character, bool) {
	if i := s.characterIndex(id); i >= 0 {
		return s.Characters[i], true
	}
	return models.Character{}, false
}

func (s *Snapshot) Group(id string) (models.Group, bool) {
	if i := s.groupIndex(id); i >= 0 {
		return s.Groups[i], true
	}
	return models.Group{}, false
}

// CharacterName returns the display name for a sender id.
func (s *Snapshot) CharacterName(id string) string {
	if c, ok := s.Character(id); ok {
		return c.Name
	}
	return ""
}

func (s *Snapshot) AddCharacter(c models.Character) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ErrInvalidName
	}
	s.Characters = append(s.Characters, c)
	return nil
}

func (s *Snapshot) UpdateCharacter(id string, req models.UpdateCharacterRequest) (models.Character, error) {
	i := s.characterIndex(id)
	if i < 0 {
		return models.Character{}, ErrCharacterNotFound
	}
	c := s.Characters[i]
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return models.Character{}, ErrInvalidName
		}
		c.Name = name
	}
	if req.Avatar != nil {
		c.Avatar = *req.Avatar
	}
	if req.Policy != nil {
		c.Policy = *req.Policy
	}
	s.Characters[i] = c
	return c, nil
}

// DeleteCharacter removes the character with its transcript, unread counter,
// memories in every group and its membership in every group.
func (s *Snapshot) DeleteCharacter(id string) error {
	i := s.characterIndex(id)
	if i < 0 {
		return ErrCharacterNotFound
	}
	s.Characters = append(s.Characters[:i], s.Characters[i+1:]...)
	delete(s.Messages, id)
	delete(s.Unread, id)
	for gid, byChar := range s.Memories {
		delete(byChar, id)
		if len(byChar) == 0 {
			delete(s.Memories, gid)
		}
	}
	for gi := range s.Groups {
		s.Groups[gi].MemberIDs = removeString(s.Groups[gi].MemberIDs, id)
	}
	return nil
}

func (s *Snapshot) AddGroup(g models.Group) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return ErrInvalidName
	}
	members, err := s.validMembers(g.MemberIDs)
	if err != nil {
		return err
	}
	g.MemberIDs = members
	s.Groups = append(s.Groups, g)
	return nil
}

func (s *Snapshot) UpdateGroup(id string, req models.UpdateGroupRequest) (models.Group, error) {
	i := s.groupIndex(id)
	if i < 0 {
		return models.Group{}, ErrGroupNotFound
	}
	g := s.Groups[i]
	g.MemberIDs = append([]string(nil), g.MemberIDs...)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return models.Group{}, ErrInvalidName
		}
		g.Name = name
	}
	if req.MemberIDs != nil {
		members, err := s.validMembers(*req.MemberIDs)
		if err != nil {
			return models.Group{}, err
		}
		g.MemberIDs = members
	}
	if req.AutoReply != nil {
		g.AutoReply = *req.AutoReply
	}
	if req.AutoParallel != nil {
		g.AutoParallel = *req.AutoParallel
	}
	if req.Avatar != nil {
		g.Avatar = *req.Avatar
	}
	s.Groups[i] = g
	return g, nil
}

// DeleteGroup removes the group with its transcript, memories and unread
// counter.
func (s *Snapshot) DeleteGroup(id string) error {
	i := s.groupIndex(id)
	if i < 0 {
		return ErrGroupNotFound
	}
	s.Groups = append(s.Groups[:i], s.Groups[i+1:]...)
	delete(s.GroupMessages, id)
	delete(s.Memories, id)
	delete(s.Unread, id)
	return nil
}

func (s *Snapshot) AppendMessage(chatID string, m models.Message) {
	s.Messages[chatID] = append(s.Messages[chatID], m)
}

func (s *Snapshot) AppendGroupMessage(groupID string, m models.GroupMessage) {
	s.GroupMessages[groupID] = append(s.GroupMessages[groupID], m)
}

// ClearChat empties a 1:1 transcript.
func (s *Snapshot) ClearChat(chatID string) {
	delete(s.Messages, chatID)
	delete(s.Unread, chatID)
	if i := s.characterIndex(chatID); i >= 0 {
		s.Characters[i].LastMessage = ""
		s.Characters[i].LastMessageAt = nil
	}
}

// ClearGroupHistory empties a group transcript and every member's memory
// of it.
func (s *Snapshot) ClearGroupHistory(groupID string) {
	delete(s.GroupMessages, groupID)
	delete(s.Memories, groupID)
	delete(s.Unread, groupID)
	if i := s.groupIndex(groupID); i >= 0 {
		s.Groups[i].LastMessage = ""
		s.Groups[i].LastMessageAt = nil
	}
}

// TouchChat records the latest message preview on a character or group.
func (s *Snapshot) TouchChat(chatID, text string, at time.Time) {
	at = at.UTC()
	if i := s.characterIndex(chatID); i >= 0 {
		s.Characters[i].LastMessage = text
		s.Characters[i].LastMessageAt = &at
		return
	}
	if i := s.groupIndex(chatID); i >= 0 {
		s.Groups[i].LastMessage = text
		s.Groups[i].LastMessageAt = &at
	}
}

func (s *Snapshot) BumpUnread(chatID string) {
	s.Unread[chatID]++
}

func (s *Snapshot) ClearUnread(chatID string) {
	delete(s.Unread, chatID)
}

// ApplySettings validates and stores new settings.
func (s *Snapshot) ApplySettings(next models.Settings) error {
	if err := ValidateSettings(next); err != nil {
		return err
	}
	s.Settings = next
	return nil
}

func ValidateSettings(st models.Settings) error {
	switch {
	case st.Temperature < 0 || st.Temperature > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidSettings)
	case st.ContextLength <= 0:
		return fmt.Errorf("%w: contextLength must be positive", ErrInvalidSettings)
	case st.MaxTokens <= 0:
		return fmt.Errorf("%w: maxTokens must be positive", ErrInvalidSettings)
	case st.WaitTimePerWord < 0:
		return fmt.Errorf("%w: waitTimePerWord must not be negative", ErrInvalidSettings)
	case st.CharacterMemorySize <= 0:
		return fmt.Errorf("%w: characterMemorySize must be positive", ErrInvalidSettings)
	case st.APIContextSize < 0:
		return fmt.Errorf("%w: apiContextSize must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Sidebar lists characters and groups, most recently active first.
func (s *Snapshot) Sidebar() []models.SidebarEntry {
	entries := make([]models.SidebarEntry, 0, len(s.Characters)+len(s.Groups))
	for _, c := range s.Characters {
		entries = append(entries, models.SidebarEntry{
			ID: c.ID, Kind: models.KindCharacter, Name: c.Name, Avatar: c.Avatar,
			LastMessage: c.LastMessage, LastMessageAt: c.LastMessageAt, Unread: s.Unread[c.ID],
		})
	}
	for _, g := range s.Groups {
		entries = append(entries, models.SidebarEntry{
			ID: g.ID, Kind: models.KindGroup, Name: g.Name, Avatar: g.Avatar,
			LastMessage: g.LastMessage, LastMessageAt: g.LastMessageAt, Unread: s.Unread[g.ID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastMessageAt, entries[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries
}

func (s *Snapshot) characterIndex(id string) int {
	for i := range s.Characters {
		if s.Characters[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) groupIndex(id string) int {
	for i := range s.Groups {
		if s.Groups[i].ID == id {
			return i
		}
	}
	return -1
}

// validMembers checks every id exists and drops duplicates, keeping the
// first occurrence.
func (s *Snapshot) validMembers(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if s.characterIndex(id) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func removeString(in []string, target string) []string {
	out := in[:0]
	for _, v := range in {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
