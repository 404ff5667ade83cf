package service

import (
	"sort"
	"sync"
)

// Presence is the in-process view state that is never persisted: which chat
// the user has open, who is typing where, and the latest reply suggestions.
type Presence struct {
	mu          sync.RWMutex
	active      string
	typing      map[string]map[string]bool
	suggestions map[string][]string
}

func NewPresence() *Presence {
	return &Presence{
		typing:      make(map[string]map[string]bool),
		suggestions: make(map[string][]string),
	}
}

func (p *Presence) SetActive(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = chatID
}

func (p *Presence) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// IsActive reports whether chatID is the chat the user has open.
func (p *Presence) IsActive(chatID string) bool {
	return chatID != "" && p.Active() == chatID
}

func (p *Presence) SetTyping(chatID, speakerID string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	speakers := p.typing[chatID]
	if on {
		if speakers == nil {
			speakers = make(map[string]bool)
			p.typing[chatID] = speakers
		}
		speakers[speakerID] = true
		return
	}
	delete(speakers, speakerID)
	if len(speakers) == 0 {
		delete(p.typing, chatID)
	}
}

// Typing lists the speakers currently typing in chatID.
func (p *Presence) Typing(chatID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.typing[chatID]))
	for id := range p.typing[chatID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Presence) SetSuggestions(chatID string, suggestions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(suggestions) == 0 {
		delete(p.suggestions, chatID)
		return
	}
	p.suggestions[chatID] = append([]string(nil), suggestions...)
}

func (p *Presence) Suggestions(chatID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.suggestions[chatID]...)
}

// Forget drops all view state of a deleted chat.
func (p *Presence) Forget(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.typing, chatID)
	delete(p.suggestions, chatID)
	if p.active == chatID {
		p.active = ""
	}
}
