package service

import (
	"context"
	"fmt"
	"strings"

	"chatmallu/client/ai"
	"chatmallu/client/internal/models"
	"chatmallu/client/internal/sanitize"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"

	"github.com/google/uuid"
)

// ChatService runs 1:1 conversations with a single character.
type ChatService struct {
	rt          *Runtime
	suggestions *SuggestionService
}

// NewChatService returns a ChatService. suggestions may be nil.
func NewChatService(rt *Runtime, suggestions *SuggestionService) *ChatService {
	return &ChatService{rt: rt, suggestions: suggestions}
}

// History returns the transcript of the chat with characterID.
func (s *ChatService) History(characterID string) ([]models.Message, error) {
	var (
		out   []models.Message
		found bool
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		_, found = snap.Character(characterID)
		out = append([]models.Message{}, snap.Messages[characterID]...)
	})
	if !found {
		return nil, state.ErrCharacterNotFound
	}
	return out, nil
}

// Clear empties the transcript and drops its suggestions.
func (s *ChatService) Clear(ctx context.Context, characterID string) error {
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if _, ok := snap.Character(characterID); !ok {
			return state.ErrCharacterNotFound
		}
		snap.ClearChat(characterID)
		return nil
	})
	if err != nil {
		return err
	}
	s.rt.presence.SetSuggestions(characterID, nil)
	return nil
}

// Accept records the user's message and produces the reply in the
// background. ctx must not be cancelled when the caller returns; reply
// failures are only logged.
func (s *ChatService) Accept(ctx context.Context, characterID, content string) (models.Message, error) {
	msg, history, err := s.appendUser(ctx, characterID, content)
	if err != nil {
		return models.Message{}, err
	}
	s.rt.Go(func() {
		_, _ = s.reply(ctx, characterID, msg.Content, history, nil)
	})
	return msg, nil
}

// Send records the user's message and waits for the reply. onDelta, when
// set, receives the reply text as it streams in.
func (s *ChatService) Send(ctx context.Context, characterID, content string, onDelta ai.DeltaFunc) (models.Message, error) {
	msg, history, err := s.appendUser(ctx, characterID, content)
	if err != nil {
		return models.Message{}, err
	}
	return s.reply(ctx, characterID, msg.Content, history, onDelta)
}

// appendUser stores the user's message and returns the transcript as it
// stood before it, which becomes the reply's history.
func (s *ChatService) appendUser(ctx context.Context, characterID, content string) (models.Message, []ai.HistoryEntry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, nil, ErrEmptyMessage
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      models.RoleUser,
		Timestamp: s.rt.now().UTC(),
	}
	var history []ai.HistoryEntry
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if _, ok := snap.Character(characterID); !ok {
			return state.ErrCharacterNotFound
		}
		prior := snap.Messages[characterID]
		history = make([]ai.HistoryEntry, 0, len(prior))
		for _, m := range prior {
			history = append(history, ai.HistoryEntry{Role: m.Role, Content: m.Content})
		}
		snap.AppendMessage(characterID, msg)
		snap.TouchChat(characterID, msg.Content, msg.Timestamp)
		return nil
	})
	if err != nil {
		return models.Message{}, nil, err
	}
	s.rt.events.Publish(ws.EventMessage, MessageEvent{ChatID: characterID, Message: msg})
	return msg, history, nil
}

func (s *ChatService) reply(ctx context.Context, characterID, userText string, history []ai.HistoryEntry, onDelta ai.DeltaFunc) (models.Message, error) {
	log := s.rt.log.WithChat(characterID)

	if err := s.rt.sleep(ctx, ThinkingDelay(userText)); err != nil {
		return models.Message{}, err
	}

	req, name, show, err := s.buildRequest(characterID, userText, history)
	if err != nil {
		log.LogError(err, "build chat request")
		return models.Message{}, err
	}

	s.rt.setTyping(characterID, characterID, true, show)
	raw, err := s.rt.stream(ctx, "chat", req, onDelta)
	s.rt.setTyping(characterID, characterID, false, show)
	if err != nil {
		log.LogError(err, "chat reply failed", "character", name)
		return models.Message{}, fmt.Errorf("reply from %s: %w", name, err)
	}

	text := sanitize.Clean(raw, name)
	if text == "" {
		log.Warn("empty reply discarded", "character", name)
		return models.Message{}, ErrEmptyReply
	}

	reply := models.Message{
		ID:        uuid.NewString(),
		Content:   text,
		Role:      models.RoleAssistant,
		Timestamp: s.rt.now().UTC(),
	}
	var unread int
	err = s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if _, ok := snap.Character(characterID); !ok {
			return state.ErrCharacterNotFound
		}
		snap.AppendMessage(characterID, reply)
		snap.TouchChat(characterID, reply.Content, reply.Timestamp)
		unread = s.rt.markRead(snap, characterID)
		return nil
	})
	if err != nil {
		log.LogError(err, "store chat reply")
		return models.Message{}, err
	}

	s.rt.events.Publish(ws.EventMessage, MessageEvent{ChatID: characterID, Message: reply})
	s.rt.events.Publish(ws.EventUnread, UnreadEvent{ChatID: characterID, Count: unread})

	if s.suggestions != nil {
		s.rt.Go(func() {
			bg := context.WithoutCancel(ctx)
			if err := s.rt.sleep(bg, suggestionDelay); err != nil {
				return
			}
			if _, err := s.suggestions.Refresh(bg, characterID); err != nil {
				s.rt.log.WithChat(characterID).LogError(err, "refresh suggestions")
			}
		})
	}
	return reply, nil
}

// buildRequest snapshots the character and settings. history was captured
// when the user message was stored, so later turns never leak into it.
func (s *ChatService) buildRequest(characterID, userText string, history []ai.HistoryEntry) (ai.ChatRequest, string, bool, error) {
	var (
		req  ai.ChatRequest
		name string
		show bool
		err  error
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		c, ok := snap.Character(characterID)
		if !ok {
			err = state.ErrCharacterNotFound
			return
		}
		name = c.Name
		st := snap.Settings
		show = st.ShowTypingIndicator

		req = ai.ChatRequest{
			CharacterName:       c.Name,
			CharacterPolicy:     joinPolicy(st.GlobalPolicy, c.Policy),
			Message:             userText,
			ConversationHistory: history,
			Temperature:         st.Temperature,
			MaxTokens:           st.MaxTokens,
			ContextLength:       st.ContextLength,
		}
	})
	return req, name, show, err
}
