package service

import (
	"context"
	"regexp"
	"strings"

	"chatmallu/client/ai"
	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"
)

const (
	suggestionSpeaker = "ResponseGenerator"
	summarySpeaker    = "ChatSummarizer"

	suggestionWindow = 5
	summaryWindow    = 15
	suggestionCount  = 3

	helperMaxTokens     = 300
	helperContextLength = 4096

	userLabel = "User"
)

const suggestionPolicy = "You write reply suggestions for the user of a chat app. " +
	"Suggestions are short, natural and written in the user's voice."

const summaryPolicy = "You summarise chat conversations in a few plain sentences. " +
	"Mention who took part and what was decided or discussed."

var (
	listMarker = regexp.MustCompile(`^\s*(?:\d+\s*[.)]|[-*•])\s*`)
	quotePairs = map[rune]rune{'"': '"', '\'': '\'', '“': '”', '‘': '’', '«': '»'}
)

// SuggestionService produces reply suggestions and summaries using
// one-shot requests to the non-streaming endpoint.
type SuggestionService struct {
	rt *Runtime
}

func NewSuggestionService(rt *Runtime) *SuggestionService {
	return &SuggestionService{rt: rt}
}

// Get returns the current suggestions for a chat.
func (s *SuggestionService) Get(chatID string) []string {
	return s.rt.presence.Suggestions(chatID)
}

// Refresh asks for three new reply suggestions based on the latest
// messages of the chat. An unusable answer clears the suggestions.
func (s *SuggestionService) Refresh(ctx context.Context, chatID string) ([]string, error) {
	lines, err := s.transcript(chatID, suggestionWindow)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		s.set(chatID, nil)
		return nil, nil
	}

	req := s.helperRequest(suggestionSpeaker, suggestionPolicy,
		"Conversation:\n"+strings.Join(lines, "\n")+
			"\n\nSuggest exactly 3 short replies the user could send next. "+
			"Write one per line, numbered 1 to 3, with nothing else.")
	text, err := s.rt.chat(ctx, "suggestions", req)
	if err != nil {
		return nil, err
	}

	suggestions := ParseSuggestions(text)
	if len(suggestions) < suggestionCount {
		s.rt.log.WithChat(chatID).Debug("suggestions discarded", "parsed", len(suggestions))
		s.set(chatID, nil)
		return nil, nil
	}
	suggestions = suggestions[:suggestionCount]
	s.set(chatID, suggestions)
	return suggestions, nil
}

// Summarize returns a short summary of the latest messages of the chat.
func (s *SuggestionService) Summarize(ctx context.Context, chatID string) (string, error) {
	lines, err := s.transcript(chatID, summaryWindow)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", ErrEmptyChat
	}
	req := s.helperRequest(summarySpeaker, summaryPolicy,
		"Summarise this conversation:\n"+strings.Join(lines, "\n"))
	text, err := s.rt.chat(ctx, "summary", req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *SuggestionService) set(chatID string, suggestions []string) {
	s.rt.presence.SetSuggestions(chatID, suggestions)
	s.rt.events.Publish(ws.EventSuggestions, SuggestionsEvent{ChatID: chatID, Suggestions: s.rt.presence.Suggestions(chatID)})
}

func (s *SuggestionService) helperRequest(name, policy, message string) ai.ChatRequest {
	st := s.rt.store.Settings()
	return ai.ChatRequest{
		CharacterName:       name,
		CharacterPolicy:     policy,
		Message:             message,
		ConversationHistory: []ai.HistoryEntry{},
		Temperature:         st.Temperature,
		MaxTokens:           helperMaxTokens,
		ContextLength:       helperContextLength,
	}
}

// transcript renders the last n messages of a 1:1 or group chat as
// "Speaker: text" lines.
func (s *SuggestionService) transcript(chatID string, n int) ([]string, error) {
	var (
		lines []string
		err   error
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		if c, ok := snap.Character(chatID); ok {
			msgs := snap.Messages[chatID]
			if len(msgs) > n {
				msgs = msgs[len(msgs)-n:]
			}
			for _, m := range msgs {
				speaker := userLabel
				if m.Role == models.RoleAssistant {
					speaker = c.Name
				}
				lines = append(lines, speaker+": "+m.Content)
			}
			return
		}
		if _, ok := snap.Group(chatID); ok {
			msgs := snap.GroupMessages[chatID]
			if len(msgs) > n {
				msgs = msgs[len(msgs)-n:]
			}
			for _, m := range msgs {
				speaker := userLabel
				if m.SenderID != models.SenderUser {
					if speaker = snap.CharacterName(m.SenderID); speaker == "" {
						speaker = "Someone"
					}
				}
				lines = append(lines, speaker+": "+m.Content)
			}
			return
		}
		err = ErrUnknownChat
	})
	return lines, err
}

// ParseSuggestions extracts suggestion lines from a model answer, dropping
// list numbering, bullets and wrapping quotes.
func ParseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = unquote(strings.TrimSpace(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func unquote(s string) string {
	for {
		r := []rune(s)
		if len(r) < 2 {
			return s
		}
		closing, ok := quotePairs[r[0]]
		if !ok || r[len(r)-1] != closing {
			return s
		}
		s = strings.TrimSpace(string(r[1 : len(r)-1]))
	}
}
