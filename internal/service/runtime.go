// Package service orchestrates conversations: 1:1 sends, group reply loops,
// reply suggestions and the CRUD surface over the application state.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatmallu/client/ai"
	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"
	"chatmallu/client/pkg/logger"
	"chatmallu/client/shared/observability"
)

// Inference is the subset of the inference client the orchestrator uses.
type Inference interface {
	ChatStream(ctx context.Context, req ai.ChatRequest, onDelta ai.DeltaFunc) (string, error)
	Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error)
}

// Publisher receives UI events. *ws.Hub is the production implementation.
type Publisher interface {
	Publish(eventType string, content any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// Event payloads.
type (
	MessageEvent struct {
		ChatID  string         `json:"chatId"`
		Message models.Message `json:"message"`
	}
	GroupMessageEvent struct {
		GroupID string              `json:"groupId"`
		Message models.GroupMessage `json:"message"`
	}
	TypingEvent struct {
		ChatID    string `json:"chatId"`
		SpeakerID string `json:"speakerId"`
		IsTyping  bool   `json:"isTyping"`
	}
	UnreadEvent struct {
		ChatID string `json:"chatId"`
		Count  int    `json:"count"`
	}
	SuggestionsEvent struct {
		ChatID      string   `json:"chatId"`
		Suggestions []string `json:"suggestions"`
	}
	DeletedEvent struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
)

// Runtime is the shared plumbing of the services.
type Runtime struct {
	store    *state.Store
	ai       Inference
	events   Publisher
	presence *Presence
	tasks    *TaskRegistry
	log      *logger.Logger
	metrics  *observability.Metrics
	sleep    Sleeper
	now      func() time.Time

	wg sync.WaitGroup
}

type Option func(*Runtime)

func WithPublisher(p Publisher) Option {
	return func(rt *Runtime) {
		if p != nil {
			rt.events = p
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(rt *Runtime) {
		if s != nil {
			rt.sleep = s
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(rt *Runtime) { rt.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) {
		if now != nil {
			rt.now = now
		}
	}
}

func NewRuntime(store *state.Store, inference Inference, opts ...Option) *Runtime {
	rt := &Runtime{
		store:    store,
		ai:       inference,
		events:   nopPublisher{},
		presence: NewPresence(),
		tasks:    NewTaskRegistry(),
		log:      logger.GetGlobal(),
		sleep:    Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.log = rt.log.WithComponent("orchestrator")
	return rt
}

func (rt *Runtime) Store() *state.Store    { return rt.store }
func (rt *Runtime) Presence() *Presence    { return rt.presence }
func (rt *Runtime) Tasks() *TaskRegistry   { return rt.tasks }
func (rt *Runtime) Logger() *logger.Logger { return rt.log }

// Go runs fn in a tracked background goroutine.
func (rt *Runtime) Go(fn func()) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		fn()
	}()
}

// Wait blocks until every background goroutine started with Go returned.
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}

// Shutdown cancels all group loops and waits for background work.
func (rt *Runtime) Shutdown() {
	rt.tasks.CancelAll()
	rt.wg.Wait()
}

// SetActiveChat marks chatID as open in the UI and clears its unread badge.
func (rt *Runtime) SetActiveChat(ctx context.Context, chatID string) error {
	rt.presence.SetActive(chatID)
	if chatID == "" {
		return nil
	}
	var had bool
	err := rt.store.Update(ctx, func(snap *state.Snapshot) error {
		had = snap.Unread[chatID] > 0
		snap.ClearUnread(chatID)
		return nil
	})
	if err != nil {
		return err
	}
	if had {
		rt.events.Publish(ws.EventUnread, UnreadEvent{ChatID: chatID})
	}
	return nil
}

func (rt *Runtime) setTyping(chatID, speakerID string, on bool, show bool) {
	rt.presence.SetTyping(chatID, speakerID, on)
	if show {
		rt.events.Publish(ws.EventTyping, TypingEvent{ChatID: chatID, SpeakerID: speakerID, IsTyping: on})
	}
}

// markRead clears or bumps the unread counter of chatID depending on
// whether the chat is open. It runs inside a store update.
func (rt *Runtime) markRead(snap *state.Snapshot, chatID string) int {
	if rt.presence.IsActive(chatID) {
		snap.ClearUnread(chatID)
		return 0
	}
	snap.BumpUnread(chatID)
	return snap.Unread[chatID]
}

// stream sends req to the streaming endpoint and records metrics.
func (rt *Runtime) stream(ctx context.Context, kind string, req ai.ChatRequest, onDelta ai.DeltaFunc) (string, error) {
	start := time.Now()
	text, err := rt.ai.ChatStream(ctx, req, onDelta)
	rt.metrics.RecordRequest(ctx, kind, time.Since(start), err)
	return text, err
}

func (rt *Runtime) chat(ctx context.Context, kind string, req ai.ChatRequest) (string, error) {
	start := time.Now()
	resp, err := rt.ai.Chat(ctx, req)
	rt.metrics.RecordRequest(ctx, kind, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// joinPolicy joins the non-blank parts with a blank line.
func joinPolicy(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
