package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chatmallu/client/ai"
	"chatmallu/client/internal/models"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"
	"chatmallu/client/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	mu         sync.Mutex
	streamReqs []ai.ChatRequest
	chatReqs   []ai.ChatRequest

	stream func(ctx context.Context, n int, req ai.ChatRequest) (string, error)
	chat   func(req ai.ChatRequest) (string, error)
}

func (f *fakeAI) ChatStream(ctx context.Context, req ai.ChatRequest, onDelta ai.DeltaFunc) (string, error) {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	n := len(f.streamReqs)
	f.mu.Unlock()

	text := req.CharacterName + " says hi"
	var err error
	if f.stream != nil {
		text, err = f.stream(ctx, n, req)
	}
	if err == nil && onDelta != nil {
		onDelta(text)
	}
	return text, err
}

func (f *fakeAI) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()

	text := "1. Sounds good\n2. Tell me more\n3. Maybe later"
	if f.chat != nil {
		var err error
		if text, err = f.chat(req); err != nil {
			return nil, err
		}
	}
	return &ai.ChatResponse{Response: text, CharacterName: req.CharacterName}, nil
}

func (f *fakeAI) streamRequests() []ai.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.ChatRequest(nil), f.streamReqs...)
}

func (f *fakeAI) chatRequests() []ai.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.ChatRequest(nil), f.chatReqs...)
}

type recorded struct {
	Type    string
	Content any
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Publish(eventType string, content any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Type: eventType, Content: content})
}

func (r *recorder) ofType(eventType string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e.Content)
		}
	}
	return out
}

type harness struct {
	rt          *Runtime
	store       *state.Store
	ai          *fakeAI
	events      *recorder
	chats       *ChatService
	groups      *GroupService
	characters  *CharacterService
	suggestions *SuggestionService
	aiden, luna models.Character
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store, err := state.Open(context.Background(), state.NewMemoryRepository())
	require.NoError(t, err)

	h := &harness{store: store, ai: &fakeAI{}, events: &recorder{}}
	h.rt = NewRuntime(store, h.ai, append([]Option{
		WithSleeper(NoSleep),
		WithLogger(logger.Nop()),
		WithPublisher(h.events),
	}, opts...)...)
	h.suggestions = NewSuggestionService(h.rt)
	h.chats = NewChatService(h.rt, h.suggestions)
	h.groups = NewGroupService(h.rt, h.suggestions)
	h.characters = NewCharacterService(h.rt)

	h.aiden, err = h.characters.FindByName("aiden")
	require.NoError(t, err)
	h.luna, err = h.characters.FindByName("Luna")
	require.NoError(t, err)
	return h
}

func (h *harness) group(t *testing.T, parallel bool) models.Group {
	t.Helper()
	g, err := h.groups.Create(context.Background(), models.CreateGroupRequest{
		Name:         "Friends",
		MemberIDs:    []string{h.aiden.ID, h.luna.ID},
		AutoParallel: parallel,
	})
	require.NoError(t, err)
	require.True(t, g.AutoReply)
	return g
}

func TestThinkingDelay_Clamps(t *testing.T) {
	assert.Equal(t, 600*time.Millisecond, ThinkingDelay(""))
	assert.Equal(t, 600*time.Millisecond, ThinkingDelay("hi there"))
	assert.Equal(t, 1500*time.Millisecond, ThinkingDelay(strings.Repeat("word ", 10)))
	assert.Equal(t, 3000*time.Millisecond, ThinkingDelay(strings.Repeat("word ", 30)))
}

func TestGroupWait_Clamps(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, GroupWait("one two", 150))
	assert.Equal(t, 1500*time.Millisecond, GroupWait(strings.Repeat("w ", 10), 150))
	assert.Equal(t, 5000*time.Millisecond, GroupWait(strings.Repeat("w ", 100), 150))
	assert.Equal(t, 500*time.Millisecond, GroupWait(strings.Repeat("w ", 100), 0))
	assert.Equal(t, 500*time.Millisecond, GroupWait(strings.Repeat("w ", 100), -20))
}

func TestStagger(t *testing.T) {
	assert.Equal(t, time.Duration(0), Stagger(0))
	assert.Equal(t, 150*time.Millisecond, Stagger(1))
	assert.Equal(t, 600*time.Millisecond, Stagger(4))
	assert.Equal(t, 600*time.Millisecond, Stagger(12))
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTask_NoCommitAfterCancel(t *testing.T) {
	reg := NewTaskRegistry()
	task := reg.Start(context.Background(), "g")
	assert.True(t, reg.Running("g"))

	ran, err := task.Commit(func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)

	next := reg.Start(context.Background(), "g")
	assert.True(t, task.Cancelled())
	assert.Error(t, task.Context().Err())

	ran, err = task.Commit(func() error {
		t.Fatal("cancelled task committed")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)

	reg.Finish("g", task)
	assert.True(t, reg.Running("g"), "finishing a stale task keeps the current one")
	reg.Finish("g", next)
	assert.False(t, reg.Running("g"))
}

func TestChatSend_ActiveChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	policy := "be terse"
	_, err := h.characters.Update(ctx, h.aiden.ID, models.UpdateCharacterRequest{Policy: &policy})
	require.NoError(t, err)
	require.NoError(t, h.rt.SetActiveChat(ctx, h.aiden.ID))

	h.ai.stream = func(context.Context, int, ai.ChatRequest) (string, error) {
		return "Aiden: Hi there", nil
	}
	var streamed strings.Builder
	reply, err := h.chats.Send(ctx, h.aiden.ID, "Hello", func(d string) { streamed.WriteString(d) })
	require.NoError(t, err)
	h.rt.Wait()

	assert.Equal(t, "Hi there", reply.Content)
	assert.Equal(t, "Aiden: Hi there", streamed.String())

	history, err := h.chats.History(h.aiden.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)

	snap := h.store.Snapshot()
	aiden, _ := snap.Character(h.aiden.ID)
	assert.Equal(t, "Hi there", aiden.LastMessage)
	assert.NotNil(t, aiden.LastMessageAt)
	assert.Zero(t, snap.Unread[h.aiden.ID])

	reqs := h.ai.streamRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Aiden", reqs[0].CharacterName)
	assert.Equal(t, "be terse", reqs[0].CharacterPolicy)
	assert.Equal(t, "Hello", reqs[0].Message)
	assert.Empty(t, reqs[0].ConversationHistory)
	assert.Equal(t, 2000, reqs[0].MaxTokens)
	assert.Equal(t, 32768, reqs[0].ContextLength)

	// typing was switched on and off, and suggestions followed the reply
	typing := h.events.ofType(ws.EventTyping)
	require.Len(t, typing, 2)
	assert.True(t, typing[0].(TypingEvent).IsTyping)
	assert.False(t, typing[1].(TypingEvent).IsTyping)
	assert.Empty(t, h.rt.Presence().Typing(h.aiden.ID))
	assert.Equal(t, []string{"Sounds good", "Tell me more", "Maybe later"}, h.suggestions.Get(h.aiden.ID))

	chatReqs := h.ai.chatRequests()
	require.Len(t, chatReqs, 1)
	assert.Equal(t, "ResponseGenerator", chatReqs[0].CharacterName)
	assert.Contains(t, chatReqs[0].Message, "User: Hello\nAiden: Hi there")
}

func TestChatSend_HistoryAndPolicy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	global := "Stay in character."
	_, err := NewSettingsService(h.rt).Update(ctx, models.UpdateSettingsRequest{GlobalPolicy: &global})
	require.NoError(t, err)

	_, err = h.chats.Send(ctx, h.luna.ID, "first", nil)
	require.NoError(t, err)
	_, err = h.chats.Send(ctx, h.luna.ID, "second", nil)
	require.NoError(t, err)
	h.rt.Wait()

	reqs := h.ai.streamRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Stay in character.\n\n"+h.luna.Policy, reqs[1].CharacterPolicy)
	assert.Equal(t, "second", reqs[1].Message)
	assert.Equal(t, []ai.HistoryEntry{
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "Luna says hi"},
	}, reqs[1].ConversationHistory)

	// Luna's chat was not open, so both replies are unread.
	assert.Equal(t, 2, NewSettingsService(h.rt).Unread()[h.luna.ID])
}

func TestChatSend_FailureLeavesTranscript(t *testing.T) {
	h := newHarness(t)
	h.ai.stream = func(context.Context, int, ai.ChatRequest) (string, error) {
		return "", &ai.HTTPError{StatusCode: 500, Body: "boom"}
	}

	_, err := h.chats.Send(context.Background(), h.aiden.ID, "Hello", nil)
	require.Error(t, err)
	assert.True(t, ai.IsHTTPStatus(err, 500))
	h.rt.Wait()

	history, err := h.chats.History(h.aiden.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Empty(t, h.rt.Presence().Typing(h.aiden.ID))
	assert.Empty(t, h.events.ofType(ws.EventError))
	assert.Empty(t, h.ai.chatRequests())
}

func TestChatAccept_UnknownCharacter(t *testing.T) {
	h := newHarness(t)
	_, err := h.chats.Accept(context.Background(), "nope", "Hello")
	assert.ErrorIs(t, err, state.ErrCharacterNotFound)

	_, err = h.chats.Accept(context.Background(), h.aiden.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatAccept_RepliesInBackground(t *testing.T) {
	h := newHarness(t)
	msg, err := h.chats.Accept(context.Background(), h.aiden.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Content)
	h.rt.Wait()

	history, err := h.chats.History(h.aiden.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestChatAccept_HistoryFixedWhenMessageArrives(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, WithSleeper(func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	ctx := context.Background()

	_, err := h.chats.Accept(ctx, h.aiden.ID, "one")
	require.NoError(t, err)
	_, err = h.chats.Accept(ctx, h.aiden.ID, "two")
	require.NoError(t, err)
	close(gate)
	h.rt.Wait()

	reqs := h.ai.streamRequests()
	require.Len(t, reqs, 2)
	byMessage := make(map[string]ai.ChatRequest, len(reqs))
	for _, req := range reqs {
		byMessage[req.Message] = req
	}
	assert.Empty(t, byMessage["one"].ConversationHistory)
	assert.Equal(t, []ai.HistoryEntry{{Role: ai.RoleUser, Content: "one"}}, byMessage["two"].ConversationHistory)

	history, err := h.chats.History(h.aiden.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestGroupParallel_MemoryHoldsEachLineOnce(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, true)
	h.ai.stream = func(_ context.Context, _ int, req ai.ChatRequest) (string, error) {
		return req.CharacterName + ": hello from " + req.CharacterName, nil
	}

	_, replies, err := h.groups.Send(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 2)

	history, err := h.groups.History(g.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	senders := map[string]int{}
	for _, m := range history {
		senders[m.SenderID]++
	}
	assert.Equal(t, map[string]int{models.SenderUser: 1, h.aiden.ID: 1, h.luna.ID: 1}, senders)

	aidenMem, err := h.groups.Memory(g.ID, h.aiden.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.MemoryEntry{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello from Aiden"},
		{Role: models.RoleUser, Content: "Luna: hello from Luna"},
	}, aidenMem)
	assert.Equal(t, models.MemoryEntry{Role: models.RoleUser, Content: "hi"}, aidenMem[0])

	lunaMem, err := h.groups.Memory(g.ID, h.luna.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.MemoryEntry{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello from Luna"},
		{Role: models.RoleUser, Content: "Aiden: hello from Aiden"},
	}, lunaMem)

	for _, req := range h.ai.streamRequests() {
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, 12288, req.ContextLength)
		assert.Contains(t, req.CharacterPolicy, "Reply only as "+req.CharacterName)
		for _, e := range req.ConversationHistory {
			assert.NotEqual(t, "hi", e.Content, "the current message is not repeated in history")
		}
	}

	assert.Equal(t, 2, h.store.Snapshot().Unread[g.ID])
	assert.Len(t, h.ai.chatRequests(), 1, "suggestions refreshed once")
	assert.False(t, h.rt.Tasks().Running(g.ID))
}

func TestGroupParallel_MemberFailureSkipsOnlyThatMember(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, true)
	h.ai.stream = func(_ context.Context, _ int, req ai.ChatRequest) (string, error) {
		if req.CharacterName == "Luna" {
			return "", errors.New("connection refused")
		}
		return "sure", nil
	}

	_, replies, err := h.groups.Send(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, h.aiden.ID, replies[0].SenderID)
}

func TestGroupSequential_RepliesChain(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, false)
	h.ai.stream = func(_ context.Context, n int, req ai.ChatRequest) (string, error) {
		return req.CharacterName + " turn " + string(rune('a'+n-1)), nil
	}

	_, replies, err := h.groups.Send(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 2*maxSequentialRounds)

	reqs := h.ai.streamRequests()
	require.Len(t, reqs, 2*maxSequentialRounds)
	assert.Equal(t, "Aiden", reqs[0].CharacterName)
	assert.Equal(t, "hi", reqs[0].Message)
	assert.Equal(t, "Luna", reqs[1].CharacterName)
	assert.Equal(t, "Aiden turn a", reqs[1].Message)
	assert.Contains(t, reqs[1].CharacterPolicy, "You are replying to Aiden.")
	assert.Equal(t, []ai.HistoryEntry{{Role: ai.RoleUser, Content: "hi"}}, reqs[1].ConversationHistory)
	assert.Equal(t, "Aiden", reqs[2].CharacterName)
	assert.Equal(t, "Luna turn b", reqs[2].Message)
	for _, req := range reqs {
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, 12288, req.ContextLength)
		assert.LessOrEqual(t, len(req.ConversationHistory), 10)
	}
}

func TestGroupSequential_SingleMemberRepliesOnce(t *testing.T) {
	h := newHarness(t)
	g, err := h.groups.Create(context.Background(), models.CreateGroupRequest{
		Name:      "Solo",
		MemberIDs: []string{h.aiden.ID},
	})
	require.NoError(t, err)
	require.False(t, g.AutoParallel)

	// a member never answers its own reply, so the second round is empty
	_, replies, err := h.groups.Send(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, h.aiden.ID, replies[0].SenderID)
	assert.Len(t, h.ai.streamRequests(), 1)
}

func TestGroupSend_NewerSendCancelsPriorLoop(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, true)
	ctx := context.Background()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	h.ai.stream = func(_ context.Context, _ int, req ai.ChatRequest) (string, error) {
		if req.Message == "first" {
			started <- struct{}{}
			<-release
			return "late reply", nil
		}
		return req.CharacterName + " fresh", nil
	}

	_, err := h.groups.Accept(ctx, g.ID, "first")
	require.NoError(t, err)
	<-started
	<-started

	_, replies, err := h.groups.Send(ctx, g.ID, "second")
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	close(release)
	h.rt.Wait()

	history, err := h.groups.History(g.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for _, m := range history {
		assert.NotEqual(t, "late reply", m.Content)
	}
	mem, err := h.groups.Memory(g.ID, h.aiden.ID)
	require.NoError(t, err)
	for _, e := range mem {
		assert.NotContains(t, e.Content, "late reply")
	}
	assert.False(t, h.rt.Tasks().Running(g.ID))
}

func TestGroupSequential_CancelStopsCommits(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, false)
	h.ai.stream = func(_ context.Context, n int, req ai.ChatRequest) (string, error) {
		if n == 3 {
			// round 2 has started; a newer action cancels the loop
			h.rt.Tasks().Cancel(g.ID)
		}
		return "reply " + string(rune('0'+n)), nil
	}

	_, replies, err := h.groups.Send(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	history, err := h.groups.History(g.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "reply 2", history[2].Content)
	assert.Len(t, h.ai.streamRequests(), 3)
	assert.Empty(t, h.ai.chatRequests(), "no suggestions for a cancelled loop")
}

func TestGroupClearHistory_CancelsLoop(t *testing.T) {
	h := newHarness(t)
	g := h.group(t, true)
	started := make(chan struct{}, 2)
	h.ai.stream = func(ctx context.Context, _ int, _ ai.ChatRequest) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := h.groups.Accept(context.Background(), g.ID, "hi")
	require.NoError(t, err)
	<-started

	require.NoError(t, h.groups.ClearHistory(context.Background(), g.ID))
	h.rt.Wait()

	history, err := h.groups.History(g.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	mem, err := h.groups.Memory(g.ID, h.aiden.ID)
	require.NoError(t, err)
	assert.Empty(t, mem)
	assert.False(t, h.rt.Tasks().Running(g.ID))
	assert.Empty(t, h.rt.Presence().Typing(g.ID))
}

func TestGroupSend_NoAutoReply(t *testing.T) {
	h := newHarness(t)
	off := false
	g, err := h.groups.Create(context.Background(), models.CreateGroupRequest{
		Name:      "Quiet",
		MemberIDs: []string{h.aiden.ID},
		AutoReply: &off,
	})
	require.NoError(t, err)

	_, replies, err := h.groups.Send(context.Background(), g.ID, "hello?")
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Empty(t, h.ai.streamRequests())

	history, err := h.groups.History(g.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	mem, err := h.groups.Memory(g.ID, h.aiden.ID)
	require.NoError(t, err)
	assert.Empty(t, mem)
}

func TestGroupCreate_RejectsUnknownMember(t *testing.T) {
	h := newHarness(t)
	_, err := h.groups.Create(context.Background(), models.CreateGroupRequest{
		Name:      "Ghosts",
		MemberIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, state.ErrUnknownMember)
}

func TestCharacterDelete_PublishesEvent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.characters.Delete(context.Background(), h.luna.ID))
	_, err := h.characters.Get(h.luna.ID)
	assert.ErrorIs(t, err, state.ErrCharacterNotFound)

	deleted := h.events.ofType(ws.EventDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, DeletedEvent{Kind: models.KindCharacter, ID: h.luna.ID}, deleted[0])
}

func TestSettingsUpdate_Validates(t *testing.T) {
	h := newHarness(t)
	svc := NewSettingsService(h.rt)
	bad := -1
	_, err := svc.Update(context.Background(), models.UpdateSettingsRequest{CharacterMemorySize: &bad})
	assert.ErrorIs(t, err, state.ErrInvalidSettings)

	url := " http://inference.local:9000/ "
	st, err := svc.Update(context.Background(), models.UpdateSettingsRequest{APIBaseURL: &url})
	require.NoError(t, err)
	assert.Equal(t, "http://inference.local:9000", st.APIBaseURL)
	assert.Equal(t, 20, st.CharacterMemorySize)
}

func TestSetActiveChat_ClearsUnread(t *testing.T) {
	h := newHarness(t)
	_, err := h.chats.Send(context.Background(), h.aiden.ID, "Hello", nil)
	require.NoError(t, err)
	h.rt.Wait()
	require.Equal(t, 1, h.store.Snapshot().Unread[h.aiden.ID])

	require.NoError(t, h.rt.SetActiveChat(context.Background(), h.aiden.ID))
	assert.Zero(t, h.store.Snapshot().Unread[h.aiden.ID])
	assert.Equal(t, h.aiden.ID, h.rt.Presence().Active())
}
