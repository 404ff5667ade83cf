package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatmallu/client/ai"
	"chatmallu/client/internal/memory"
	"chatmallu/client/internal/models"
	"chatmallu/client/internal/sanitize"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/ws"

	"github.com/google/uuid"
)

const (
	groupMaxTokens      = 256
	groupContextLength  = 12288
	maxSequentialRounds = 8

	modeParallel   = "group_parallel"
	modeSequential = "group_sequential"
)

// GroupService manages group chats and runs their reply loops.
type GroupService struct {
	rt          *Runtime
	suggestions *SuggestionService
}

// NewGroupService returns a GroupService. suggestions may be nil.
func NewGroupService(rt *Runtime, suggestions *SuggestionService) *GroupService {
	return &GroupService{rt: rt, suggestions: suggestions}
}

// List returns every group.
func (s *GroupService) List() []models.Group {
	return s.rt.store.Snapshot().Groups
}

// Get returns a copy of the group or state.ErrGroupNotFound.
func (s *GroupService) Get(id string) (models.Group, error) {
	var (
		g  models.Group
		ok bool
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		g, ok = snap.Group(id)
		g.MemberIDs = append([]string{}, g.MemberIDs...)
	})
	if !ok {
		return models.Group{}, state.ErrGroupNotFound
	}
	return g, nil
}

// Create adds a group. AutoReply defaults to true when unset.
func (s *GroupService) Create(ctx context.Context, req models.CreateGroupRequest) (models.Group, error) {
	autoReply := true
	if req.AutoReply != nil {
		autoReply = *req.AutoReply
	}
	g := models.Group{
		ID:           uuid.NewString(),
		Name:         req.Name,
		MemberIDs:    req.MemberIDs,
		AutoReply:    autoReply,
		AutoParallel: req.AutoParallel,
		Avatar:       req.Avatar,
	}
	var created models.Group
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if err := snap.AddGroup(g); err != nil {
			return err
		}
		created, _ = snap.Group(g.ID)
		return nil
	})
	return created, err
}

// Update applies the non-nil fields of req.
func (s *GroupService) Update(ctx context.Context, id string, req models.UpdateGroupRequest) (models.Group, error) {
	var updated models.Group
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		var err error
		updated, err = snap.UpdateGroup(id, req)
		return err
	})
	return updated, err
}

// Delete stops the group's reply loop and removes the group.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	s.rt.tasks.Cancel(id)
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		return snap.DeleteGroup(id)
	})
	if err != nil {
		return err
	}
	s.rt.presence.Forget(id)
	s.rt.events.Publish(ws.EventDeleted, DeletedEvent{Kind: models.KindGroup, ID: id})
	return nil
}

// History returns the group transcript.
func (s *GroupService) History(groupID string) ([]models.GroupMessage, error) {
	var (
		out   []models.GroupMessage
		found bool
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		_, found = snap.Group(groupID)
		out = append([]models.GroupMessage{}, snap.GroupMessages[groupID]...)
	})
	if !found {
		return nil, state.ErrGroupNotFound
	}
	return out, nil
}

// Memory returns a member's private view of the group.
func (s *GroupService) Memory(groupID, characterID string) ([]models.MemoryEntry, error) {
	if _, err := s.Get(groupID); err != nil {
		return nil, err
	}
	return memory.NewStore(s.rt.store).Get(groupID, characterID), nil
}

// ClearHistory cancels the group's reply loop, then deletes its messages
// and every member's memory of it.
func (s *GroupService) ClearHistory(ctx context.Context, groupID string) error {
	s.rt.tasks.Cancel(groupID)
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		if _, ok := snap.Group(groupID); !ok {
			return state.ErrGroupNotFound
		}
		snap.ClearGroupHistory(groupID)
		return nil
	})
	if err != nil {
		return err
	}
	s.rt.presence.SetSuggestions(groupID, nil)
	return nil
}

// groupRun is one reply loop triggered by a user message.
type groupRun struct {
	task     *Task
	groupID  string
	members  []string
	parallel bool
	perWord  int
	userText string
	stimulus models.MemoryEntry
}

// turnInput is what one member answers: the text sent as message, the
// memory entry that already carries it, and who said it ("" for the user).
type turnInput struct {
	message  string
	stimulus models.MemoryEntry
	fromName string
}

// Accept records the user's message and runs the reply loop in the
// background, under a task derived from ctx.
func (s *GroupService) Accept(ctx context.Context, groupID, content string) (models.GroupMessage, error) {
	msg, run, err := s.start(ctx, ctx, groupID, content)
	if err != nil || run == nil {
		return msg, err
	}
	s.rt.Go(func() { s.run(run) })
	return msg, nil
}

// Send records the user's message and waits for the reply loop, returning
// the replies that were committed.
func (s *GroupService) Send(ctx context.Context, groupID, content string) (models.GroupMessage, []models.GroupMessage, error) {
	msg, run, err := s.start(ctx, ctx, groupID, content)
	if err != nil || run == nil {
		return msg, nil, err
	}
	return msg, s.run(run), nil
}

func (s *GroupService) start(ctx, parent context.Context, groupID, content string) (models.GroupMessage, *groupRun, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.GroupMessage{}, nil, ErrEmptyMessage
	}
	msg := models.GroupMessage{
		ID:        uuid.NewString(),
		Content:   content,
		SenderID:  models.SenderUser,
		Timestamp: s.rt.now().UTC(),
	}
	var g models.Group
	var st models.Settings
	err := s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
		var ok bool
		if g, ok = snap.Group(groupID); !ok {
			return state.ErrGroupNotFound
		}
		g.MemberIDs = append([]string(nil), g.MemberIDs...)
		st = snap.Settings
		snap.AppendGroupMessage(groupID, msg)
		snap.TouchChat(groupID, msg.Content, msg.Timestamp)
		return nil
	})
	if err != nil {
		return models.GroupMessage{}, nil, err
	}
	s.rt.events.Publish(ws.EventGroupMessage, GroupMessageEvent{GroupID: groupID, Message: msg})

	if !g.AutoReply || len(g.MemberIDs) == 0 {
		return msg, nil, nil
	}

	run := &groupRun{
		task:     s.rt.tasks.Start(parent, groupID),
		groupID:  groupID,
		members:  g.MemberIDs,
		parallel: g.AutoParallel,
		perWord:  st.WaitTimePerWord,
		userText: content,
		stimulus: models.MemoryEntry{Role: models.RoleUser, Content: sanitize.ForMemory(content)},
	}
	if run.stimulus.Content != "" {
		_, err = run.task.Commit(func() error {
			return s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
				for _, id := range run.members {
					memory.Append(snap, groupID, id, run.stimulus, snap.Settings.CharacterMemorySize)
				}
				return nil
			})
		})
		if err != nil {
			s.rt.tasks.Finish(groupID, run.task)
			return msg, nil, err
		}
	}
	return msg, run, nil
}

func (s *GroupService) run(r *groupRun) []models.GroupMessage {
	defer s.rt.tasks.Finish(r.groupID, r.task)

	var replies []models.GroupMessage
	if r.parallel {
		replies = s.runParallel(r)
	} else {
		replies = s.runSequential(r)
	}

	if s.suggestions != nil && len(replies) > 0 && !r.task.Cancelled() {
		if _, err := s.suggestions.Refresh(r.task.Context(), r.groupID); err != nil && !errors.Is(err, context.Canceled) {
			s.rt.log.WithChat(r.groupID).LogError(err, "refresh suggestions")
		}
	}
	return replies
}

// runParallel lets every member answer the user message at once. Replies
// are committed in the order they finish.
func (s *GroupService) runParallel(r *groupRun) []models.GroupMessage {
	ctx := r.task.Context()
	in := turnInput{message: r.userText, stimulus: r.stimulus}
	wait := GroupWait(r.userText, r.perWord)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		replies []models.GroupMessage
	)
	for i, id := range r.members {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if err := s.rt.sleep(ctx, wait+Stagger(i)); err != nil || r.task.Cancelled() {
				return
			}
			msg, _, ok := s.turn(r, id, in, modeParallel)
			if !ok {
				return
			}
			mu.Lock()
			replies = append(replies, msg)
			mu.Unlock()
		}(i, id)
	}
	wg.Wait()
	return replies
}

// runSequential lets members take turns, each answering the previous
// reply, for a bounded number of rounds. A round in which nobody answered
// ends the loop.
func (s *GroupService) runSequential(r *groupRun) []models.GroupMessage {
	ctx := r.task.Context()
	in := turnInput{message: r.userText, stimulus: r.stimulus}
	var (
		replies []models.GroupMessage
		last    string
	)
	for round := 0; round < maxSequentialRounds; round++ {
		progressed := false
		for _, id := range r.members {
			if r.task.Cancelled() {
				return replies
			}
			if id == last {
				continue
			}
			if err := s.rt.sleep(ctx, GroupWait(in.message, r.perWord)); err != nil {
				return replies
			}
			msg, name, ok := s.turn(r, id, in, modeSequential)
			if !ok {
				continue
			}
			replies = append(replies, msg)
			progressed = true
			last = id
			in = turnInput{
				message:  msg.Content,
				stimulus: models.MemoryEntry{Role: models.RoleUser, Content: name + ": " + msg.Content},
				fromName: name,
			}
		}
		if !progressed {
			break
		}
	}
	return replies
}

// turn asks one member for a reply and commits it unless the run was
// cancelled meanwhile.
func (s *GroupService) turn(r *groupRun, memberID string, in turnInput, mode string) (models.GroupMessage, string, bool) {
	ctx := r.task.Context()
	log := s.rt.log.WithChat(r.groupID).WithFields("member", memberID, "mode", mode)

	req, name, show, err := s.buildTurn(r.groupID, memberID, in)
	if err != nil {
		log.Debug("member skipped", "reason", err.Error())
		return models.GroupMessage{}, "", false
	}

	s.rt.setTyping(r.groupID, memberID, true, show)
	raw, err := s.rt.stream(ctx, mode, req, nil)
	s.rt.setTyping(r.groupID, memberID, false, show)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("member reply cancelled")
		} else {
			log.LogError(err, "member reply failed", "character", name)
		}
		return models.GroupMessage{}, "", false
	}

	text := sanitize.Clean(raw, name)
	if text == "" {
		log.Warn("empty member reply discarded", "character", name)
		return models.GroupMessage{}, "", false
	}

	msg := models.GroupMessage{
		ID:        uuid.NewString(),
		Content:   text,
		SenderID:  memberID,
		Timestamp: s.rt.now().UTC(),
	}
	var unread int
	committed, err := r.task.Commit(func() error {
		return s.rt.store.Update(ctx, func(snap *state.Snapshot) error {
			g, ok := snap.Group(r.groupID)
			if !ok {
				return state.ErrGroupNotFound
			}
			snap.AppendGroupMessage(r.groupID, msg)
			memory.RecordReply(snap, r.groupID, memberID, name, g.MemberIDs, text, snap.Settings.CharacterMemorySize)
			snap.TouchChat(r.groupID, text, msg.Timestamp)
			unread = s.rt.markRead(snap, r.groupID)
			return nil
		})
	})
	if err != nil {
		log.LogError(err, "store member reply")
		return models.GroupMessage{}, "", false
	}
	if !committed {
		return models.GroupMessage{}, "", false
	}

	s.rt.metrics.RecordGroupReply(ctx, mode)
	s.rt.events.Publish(ws.EventGroupMessage, GroupMessageEvent{GroupID: r.groupID, Message: msg})
	s.rt.events.Publish(ws.EventUnread, UnreadEvent{ChatID: r.groupID, Count: unread})
	return msg, name, true
}

var errNotMember = errors.New("no longer a group member")

func (s *GroupService) buildTurn(groupID, memberID string, in turnInput) (ai.ChatRequest, string, bool, error) {
	var (
		req  ai.ChatRequest
		name string
		show bool
		err  error
	)
	s.rt.store.Read(func(snap *state.Snapshot) {
		g, ok := snap.Group(groupID)
		if !ok {
			err = state.ErrGroupNotFound
			return
		}
		c, ok := snap.Character(memberID)
		if !ok || !containsString(g.MemberIDs, memberID) {
			err = errNotMember
			return
		}
		name = c.Name
		st := snap.Settings
		show = st.ShowTypingIndicator

		entries := memory.Window(withoutLast(snap.Memories[groupID][memberID], in.stimulus), st.APIContextSize)
		history := make([]ai.HistoryEntry, 0, len(entries))
		for _, e := range entries {
			history = append(history, ai.HistoryEntry{Role: e.Role, Content: e.Content})
		}

		req = ai.ChatRequest{
			CharacterName:       c.Name,
			CharacterPolicy:     joinPolicy(st.GlobalPolicy, c.Policy, groupContext(snap, g, c, in.fromName)),
			Message:             in.message,
			ConversationHistory: history,
			Temperature:         st.Temperature,
			MaxTokens:           groupMaxTokens,
			ContextLength:       groupContextLength,
		}
	})
	return req, name, show, err
}

// groupContext tells a member who else is in the room and that it speaks
// only for itself.
func groupContext(snap *state.Snapshot, g models.Group, self models.Character, replyingTo string) string {
	var others []string
	for _, id := range g.MemberIDs {
		if id == self.ID {
			continue
		}
		if name := snap.CharacterName(id); name != "" {
			others = append(others, name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in a group chat called %q with ", self.Name, g.Name)
	if len(others) > 0 {
		b.WriteString(strings.Join(others, ", "))
		b.WriteString(" and ")
	}
	b.WriteString("the user. Messages from others start with the speaker's name. ")
	fmt.Fprintf(&b, "Reply only as %s, never write lines for anyone else and do not start your reply with your name.", self.Name)
	if replyingTo != "" {
		fmt.Fprintf(&b, " You are replying to %s.", replyingTo)
	}
	return b.String()
}

// withoutLast drops the last occurrence of entry.
func withoutLast(entries []models.MemoryEntry, entry models.MemoryEntry) []models.MemoryEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == entry {
			out := make([]models.MemoryEntry, 0, len(entries)-1)
			out = append(out, entries[:i]...)
			return append(out, entries[i+1:]...)
		}
	}
	return entries
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// FindByName resolves a group by id or case-insensitive name.
func (s *GroupService) FindByName(ref string) (models.Group, error) {
	for _, g := range s.List() {
		if g.ID == ref || equalFold(g.Name, ref) {
			return g, nil
		}
	}
	return models.Group{}, state.ErrGroupNotFound
}
