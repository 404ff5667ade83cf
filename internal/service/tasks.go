package service

import (
	"context"
	"sync"
)

// Task is the cancellation handle of one group reply loop.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

func newTask(parent context.Context) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{ctx: ctx, cancel: cancel}
}

// Context is cancelled together with the task; outstanding requests made
// with it are aborted.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Cancel stops the task. Once Cancel returns no further Commit runs.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Commit runs fn unless the task has been cancelled, and holds off Cancel
// while fn runs. It reports whether fn ran and succeeded.
func (t *Task) Commit(fn func() error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	return true, nil
}

// TaskRegistry keeps at most one live Task per group.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]*Task)}
}

// Start cancels the group's running task, if any, and registers a new one.
func (r *TaskRegistry) Start(parent context.Context, groupID string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old := r.tasks[groupID]; old != nil {
		old.Cancel()
	}
	t := newTask(parent)
	r.tasks[groupID] = t
	return t
}

// Cancel stops the group's running task, if any.
func (r *TaskRegistry) Cancel(groupID string) {
	r.mu.Lock()
	t := r.tasks[groupID]
	delete(r.tasks, groupID)
	r.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// Finish unregisters t if it is still the group's current task and releases
// its context.
func (r *TaskRegistry) Finish(groupID string, t *Task) {
	r.mu.Lock()
	if r.tasks[groupID] == t {
		delete(r.tasks, groupID)
	}
	r.mu.Unlock()
	t.cancel()
}

// Running reports whether the group has a live task.
func (r *TaskRegistry) Running(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[groupID] != nil
}

// CancelAll stops every task, used on shutdown.
func (r *TaskRegistry) CancelAll() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[string]*Task)
	r.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}
