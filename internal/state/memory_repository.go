package state

import (
	"context"
	"sync"
)

// MemoryRepository keeps a single snapshot in memory. Saves counts calls.
type MemoryRepository struct {
	mu    sync.Mutex
	snap  *Snapshot
	Saves int
	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(ctx context.Context) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return NewSnapshot(), false, nil
	}
	return r.snap.Clone(), true, nil
}

func (r *MemoryRepository) Save(ctx context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	c := snap.Clone()
	r.snap = &c
	r.Saves++
	return nil
}
