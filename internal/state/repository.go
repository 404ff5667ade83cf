package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/storage"
)

// Repository loads and saves whole snapshots.
type Repository interface {
	// Load returns the stored snapshot; found is false on first run.
	Load(ctx context.Context) (snap Snapshot, found bool, err error)
	Save(ctx context.Context, snap Snapshot) error
}

// KVRepository lays a snapshot out over keyed slots of a storage.KV and
// only writes slots whose encoded value changed.
type KVRepository struct {
	kv   storage.KV
	mu   sync.Mutex
	last map[string]string
}

func NewKVRepository(kv storage.KV) *KVRepository {
	return &KVRepository{kv: kv, last: make(map[string]string)}
}

func (r *KVRepository) Load(ctx context.Context) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots, err := r.kv.Scan(ctx, keyPrefix)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load state: %w", err)
	}
	if _, ok := slots[keyCharacters]; !ok {
		r.last = make(map[string]string)
		return NewSnapshot(), false, nil
	}

	snap, err := decodeSlots(slots)
	if err != nil {
		return Snapshot{}, false, err
	}
	r.last = slots
	return snap, true, nil
}

func (r *KVRepository) Save(ctx context.Context, snap Snapshot) error {
	next, err := encodeSlots(snap)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, value := range next {
		if prev, ok := r.last[key]; ok && prev == value {
			continue
		}
		if err := r.kv.Set(ctx, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
		r.last[key] = value
	}
	for key := range r.last {
		if _, ok := next[key]; ok {
			continue
		}
		if err := r.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		delete(r.last, key)
	}
	return nil
}

func encodeSlots(snap Snapshot) (map[string]string, error) {
	out := make(map[string]string)
	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = string(data)
		return nil
	}

	if err := put(keyCharacters, nonNil(snap.Characters)); err != nil {
		return nil, err
	}
	if err := put(keyGroups, nonNil(snap.Groups)); err != nil {
		return nil, err
	}
	if err := put(keyAPIBaseURL, snap.Settings.APIBaseURL); err != nil {
		return nil, err
	}

	unread := make(map[string]int)
	for id, n := range snap.Unread {
		if n > 0 {
			unread[id] = n
		}
	}
	if err := put(keyUnread, unread); err != nil {
		return nil, err
	}

	for id, msgs := range snap.Messages {
		if len(msgs) == 0 {
			continue
		}
		if err := put(messagesKey(id), msgs); err != nil {
			return nil, err
		}
	}
	for id, msgs := range snap.GroupMessages {
		if len(msgs) == 0 {
			continue
		}
		if err := put(groupMessagesKey(id), msgs); err != nil {
			return nil, err
		}
	}
	for gid, byChar := range snap.Memories {
		for cid, entries := range byChar {
			if len(entries) == 0 {
				continue
			}
			if err := put(memoryKey(gid, cid), entries); err != nil {
				return nil, err
			}
		}
	}

	// One slot per setting, named by its JSON field.
	settings, err := settingsFields(snap.Settings)
	if err != nil {
		return nil, err
	}
	for name, raw := range settings {
		out[keySetting+name] = string(raw)
	}
	return out, nil
}

func decodeSlots(slots map[string]string) (Snapshot, error) {
	snap := NewSnapshot()
	get := func(key string, v any) error {
		if err := json.Unmarshal([]byte(slots[key]), v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	}

	if err := get(keyCharacters, &snap.Characters); err != nil {
		return Snapshot{}, err
	}
	if _, ok := slots[keyGroups]; ok {
		if err := get(keyGroups, &snap.Groups); err != nil {
			return Snapshot{}, err
		}
	}
	if _, ok := slots[keyUnread]; ok {
		if err := get(keyUnread, &snap.Unread); err != nil {
			return Snapshot{}, err
		}
	}

	settings := make(map[string]json.RawMessage)
	for key, value := range slots {
		switch {
		case strings.HasPrefix(key, keyMessages):
			var msgs []models.Message
			if err := get(key, &msgs); err != nil {
				return Snapshot{}, err
			}
			snap.Messages[strings.TrimPrefix(key, keyMessages)] = msgs
		case strings.HasPrefix(key, keyGroupMessages):
			var msgs []models.GroupMessage
			if err := get(key, &msgs); err != nil {
				return Snapshot{}, err
			}
			snap.GroupMessages[strings.TrimPrefix(key, keyGroupMessages)] = msgs
		case strings.HasPrefix(key, keyMemory):
			gid, cid, ok := parseMemoryKey(key)
			if !ok {
				continue
			}
			var entries []models.MemoryEntry
			if err := get(key, &entries); err != nil {
				return Snapshot{}, err
			}
			if snap.Memories[gid] == nil {
				snap.Memories[gid] = make(map[string][]models.MemoryEntry)
			}
			snap.Memories[gid][cid] = entries
		case strings.HasPrefix(key, keySetting):
			settings[strings.TrimPrefix(key, keySetting)] = json.RawMessage(value)
		}
	}

	if len(settings) > 0 {
		data, err := json.Marshal(settings)
		if err != nil {
			return Snapshot{}, err
		}
		// Unknown or missing settings keep their defaults.
		if err := json.Unmarshal(data, &snap.Settings); err != nil {
			return Snapshot{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	if _, ok := slots[keyAPIBaseURL]; ok {
		if err := get(keyAPIBaseURL, &snap.Settings.APIBaseURL); err != nil {
			return Snapshot{}, err
		}
	}
	if snap.Unread == nil {
		snap.Unread = make(map[string]int)
	}
	return snap, nil
}

func settingsFields(s models.Settings) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	delete(fields, "apiBaseUrl")
	return fields, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
