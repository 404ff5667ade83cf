package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Expiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(Options{TTL: time.Minute})
	c.now = func() time.Time { return now }

	c.Set("models", "list")
	v, ok := c.Get("models")
	require.True(t, ok)
	assert.Equal(t, "list", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("models")
	assert.False(t, ok)

	c.deleteExpired()
	assert.Zero(t, c.Count())
}

func TestCache_EvictsWhenFull(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxItems: 2})
	var evicted []string
	c.SetOnEvicted(func(k string, _ any) { evicted = append(evicted, k) })

	c.SetWithExpiration("a", 1, time.Second)
	c.SetWithExpiration("b", 2, time.Hour)
	c.Set("c", 3)

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, c.Count())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	calls := 0
	load := func(context.Context) (any, error) {
		calls++
		return "fresh", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad(context.Background(), "broken", func(context.Context) (any, error) {
		return nil, errors.New("offline")
	})
	assert.Error(t, err)
	_, ok := c.Get("broken")
	assert.False(t, ok, "errors are not cached")
}

func TestCache_RunStops(t *testing.T) {
	c := New(Options{CleanupInterval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Run(ctx))
}
