package service

import (
	"context"
	"time"

	"chatmallu/client/internal/sanitize"
)

const (
	thinkingBase    = 300 * time.Millisecond
	thinkingPerWord = 120 * time.Millisecond
	thinkingMin     = 600 * time.Millisecond
	thinkingMax     = 3000 * time.Millisecond

	groupWaitMin = 500 * time.Millisecond
	groupWaitMax = 5000 * time.Millisecond

	staggerStep = 150 * time.Millisecond
	staggerMax  = 600 * time.Millisecond

	suggestionDelay = time.Second
)

// ThinkingDelay is the pause before a 1:1 reply starts streaming.
func ThinkingDelay(message string) time.Duration {
	d := thinkingBase + time.Duration(sanitize.WordCount(message))*thinkingPerWord
	return clampDuration(d, thinkingMin, thinkingMax)
}

// GroupWait is the pause before a group member answers text, given the
// per-word weight in milliseconds.
func GroupWait(text string, perWordMs int) time.Duration {
	d := time.Duration(sanitize.WordCount(text)) * time.Duration(perWordMs) * time.Millisecond
	return clampDuration(d, groupWaitMin, groupWaitMax)
}

// Stagger spreads parallel replies so they do not land at once.
func Stagger(index int) time.Duration {
	if index <= 0 {
		return 0
	}
	return min(staggerMax, time.Duration(index)*staggerStep)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(hi, d))
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep returns immediately unless ctx is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
