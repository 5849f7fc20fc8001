// Package pace holds the context aware sleep used to pace vendor API calls.
package pace

import (
	"context"
	"sync"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep pauses for d, returning early with the context error when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder is a SleepFunc that records the requested durations without waiting.
type Recorder struct {
	mu        sync.Mutex
	Durations []time.Duration
}

func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.Durations = append(r.Durations, d)
	r.mu.Unlock()

	return ctx.Err()
}

// Total returns the sum of the recorded durations.
func (r *Recorder) Total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	for _, d := range r.Durations {
		total += d
	}

	return total
}
