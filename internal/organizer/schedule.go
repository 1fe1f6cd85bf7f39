package organizer

import (
	"context"
	"time"
)

// Schedule describes when automatic passes run.
type Schedule struct {
	// OnLoad runs one pass Delay after start.
	OnLoad bool
	Delay  time.Duration
	// Interval repeats passes; zero disables.
	Interval time.Duration
}

// Run calls fn according to sched until ctx is done. Passes never overlap:
// a tick that arrives while fn runs is dropped.
func Run(ctx context.Context, sched Schedule, fn func(context.Context)) error {
	var onLoad <-chan time.Time
	if sched.OnLoad {
		t := time.NewTimer(sched.Delay)
		defer t.Stop()
		onLoad = t.C
	}
	var tick <-chan time.Time
	if sched.Interval > 0 {
		ticker := time.NewTicker(sched.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	if onLoad == nil && tick == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-onLoad:
			onLoad = nil
			fn(ctx)
		case <-tick:
			fn(ctx)
		}
	}
}
