// Package backoff implements the exponential backoff state shared by
// every reconnect loop in the bridge.
package backoff

import (
	"context"
	"time"
)

// State tracks an exponential backoff window between Min and Max.
//
// Advance doubles the current delay (capped at Max); Reset returns it
// to Min. The zero value is not usable; construct with New.
type State struct {
	cur time.Duration
	min time.Duration
	max time.Duration
}

func New(min, max time.Duration) *State {
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return &State{cur: min, min: min, max: max}
}

// Current returns the delay that the next Sleep would wait.
func (s *State) Current() time.Duration { return s.cur }

// Advance doubles the delay, capping at Max, and returns the new value.
func (s *State) Advance() time.Duration {
	s.cur *= 2
	if s.cur > s.max {
		s.cur = s.max
	}
	return s.cur
}

// Reset returns the delay to Min.
func (s *State) Reset() { s.cur = s.min }

// Sleep waits for the current delay or until ctx is done, whichever
// comes first. It does not advance the state; callers decide when the
// attempt actually failed.
func (s *State) Sleep(ctx context.Context) error {
	t := time.NewTimer(s.cur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
