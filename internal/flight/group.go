package flight

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by Wait when no outcome arrives within the bound.
var ErrWaitTimeout = errors.New("flight: wait timed out")

// Outcome is delivered to every waiter when an attempt finishes.
type Outcome struct {
	Token string
	Err   error
}

// Group serializes refresh attempts. At most one caller holds leadership at a
// time; everyone arriving while an attempt is outstanding is queued and
// released by the leader's Resolve or Fail.
type Group struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan Outcome
	attempts uint64
}

// Acquire performs the atomic check-and-set. The first caller while idle
// becomes leader and receives a nil channel. Later callers receive a buffered
// channel that gets exactly one Outcome.
func (g *Group) Acquire() (leader bool, wait <-chan Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inFlight {
		g.inFlight = true
		g.attempts++
		return true, nil
	}

	ch := make(chan Outcome, 1)
	g.waiters = append(g.waiters, ch)
	return false, ch
}

// Resolve ends the current attempt successfully and releases every waiter,
// in arrival order, with token.
func (g *Group) Resolve(token string) int {
	return g.finish(Outcome{Token: token})
}

// Fail ends the current attempt and releases every waiter with err.
func (g *Group) Fail(err error) int {
	if err == nil {
		err = errors.New("flight: attempt failed")
	}
	return g.finish(Outcome{Err: err})
}

func (g *Group) finish(out Outcome) int {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.inFlight = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}
	return len(waiters)
}

// InFlight reports whether an attempt is outstanding.
func (g *Group) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Waiting reports how many callers are queued on the current attempt.
func (g *Group) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// Attempts reports how many times leadership has been granted.
func (g *Group) Attempts() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Wait blocks until the outcome arrives, ctx ends, or timeout elapses.
// A zero timeout waits for the outcome or ctx only. Abandoning the channel is
// safe: it is buffered, so the leader never blocks on a departed waiter.
func Wait(ctx context.Context, ch <-chan Outcome, timeout time.Duration) (Outcome, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-expired:
		return Outcome{}, ErrWaitTimeout
	}
}
