package printdesk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// eventDispatcher delivers session events off the request path.
//
// Routine events (login, logout, refreshed) share a bounded queue and may be
// dropped when it is full and DropIfFull is set. session.expired never enters
// that queue: it is held in its own list, delivered ahead of any routine event
// still queued, and is never dropped.
type eventDispatcher struct {
	sinks      []EventSink
	dropIfFull bool
	log        *zap.Logger

	routine chan SessionEvent
	wake    chan struct{}

	mu      sync.Mutex
	expired []SessionEvent
	closed  atomic.Bool

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// newEventDispatcher returns nil when events are disabled; a nil dispatcher
// accepts and discards everything.
func newEventDispatcher(cfg EventsConfig, log *zap.Logger, sinks ...EventSink) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &eventDispatcher{
		dropIfFull: cfg.DropIfFull,
		log:        log,
		routine:    make(chan SessionEvent, max(cfg.BufferSize, 1)),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}

	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer close(d.stopped)

	for {
		select {
		case <-d.wake:
			d.flushExpired()
		case ev := <-d.routine:
			d.flushExpired()
			d.deliver(ev)
		case <-d.stop:
			d.flushExpired()
			for {
				select {
				case ev := <-d.routine:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) flushExpired() {
	d.mu.Lock()
	pending := d.expired
	d.expired = nil
	d.mu.Unlock()

	for _, ev := range pending {
		d.deliver(ev)
	}
}

// deliver hands ev to every sink. A panicking sink is logged and skipped so
// the others, and later events, still get through.
func (d *eventDispatcher) deliver(ev SessionEvent) {
	for _, s := range d.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("event sink panicked",
						zap.String("type", ev.Type),
						zap.String("panic", fmt.Sprint(r)),
					)
				}
			}()
			s.Emit(context.Background(), ev)
		}()
	}
}

// Emit queues ev. Routine events honour DropIfFull; without it Emit waits for
// room until ctx ends.
func (d *eventDispatcher) Emit(ctx context.Context, ev SessionEvent) {
	if d == nil || d.closed.Load() {
		return
	}

	if ev.Type == EventSessionExpired {
		d.mu.Lock()
		if d.closed.Load() {
			d.mu.Unlock()
			return
		}
		d.expired = append(d.expired, ev)
		d.mu.Unlock()

		select {
		case d.wake <- struct{}{}:
		default:
		}
		return
	}

	if d.dropIfFull {
		select {
		case d.routine <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.routine <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close delivers everything already accepted and stops the worker.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		d.mu.Unlock()
		close(d.stop)
	})
	<-d.stopped
}

// Dropped counts routine events lost to a full queue.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
