package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ListenerID string

// PriorityNormal is the default priority; lower values run first.
const PriorityNormal = 0

type Listener interface {
	Handle(ctx context.Context, ev Event) error
}

type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

type Logger interface {
	Printf(format string, v ...any)
}

const (
	FailureError   = "error"
	FailurePanic   = "panic"
	FailureTimeout = "timeout"
)

// ListenerFailure describes a listener that returned an error, panicked or
// overran its budget. Any cancellation it raised was discarded.
type ListenerFailure struct {
	Time            time.Time     `json:"time"`
	Listener        ListenerID    `json:"listener"`
	Name            string        `json:"name,omitempty"`
	Kind            string        `json:"kind"`
	Reason          string        `json:"reason"`
	Error           string        `json:"error,omitempty"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	DiscardedCancel bool          `json:"discarded_cancel,omitempty"`
}

type FailureSink interface {
	ListenerFailed(f ListenerFailure)
}

type Options struct {
	// ListenerTimeout bounds each listener through its context; overruns are
	// reported, never fatal. 0 disables the bound.
	ListenerTimeout time.Duration
	Log             Logger
	Failures        FailureSink
}

type subscription struct {
	id       ListenerID
	name     string
	kind     string
	priority int
	seq      uint64
	l        Listener
}

// Bus dispatches events synchronously to every interested listener, ordered
// by priority then registration. Dispatch never stops early on cancellation.
type Bus struct {
	opts  Options
	clock func() time.Time

	mu     sync.RWMutex
	seq    uint64
	byKind map[string][]*subscription // copy-on-write, sorted
	byID   map[ListenerID]*subscription
}

func NewBus(opts Options) *Bus {
	return &Bus{
		opts:   opts,
		clock:  time.Now,
		byKind: map[string][]*subscription{},
		byID:   map[ListenerID]*subscription{},
	}
}

func (b *Bus) Subscribe(kind string, priority int, name string, l Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &subscription{
		id:       ListenerID(uuid.NewString()),
		name:     name,
		kind:     kind,
		priority: priority,
		seq:      b.seq,
		l:        l,
	}
	cur := b.byKind[kind]
	next := make([]*subscription, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, sub)
	sort.SliceStable(next, func(i, j int) bool {
		if next[i].priority != next[j].priority {
			return next[i].priority < next[j].priority
		}
		return next[i].seq < next[j].seq
	})
	b.byKind[kind] = next
	b.byID[sub.id] = sub
	return sub.id
}

func (b *Bus) Unsubscribe(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)
	cur := b.byKind[sub.kind]
	next := make([]*subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(b.byKind, sub.kind)
	} else {
		b.byKind[sub.kind] = next
	}
	return true
}

func (b *Bus) HasListeners(kind string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKind[kind]) > 0
}

// Publish returns after every listener for ev.Kind() has run. The caller
// checks ev.Cancelled() afterwards.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.byKind[ev.Kind()]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(ctx, sub, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev Event) {
	before := ev.snapshot()

	lctx, cancel := ctx, context.CancelFunc(func() {})
	if b.opts.ListenerTimeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, b.opts.ListenerTimeout)
	}
	start := b.clock()
	panicked, err := call(lctx, sub.l, ev)
	cancel()
	elapsed := b.clock().Sub(start)

	reason := ""
	switch {
	case panicked:
		reason = FailurePanic
	case err != nil:
		reason = FailureError
	case b.opts.ListenerTimeout > 0 && elapsed > b.opts.ListenerTimeout:
		reason = FailureTimeout
		err = fmt.Errorf("listener ran %s, budget %s", elapsed, b.opts.ListenerTimeout)
	default:
		return
	}

	f := ListenerFailure{
		Time:     start,
		Listener: sub.id,
		Name:     sub.name,
		Kind:     ev.Kind(),
		Reason:   reason,
		Error:    err.Error(),
		Elapsed:  elapsed,
	}
	if ev.snapshot() != before {
		ev.restore(before)
		f.DiscardedCancel = true
	}
	if b.opts.Log != nil {
		b.opts.Log.Printf("event %s: listener %s (%s) %s: %s", f.Kind, f.Name, f.Listener, f.Reason, f.Error)
	}
	if b.opts.Failures != nil {
		b.opts.Failures.ListenerFailed(f)
	}
}

func call(ctx context.Context, l Listener, ev Event) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return false, l.Handle(ctx, ev)
}

// On subscribes fn to events of kind whose concrete type is E.
func On[E Event](b *Bus, kind string, priority int, name string, fn func(ctx context.Context, ev E) error) ListenerID {
	return b.Subscribe(kind, priority, name, ListenerFunc(func(ctx context.Context, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	}))
}
