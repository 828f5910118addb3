package level

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voxelhooks.dev/internal/sim/blockstate"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []WorldEvent
	updates []BlockUpdate
}

func (r *recordingSink) WorldEvent(ev WorldEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) BlockUpdated(u BlockUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) WriteAudit(e AuditEntry) error {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(Config{MinY: -64, Height: 384, BoundaryR: 1000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestSetAndGetBlockState(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()
	positions := []BlockPos{{0, 0, 0}, {-1, -64, -1}, {15, 319, 16}, {-17, 5, 33}}
	for i, p := range positions {
		if err := w.SetBlockState(ctx, p, blockstate.StateID(i+1), 0); err != nil {
			t.Fatalf("set %s: %v", p, err)
		}
	}
	for i, p := range positions {
		got, err := w.BlockState(ctx, p)
		if err != nil {
			t.Fatalf("get %s: %v", p, err)
		}
		if got != blockstate.StateID(i+1) {
			t.Fatalf("get %s = %d want %d", p, got, i+1)
		}
	}
	if got, _ := w.BlockState(ctx, BlockPos{0, 1, 0}); got != 0 {
		t.Fatalf("untouched position should be air, got %d", got)
	}
}

func TestBounds(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()
	for _, p := range []BlockPos{{0, -65, 0}, {0, 320, 0}, {1001, 0, 0}, {0, 0, -1001}} {
		if w.InBounds(p) {
			t.Fatalf("%s should be out of bounds", p)
		}
		if err := w.SetBlockState(ctx, p, 1, 0); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("set %s: err=%v want ErrOutOfBounds", p, err)
		}
		if got, err := w.BlockState(ctx, p); err != nil || got != 0 {
			t.Fatalf("get %s = %d, %v; want air", p, got, err)
		}
	}
}

func TestUpdate_NotifiesListenersAfterRelease(t *testing.T) {
	w := newTestWorld(t)
	sink := &recordingSink{}
	audit := &recordingAudit{}
	w.AddEventSink(sink)
	w.SetAuditLogger(audit)

	ctx := WithActor(context.Background(), "P1")
	p := BlockPos{3, 10, 3}
	err := w.Update(ctx, p, func(s *Section) error {
		s.Set(7, NotifyListeners)
		s.Set(7, NotifyListeners) // no-op, same state
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := w.SetBlockState(ctx, p, 8, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if len(sink.updates) != 1 || sink.updates[0].To != 7 {
		t.Fatalf("updates=%+v want one update to 7", sink.updates)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("audit entries=%d want 2", len(audit.entries))
	}
	if audit.entries[0].Actor != "P1" || audit.entries[1].From != 7 || audit.entries[1].To != 8 {
		t.Fatalf("unexpected audit entries: %+v", audit.entries)
	}
}

func TestUpdate_SectionIsExclusivePerChunk(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()
	p := BlockPos{1, 1, 1}
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Update(ctx, p, func(s *Section) error {
				cur := s.State()
				time.Sleep(50 * time.Microsecond)
				s.Set(cur+1, 0)
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := w.BlockState(ctx, p)
	if got != n {
		t.Fatalf("counter=%d want %d (lost update)", got, n)
	}
}

func TestUpdate_CancelledWhileWaiting(t *testing.T) {
	w := newTestWorld(t)
	p := BlockPos{0, 0, 0}
	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = w.Update(context.Background(), p, func(s *Section) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Update(ctx, p.Offset(1, 0, 0), func(s *Section) error {
		t.Errorf("callback must not run without the section")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
	close(hold)

	// A different chunk is not blocked.
	if err := w.SetBlockState(context.Background(), BlockPos{100, 0, 100}, 1, 0); err != nil {
		t.Fatalf("other chunk: %v", err)
	}
}

func TestUpdate_PanicReleasesSection(t *testing.T) {
	w := newTestWorld(t)
	sink := &recordingSink{}
	w.AddEventSink(sink)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = w.Update(context.Background(), BlockPos{1, 64, 1}, func(s *Section) error {
			s.Set(7, NotifyListeners)
			panic("behavior bug")
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := w.BlockState(ctx, BlockPos{2, 64, 2})
	if err != nil || got != 0 {
		t.Fatalf("same chunk after panic: %d %v", got, err)
	}
	if err := w.SetBlockState(ctx, BlockPos{1, 64, 1}, 3, 0); err != nil {
		t.Fatalf("write after panic: %v", err)
	}
	sink.mu.Lock()
	n := len(sink.updates)
	sink.mu.Unlock()
	if n != 0 {
		t.Fatalf("updates from a panicked section were delivered: %d", n)
	}
}

func TestEmitWorldEvent(t *testing.T) {
	w := newTestWorld(t)
	sink := &recordingSink{}
	w.AddEventSink(sink)

	w.EmitWorldEvent(context.Background(), WorldEventJukeboxStartsPlaying, BlockPos{1, 2, 3}, 4)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	w.EmitWorldEvent(cancelled, WorldEventJukeboxStopsPlaying, BlockPos{1, 2, 3}, 0)

	if len(sink.events) != 1 {
		t.Fatalf("events=%d want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Kind != WorldEventJukeboxStartsPlaying || ev.Payload != 4 || ev.Pos != (BlockPos{1, 2, 3}) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Kind.String() != "JUKEBOX_STARTS_PLAYING" {
		t.Fatalf("kind name=%q", ev.Kind.String())
	}
}

func TestVec3BlockPos_FloorsTowardNegativeInfinity(t *testing.T) {
	got := Vec3{X: -0.5, Y: 63.99, Z: -2.0}.BlockPos()
	want := BlockPos{X: -1, Y: 63, Z: -2}
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if k := (BlockPos{X: -1, Z: 16}).Chunk(); k != (ChunkKey{CX: -1, CZ: 1}) {
		t.Fatalf("chunk key=%+v", k)
	}
}
