package block

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

type eventLog struct {
	mu     sync.Mutex
	events []level.WorldEvent
}

func (e *eventLog) WorldEvent(ev level.WorldEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) snapshot() []level.WorldEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]level.WorldEvent(nil), e.events...)
}

type auditLog struct {
	mu      sync.Mutex
	entries []level.AuditEntry
}

func (a *auditLog) WriteAudit(e level.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

type harness struct {
	world   *level.World
	codec   *blockstate.Codec
	jukebox *blockstate.Block
	events  *eventLog
	audit   *auditLog
	logs    *bytes.Buffer
	jb      *Jukebox
	pos     level.BlockPos
	player  *entity.Player
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	codec, err := blockstate.NewCodec(cats.Blocks)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	w, err := level.New(level.Config{MinY: -64, Height: 384})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	h := &harness{
		world:  w,
		codec:  codec,
		events: &eventLog{},
		audit:  &auditLog{},
		logs:   &bytes.Buffer{},
		pos:    level.BlockPos{X: 4, Y: 64, Z: -9},
		player: entity.NewPlayer("P1", "alex", level.Vec3{X: 4.5, Y: 64, Z: -8.5}),
	}
	h.jukebox, _ = codec.Block(JukeboxID)
	w.AddEventSink(h.events)
	w.SetAuditLogger(h.audit)

	// song1 sits at index 3.
	songs := catalogs.NewRegistry([]string{"13", "cat", "blocks", "song1"})
	h.jb = NewJukebox(songs, log.New(h.logs, "", 0))
	h.place(t, false)
	return h
}

func (h *harness) place(t *testing.T, record bool) {
	t.Helper()
	id, err := h.jukebox.Encode(blockstate.Props{hasRecord: boolString(record)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := h.world.SetBlockState(context.Background(), h.pos, id, 0); err != nil {
		t.Fatalf("place: %v", err)
	}
	h.audit.entries = nil
}

func (h *harness) hasRecord(t *testing.T) bool {
	t.Helper()
	id, err := h.world.BlockState(context.Background(), h.pos)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return h.jukebox.Bool(id, hasRecord)
}

func (h *harness) useArgs() UseArgs {
	return UseArgs{Actor: h.player, Block: h.jukebox, Pos: h.pos, World: h.world}
}

func (h *harness) withItem(media string) UseWithItemArgs {
	return UseWithItemArgs{
		UseArgs: h.useArgs(),
		Item:    item.NewStack(catalogs.ItemDef{ID: "test:disc", JukeboxPlayable: media}, 1),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestJukebox_UseWithDiscStartsRegisteredSong(t *testing.T) {
	h := newHarness(t)
	res := h.jb.UseWithItem(context.Background(), h.withItem("minecraft:song1"))
	if res != Consume {
		t.Fatalf("result=%s want CONSUME", res)
	}
	if !h.hasRecord(t) {
		t.Fatalf("has_record should be true")
	}
	evs := h.events.snapshot()
	if len(evs) != 1 || evs[0].Kind != level.WorldEventJukeboxStartsPlaying || evs[0].Payload != 3 || evs[0].Pos != h.pos {
		t.Fatalf("events=%+v want start(pos,3)", evs)
	}
}

func TestJukebox_UseWhilePlayingStops(t *testing.T) {
	for _, withItem := range []bool{false, true} {
		h := newHarness(t)
		h.place(t, true)
		var res ActionResult
		if withItem {
			res = h.jb.UseWithItem(context.Background(), h.withItem("minecraft:song1"))
		} else {
			res = h.jb.NormalUse(context.Background(), h.useArgs())
		}
		if res != Consume {
			t.Fatalf("withItem=%v: result=%s want CONSUME", withItem, res)
		}
		if h.hasRecord(t) {
			t.Fatalf("withItem=%v: has_record should be false", withItem)
		}
		evs := h.events.snapshot()
		if len(evs) != 1 || evs[0].Kind != level.WorldEventJukeboxStopsPlaying || evs[0].Payload != 0 {
			t.Fatalf("withItem=%v: events=%+v want stop(pos,0)", withItem, evs)
		}
	}
}

func TestJukebox_ItemWithoutMediaContinues(t *testing.T) {
	for _, media := range []string{"", "nocolon"} {
		h := newHarness(t)
		res := h.jb.UseWithItem(context.Background(), h.withItem(media))
		if res != Continue {
			t.Fatalf("media=%q: result=%s want CONTINUE", media, res)
		}
		if h.hasRecord(t) || len(h.audit.entries) != 0 || len(h.events.snapshot()) != 0 {
			t.Fatalf("media=%q: expected no mutation and no events", media)
		}
		if h.logs.Len() != 0 {
			t.Fatalf("media=%q: unexpected log %q", media, h.logs.String())
		}
	}

	h := newHarness(t)
	if res := h.jb.UseWithItem(context.Background(), UseWithItemArgs{UseArgs: h.useArgs()}); res != Continue {
		t.Fatalf("nil item: result=%s want CONTINUE", res)
	}
}

func TestJukebox_UnregisteredSongLogsAndContinues(t *testing.T) {
	for media, logged := range map[string]string{
		"minecraft:otherside": `"otherside"`,
		"minecraft:":          `""`,
	} {
		h := newHarness(t)
		res := h.jb.UseWithItem(context.Background(), h.withItem(media))
		if res != Continue {
			t.Fatalf("media=%q: result=%s want CONTINUE", media, res)
		}
		if h.hasRecord(t) || len(h.audit.entries) != 0 || len(h.events.snapshot()) != 0 {
			t.Fatalf("media=%q: expected no mutation and no events", media)
		}
		if !strings.Contains(h.logs.String(), "ERROR") || !strings.Contains(h.logs.String(), logged) {
			t.Fatalf("media=%q: expected error log naming the key, got %q", media, h.logs.String())
		}
	}
}

func TestJukebox_NormalUseNeverStarts(t *testing.T) {
	h := newHarness(t)
	if res := h.jb.NormalUse(context.Background(), h.useArgs()); res != Continue {
		t.Fatalf("result=%s want CONTINUE", res)
	}
	if h.hasRecord(t) || len(h.events.snapshot()) != 0 {
		t.Fatalf("normal use must not start playback")
	}
}

func TestJukebox_BrokenAlwaysSignalsStop(t *testing.T) {
	for _, record := range []bool{false, true} {
		h := newHarness(t)
		h.place(t, record)
		id, _ := h.world.BlockState(context.Background(), h.pos)
		h.jb.Broken(context.Background(), BrokenArgs{Block: h.jukebox, Pos: h.pos, World: h.world, State: id})
		evs := h.events.snapshot()
		if len(evs) != 1 || evs[0].Kind != level.WorldEventJukeboxStopsPlaying {
			t.Fatalf("record=%v: events=%+v want one stop", record, evs)
		}
	}
}

func TestJukebox_ReplacedBlockContinues(t *testing.T) {
	h := newHarness(t)
	stone, _ := h.codec.Block("minecraft:stone")
	_ = h.world.SetBlockState(context.Background(), h.pos, stone.DefaultState, 0)
	if res := h.jb.UseWithItem(context.Background(), h.withItem("minecraft:song1")); res != Continue {
		t.Fatalf("result=%s want CONTINUE", res)
	}
	if !strings.Contains(h.logs.String(), "replaced") {
		t.Fatalf("expected replaced log, got %q", h.logs.String())
	}
}

func TestJukebox_ConcurrentUseNeverDoubleStarts(t *testing.T) {
	h := newHarness(t)
	const n = 32

	var wg sync.WaitGroup
	results := make([]ActionResult, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = h.jb.UseWithItem(context.Background(), h.withItem("minecraft:song1"))
		}(i)
	}
	close(start)
	wg.Wait()

	for i, r := range results {
		if r != Consume {
			t.Fatalf("call %d: result=%s want CONSUME", i, r)
		}
	}

	// Transitions are recorded inside the section, so their order is the
	// order the state actually changed in.
	if len(h.audit.entries) != n {
		t.Fatalf("transitions=%d want %d", len(h.audit.entries), n)
	}
	on := false
	for i, e := range h.audit.entries {
		next := h.jukebox.Bool(blockstate.StateID(e.To), hasRecord)
		prev := h.jukebox.Bool(blockstate.StateID(e.From), hasRecord)
		if prev != on || next == on {
			t.Fatalf("transition %d: %v->%v while state was %v (double start or stop)", i, prev, next, on)
		}
		on = next
	}

	starts, stops := 0, 0
	for _, ev := range h.events.snapshot() {
		switch ev.Kind {
		case level.WorldEventJukeboxStartsPlaying:
			starts++
		case level.WorldEventJukeboxStopsPlaying:
			stops++
		}
	}
	if starts-stops != 0 && starts-stops != 1 {
		t.Fatalf("starts=%d stops=%d", starts, stops)
	}
	if h.hasRecord(t) != (starts > stops) {
		t.Fatalf("final has_record=%v but starts=%d stops=%d", h.hasRecord(t), starts, stops)
	}
}

func TestLever_TogglesAndNotifies(t *testing.T) {
	h := newHarness(t)
	lever, _ := h.codec.Block(LeverID)
	_ = h.world.SetBlockState(context.Background(), h.pos, lever.DefaultState, 0)
	args := UseArgs{Block: lever, Pos: h.pos, World: h.world}

	var l Lever
	for i, want := range []int32{1, 0, 1} {
		if res := l.NormalUse(context.Background(), args); res != Consume {
			t.Fatalf("use %d: result=%s", i, res)
		}
		evs := h.events.snapshot()
		if got := evs[len(evs)-1]; got.Kind != level.WorldEventLeverToggled || got.Payload != want {
			t.Fatalf("use %d: event=%+v want payload %d", i, got, want)
		}
	}
	id, _ := h.world.BlockState(context.Background(), h.pos)
	if v, _ := lever.Get(id, "face"); v != "wall" {
		t.Fatalf("toggle must keep other properties, face=%q", v)
	}
}

func TestRegistry_WriteOnceThenSealed(t *testing.T) {
	r := NewRegistry()
	jb := NewJukebox(catalogs.NewRegistry(nil), nil)
	if err := r.Register(JukeboxID, jb); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(JukeboxID, jb); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err=%v want ErrDuplicate", err)
	}
	r.Seal()
	if err := r.Register(LeverID, Lever{}); !errors.Is(err, ErrSealed) {
		t.Fatalf("err=%v want ErrSealed", err)
	}
	if r.Get(JukeboxID) != Behavior(jb) {
		t.Fatalf("Get returned a different behavior")
	}
	if _, ok := r.Get("minecraft:stone").(Default); !ok {
		t.Fatalf("unknown ids should get Default")
	}
	if r.Has(LeverID) {
		t.Fatalf("lever was never registered")
	}
}

func TestRegisterDefaults(t *testing.T) {
	h := newHarness(t)
	r := NewRegistry()
	if err := RegisterDefaults(r, h.codec, Deps{Songs: catalogs.NewRegistry([]string{"cat"})}); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	r.Seal()
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != JukeboxID || ids[1] != LeverID {
		t.Fatalf("ids=%v", ids)
	}
}
