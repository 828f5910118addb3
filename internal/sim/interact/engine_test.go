package interact

import (
	"context"
	"sync"
	"testing"

	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/block"
	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

type sink struct {
	mu      sync.Mutex
	events  []level.WorldEvent
	updates []level.BlockUpdate
}

func (s *sink) WorldEvent(ev level.WorldEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *sink) BlockUpdated(u level.BlockUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
}

func (s *sink) kinds() []level.WorldEventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]level.WorldEventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

type audits struct {
	mu      sync.Mutex
	entries []level.AuditEntry
}

func (a *audits) WriteAudit(e level.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

type fixture struct {
	engine *Engine
	cats   *catalogs.Catalogs
	codec  *blockstate.Codec
	world  *level.World
	bus    *event.Bus
	sink   *sink
	audits *audits
	player *entity.Player
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	codec, err := blockstate.NewCodec(cats.Blocks)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	w, err := level.New(level.Config{MinY: -64, Height: 384})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	reg := block.NewRegistry()
	if err := block.RegisterDefaults(reg, codec, block.Deps{Songs: cats.Songs.Registry}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Seal()
	bus := event.NewBus(event.Options{})

	f := &fixture{
		cats:   cats,
		codec:  codec,
		world:  w,
		bus:    bus,
		sink:   &sink{},
		audits: &audits{},
		player: entity.NewPlayer("P1", "alex", level.Vec3{X: 0.5, Y: 65, Z: 0.5}),
	}
	f.engine = &Engine{World: w, Codec: codec, Catalogs: cats, Behaviors: reg, Bus: bus}
	w.AddEventSink(f.sink)
	w.SetAuditLogger(f.audits)
	return f
}

func (f *fixture) set(t *testing.T, pos level.BlockPos, blockID string, props blockstate.Props) blockstate.StateID {
	t.Helper()
	id, err := f.codec.Encode(blockID, props)
	if err != nil {
		t.Fatalf("encode %s: %v", blockID, err)
	}
	if err := f.world.SetBlockState(context.Background(), pos, id, 0); err != nil {
		t.Fatalf("set %s: %v", pos, err)
	}
	return id
}

func (f *fixture) state(t *testing.T, pos level.BlockPos) blockstate.StateID {
	t.Helper()
	id, err := f.world.BlockState(context.Background(), pos)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return id
}

func (f *fixture) stack(t *testing.T, itemID string, n int) *item.Stack {
	t.Helper()
	def, ok := f.cats.Items.Defs[itemID]
	if !ok {
		t.Fatalf("unknown item %s", itemID)
	}
	return item.NewStack(def, n)
}

func count(t *testing.T, s *item.Stack) int {
	t.Helper()
	var n int
	if err := s.With(context.Background(), func(_ *catalogs.ItemDef, c *int) { n = *c }); err != nil {
		t.Fatalf("stack: %v", err)
	}
	return n
}

func TestBreakBlock_DropsAndExp(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 1, Y: 10, Z: 1}
	ore := f.set(t, pos, "minecraft:coal_ore", nil)

	var seen *event.BlockBreakEvent
	event.On(f.bus, event.KindBlockBreak, event.PriorityNormal, "observer", func(_ context.Context, ev *event.BlockBreakEvent) error {
		seen = ev
		return nil
	})

	out, err := f.engine.BreakBlock(context.Background(), f.player, pos)
	if err != nil {
		t.Fatalf("break: %v", err)
	}
	if !out.Broken || out.Cancelled {
		t.Fatalf("outcome: %+v", out)
	}
	if out.Exp != 2 || len(out.Drops) != 1 || out.Drops[0].Item != "minecraft:coal" {
		t.Fatalf("drops/exp: %+v", out)
	}
	if seen == nil || seen.Block().ID != "minecraft:coal_ore" || seen.Pos() != pos || seen.Player().ID() != "P1" {
		t.Fatalf("event: %+v", seen)
	}
	if f.state(t, pos) != 0 {
		t.Fatalf("block not removed")
	}
	evs := f.sink.events
	if len(evs) != 1 || evs[0].Kind != level.WorldEventBlockBroken || evs[0].Payload != int32(ore) {
		t.Fatalf("world events: %+v", evs)
	}
	last := f.audits.entries[len(f.audits.entries)-1]
	if last.Actor != "P1" || last.From != uint16(ore) || last.To != 0 {
		t.Fatalf("audit: %+v", last)
	}
}

func TestBreakBlock_CancelledLeavesWorldUntouched(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 2, Y: 10, Z: 2}
	playing := f.set(t, pos, block.JukeboxID, blockstate.Props{"has_record": "true"})
	f.audits.entries = nil

	event.On(f.bus, event.KindBlockBreak, event.PriorityNormal, "protect", func(_ context.Context, ev *event.BlockBreakEvent) error {
		ev.Cancel()
		return nil
	})

	out, err := f.engine.BreakBlock(context.Background(), f.player, pos)
	if err != nil {
		t.Fatalf("break: %v", err)
	}
	if out.Broken || !out.Cancelled || len(out.Drops) != 0 || out.Exp != 0 {
		t.Fatalf("outcome: %+v", out)
	}
	if f.state(t, pos) != playing {
		t.Fatalf("block changed")
	}
	if len(f.sink.kinds()) != 0 {
		t.Fatalf("unexpected world events: %v", f.sink.kinds())
	}
	if len(f.audits.entries) != 0 {
		t.Fatalf("unexpected writes: %+v", f.audits.entries)
	}
}

func TestBreakBlock_JukeboxSignalsStop(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: -3, Y: 0, Z: 7}
	f.set(t, pos, block.JukeboxID, blockstate.Props{"has_record": "true"})

	out, err := f.engine.BreakBlock(context.Background(), f.player, pos)
	if err != nil || !out.Broken {
		t.Fatalf("break: %+v %v", out, err)
	}
	kinds := f.sink.kinds()
	if len(kinds) != 2 || kinds[0] != level.WorldEventJukeboxStopsPlaying || kinds[1] != level.WorldEventBlockBroken {
		t.Fatalf("kinds: %v", kinds)
	}
}

func TestBreakBlock_ListenerSuppressesDrops(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 0, Y: 5, Z: 0}
	f.set(t, pos, "minecraft:stone", nil)

	event.On(f.bus, event.KindBlockBreak, event.PriorityNormal, "nodrops", func(_ context.Context, ev *event.BlockBreakEvent) error {
		ev.Drop = false
		return nil
	})

	out, err := f.engine.BreakBlock(context.Background(), f.player, pos)
	if err != nil || !out.Broken {
		t.Fatalf("break: %+v %v", out, err)
	}
	if len(out.Drops) != 0 {
		t.Fatalf("drops: %+v", out.Drops)
	}
	last := f.audits.entries[len(f.audits.entries)-1]
	if last.Flags&uint8(level.SkipDrops) == 0 {
		t.Fatalf("audit flags: %b", last.Flags)
	}
}

func TestBreakBlock_AirAndUnbreakable(t *testing.T) {
	f := newFixture(t)
	published := 0
	f.bus.Subscribe(event.KindBlockBreak, 0, "count", event.ListenerFunc(func(context.Context, event.Event) error {
		published++
		return nil
	}))

	out, err := f.engine.BreakBlock(context.Background(), f.player, level.BlockPos{X: 9, Y: 9, Z: 9})
	if err != nil || out.Broken {
		t.Fatalf("air: %+v %v", out, err)
	}
	// Out of bounds reads as air.
	out, err = f.engine.BreakBlock(context.Background(), f.player, level.BlockPos{Y: 10_000})
	if err != nil || out.Broken {
		t.Fatalf("oob: %+v %v", out, err)
	}
	if published != 0 {
		t.Fatalf("published %d events", published)
	}
}

func TestUseBlock_CancelledSkipsHook(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 4, Y: 64, Z: 4}
	playing := f.set(t, pos, block.JukeboxID, blockstate.Props{"has_record": "true"})

	id := event.On(f.bus, event.KindBlockUse, event.PriorityNormal, "deny", func(_ context.Context, ev *event.BlockUseEvent) error {
		ev.Cancel()
		return nil
	})

	out, err := f.engine.UseBlock(context.Background(), f.player, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if !out.Cancelled || f.state(t, pos) != playing {
		t.Fatalf("cancelled use changed state: %+v", out)
	}

	f.bus.Unsubscribe(id)
	out, err = f.engine.UseBlock(context.Background(), f.player, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if out.Result != block.Consume || out.Cancelled {
		t.Fatalf("outcome: %+v", out)
	}
	jb, _ := f.codec.Block(block.JukeboxID)
	if jb.Bool(f.state(t, pos), "has_record") {
		t.Fatalf("jukebox should have stopped")
	}
}

func TestUseBlockWithItem_DiscStartsJukebox(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 4, Y: 64, Z: 4}
	f.set(t, pos, block.JukeboxID, nil)
	disc := f.stack(t, "minecraft:music_disc_cat", 1)

	var usedItem string
	event.On(f.bus, event.KindBlockUse, event.PriorityNormal, "observer", func(_ context.Context, ev *event.BlockUseEvent) error {
		usedItem = ev.Item
		return nil
	})

	out, err := f.engine.UseBlockWithItem(context.Background(), f.player, disc, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if out.Result != block.Consume || out.Placed != nil {
		t.Fatalf("outcome: %+v", out)
	}
	if usedItem != "minecraft:music_disc_cat" {
		t.Fatalf("event item: %q", usedItem)
	}
	want, _ := f.cats.Songs.Registry.IndexOf("cat")
	evs := f.sink.events
	if len(evs) != 1 || evs[0].Kind != level.WorldEventJukeboxStartsPlaying || evs[0].Payload != int32(want) {
		t.Fatalf("events: %+v", evs)
	}
}

func TestUseBlockWithItem_PlacesOnTop(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 0, Y: 64, Z: 0}
	f.set(t, pos, "minecraft:stone", nil)
	dirt := f.stack(t, "minecraft:dirt", 1)

	out, err := f.engine.UseBlockWithItem(context.Background(), f.player, dirt, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	above := pos.Offset(0, 1, 0)
	if out.Placed == nil || *out.Placed != above || out.Result != block.Consume {
		t.Fatalf("outcome: %+v", out)
	}
	want, _ := f.codec.Encode("minecraft:dirt", nil)
	if f.state(t, above) != want {
		t.Fatalf("placed state: %d", f.state(t, above))
	}
	if count(t, dirt) != 0 {
		t.Fatalf("stack not consumed")
	}
}

func TestUseBlockWithItem_OccupiedRefunds(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 0, Y: 64, Z: 0}
	f.set(t, pos, "minecraft:stone", nil)
	f.set(t, pos.Offset(0, 1, 0), "minecraft:stone", nil)
	dirt := f.stack(t, "minecraft:dirt", 1)

	out, err := f.engine.UseBlockWithItem(context.Background(), f.player, dirt, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if out.Placed != nil || out.Result != block.Continue {
		t.Fatalf("outcome: %+v", out)
	}
	if count(t, dirt) != 1 {
		t.Fatalf("stack not refunded")
	}
	d, err := dirt.Descriptor(context.Background())
	if err != nil || d.ID != "minecraft:dirt" {
		t.Fatalf("descriptor after refund: %+v %v", d, err)
	}
}

func TestUseBlockWithItem_EmptyHand(t *testing.T) {
	f := newFixture(t)
	pos := level.BlockPos{X: 0, Y: 64, Z: 0}
	f.set(t, pos, "minecraft:stone", nil)

	out, err := f.engine.UseBlockWithItem(context.Background(), f.player, nil, pos)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if out.Result != block.Continue || out.Placed != nil {
		t.Fatalf("outcome: %+v", out)
	}
}
