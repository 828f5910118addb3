// Package interact is the engine side of block interactions: it resolves the
// block's behavior, publishes the matching event, and applies or suppresses
// the default action.
package interact

import (
	"context"
	"errors"
	"fmt"

	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/block"
	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

type Logger interface {
	Printf(format string, v ...any)
}

type Engine struct {
	World     block.World
	Codec     *blockstate.Codec
	Catalogs  *catalogs.Catalogs
	Behaviors *block.Registry
	Bus       *event.Bus
	Log       Logger
}

// UseOutcome reports what happened to a use request.
type UseOutcome struct {
	Result    block.ActionResult
	Cancelled bool
	// Placed is set when the held item fell back to placing a block.
	Placed *level.BlockPos
}

type Drop struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type BreakOutcome struct {
	Broken    bool
	Cancelled bool
	Drops     []Drop
	Exp       uint32
}

var errStateChanged = errors.New("block changed while breaking")

// UseBlock is an empty-hand interaction.
func (e *Engine) UseBlock(ctx context.Context, actor entity.Actor, pos level.BlockPos) (UseOutcome, error) {
	ctx = withActor(ctx, actor)
	b, _, err := e.blockAt(ctx, pos)
	if err != nil {
		return UseOutcome{}, err
	}
	ev := event.NewBlockUseEvent(actor, b, pos, "")
	e.Bus.Publish(ctx, ev)
	if ev.Cancelled() {
		return UseOutcome{Result: block.Consume, Cancelled: true}, nil
	}
	res := e.Behaviors.Get(b.ID).NormalUse(ctx, block.UseArgs{Actor: actor, Block: b, Pos: pos, World: e.World})
	return UseOutcome{Result: res}, nil
}

// UseBlockWithItem runs the block's item hook; on Continue a placeable item
// is placed on top of the block.
func (e *Engine) UseBlockWithItem(ctx context.Context, actor entity.Actor, held *item.Stack, pos level.BlockPos) (UseOutcome, error) {
	if held == nil {
		held = item.Empty()
	}
	ctx = withActor(ctx, actor)
	b, _, err := e.blockAt(ctx, pos)
	if err != nil {
		return UseOutcome{}, err
	}
	desc, err := held.Descriptor(ctx)
	if err != nil {
		return UseOutcome{}, fmt.Errorf("use %s: read held item: %w", pos, err)
	}

	ev := event.NewBlockUseEvent(actor, b, pos, desc.ID)
	e.Bus.Publish(ctx, ev)
	if ev.Cancelled() {
		return UseOutcome{Result: block.Consume, Cancelled: true}, nil
	}

	args := block.UseWithItemArgs{
		UseArgs: block.UseArgs{Actor: actor, Block: b, Pos: pos, World: e.World},
		Item:    held,
	}
	res := e.Behaviors.Get(b.ID).UseWithItem(ctx, args)
	out := UseOutcome{Result: res}
	if res == block.Consume || desc.ID == "" {
		return out, nil
	}

	placed, err := e.place(ctx, desc.ID, held, pos.Offset(0, 1, 0))
	if err != nil {
		return out, err
	}
	if placed != nil {
		out.Placed = placed
		out.Result = block.Consume
	}
	return out, nil
}

// BreakBlock publishes a BlockBreakEvent and, unless cancelled, replaces the
// block with air, runs its Broken hook, and reports drops and experience.
func (e *Engine) BreakBlock(ctx context.Context, actor entity.Actor, pos level.BlockPos) (BreakOutcome, error) {
	ctx = withActor(ctx, actor)
	b, state, err := e.blockAt(ctx, pos)
	if err != nil {
		return BreakOutcome{}, err
	}
	def := e.Catalogs.Blocks.Defs[b.ID]
	if b.ID == catalogs.AirID || !def.Breakable {
		return BreakOutcome{}, nil
	}

	ev := event.NewBlockBreakEvent(actor, b, pos, def.Exp, def.DropsItem != "")
	e.Bus.Publish(ctx, ev)
	if ev.Cancelled() {
		return BreakOutcome{Cancelled: true}, nil
	}

	flags := level.NotifyNeighbors | level.NotifyListeners
	if !ev.Drop {
		flags |= level.SkipDrops
	}
	err = e.World.Update(ctx, pos, func(s *level.Section) error {
		if s.State() != state {
			return errStateChanged
		}
		s.Set(e.Codec.Air().DefaultState, flags)
		return nil
	})
	if errors.Is(err, errStateChanged) {
		return BreakOutcome{}, nil
	}
	if err != nil {
		return BreakOutcome{}, fmt.Errorf("break %s: %w", pos, err)
	}

	e.Behaviors.Get(b.ID).Broken(ctx, block.BrokenArgs{Actor: actor, Block: b, Pos: pos, World: e.World, State: state})
	e.World.EmitWorldEvent(ctx, level.WorldEventBlockBroken, pos, int32(state))

	out := BreakOutcome{Broken: true, Exp: ev.Exp}
	if ev.Drop && def.DropsItem != "" {
		out.Drops = []Drop{{Item: def.DropsItem, Count: 1}}
	}
	return out, nil
}

func (e *Engine) blockAt(ctx context.Context, pos level.BlockPos) (*blockstate.Block, blockstate.StateID, error) {
	state, err := e.World.BlockState(ctx, pos)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", pos, err)
	}
	b, err := e.Codec.BlockOf(state)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", pos, err)
	}
	return b, state, nil
}

func (e *Engine) place(ctx context.Context, itemID string, held *item.Stack, target level.BlockPos) (*level.BlockPos, error) {
	def := e.Catalogs.Items.Defs[itemID]
	placeAs := def.PlaceAs
	if placeAs == "" {
		return nil, nil
	}
	pb, ok := e.Codec.Block(placeAs)
	if !ok {
		e.logf("place %s: item %s places unknown block %s", target, itemID, placeAs)
		return nil, nil
	}

	// Take before the section so the item lock is never held inside it.
	n, err := held.Take(ctx, 1)
	if err != nil || n == 0 {
		return nil, err
	}
	placed := false
	err = e.World.Update(ctx, target, func(s *level.Section) error {
		if s.State() != e.Codec.Air().DefaultState {
			return nil
		}
		s.Set(pb.DefaultState, level.NotifyNeighbors|level.NotifyListeners)
		placed = true
		return nil
	})
	if !placed {
		e.refund(ctx, held, def)
	}
	if err != nil && !errors.Is(err, level.ErrOutOfBounds) {
		return nil, fmt.Errorf("place %s: %w", target, err)
	}
	if !placed {
		return nil, nil
	}
	return &target, nil
}

// refund puts back an item taken for a placement that did not happen.
func (e *Engine) refund(ctx context.Context, held *item.Stack, def catalogs.ItemDef) {
	err := held.With(context.WithoutCancel(ctx), func(d *catalogs.ItemDef, count *int) {
		if *count == 0 {
			*d = def
		}
		*count++
	})
	if err != nil {
		e.logf("refund %s: %v", def.ID, err)
	}
}

func (e *Engine) logf(format string, v ...any) {
	if e.Log != nil {
		e.Log.Printf(format, v...)
	}
}

func withActor(ctx context.Context, actor entity.Actor) context.Context {
	if actor == nil {
		return ctx
	}
	return level.WithActor(ctx, actor.ID())
}
