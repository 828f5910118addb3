package block

import (
	"context"

	"voxelhooks.dev/internal/sim/level"
)

const (
	LeverID = "minecraft:lever"
	powered = "powered"
)

type Lever struct {
	Default
}

func (Lever) NormalUse(ctx context.Context, args UseArgs) ActionResult {
	_, now, err := updateToggle(ctx, args.World, args.Block, args.Pos, powered, func(on bool) bool { return !on })
	if err != nil {
		return Continue
	}
	var payload int32
	if now {
		payload = 1
	}
	args.World.EmitWorldEvent(ctx, level.WorldEventLeverToggled, args.Pos, payload)
	return Consume
}

// UseWithItem ignores the held item.
func (l Lever) UseWithItem(ctx context.Context, args UseWithItemArgs) ActionResult {
	return l.NormalUse(ctx, args.UseArgs)
}
