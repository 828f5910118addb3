// Package block dispatches interaction hooks to per-block-type behaviors.
package block

import (
	"context"

	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

type ActionResult int

const (
	// Continue lets default handling (e.g. placing the held item) proceed.
	Continue ActionResult = iota
	// Consume marks the interaction as fully handled.
	Consume
)

func (r ActionResult) String() string {
	if r == Consume {
		return "CONSUME"
	}
	return "CONTINUE"
}

// World is the part of the world façade hooks may touch.
type World interface {
	BlockState(ctx context.Context, pos level.BlockPos) (blockstate.StateID, error)
	Update(ctx context.Context, pos level.BlockPos, fn func(s *level.Section) error) error
	EmitWorldEvent(ctx context.Context, kind level.WorldEventKind, pos level.BlockPos, payload int32)
}

type Logger interface {
	Printf(format string, v ...any)
}

type UseArgs struct {
	Actor entity.Actor // nil when no entity is involved
	Block *blockstate.Block
	Pos   level.BlockPos
	World World
}

type UseWithItemArgs struct {
	UseArgs
	Item *item.Stack
}

type BrokenArgs struct {
	Actor entity.Actor
	Block *blockstate.Block
	Pos   level.BlockPos
	World World
	// State is the state the block had before it was removed.
	State blockstate.StateID
}

type Behavior interface {
	NormalUse(ctx context.Context, args UseArgs) ActionResult
	UseWithItem(ctx context.Context, args UseWithItemArgs) ActionResult
	Broken(ctx context.Context, args BrokenArgs)
}

// Default does nothing and lets fallback handling run. Embed it to implement
// only the hooks a block cares about.
type Default struct{}

func (Default) NormalUse(context.Context, UseArgs) ActionResult           { return Continue }
func (Default) UseWithItem(context.Context, UseWithItemArgs) ActionResult { return Continue }
func (Default) Broken(context.Context, BrokenArgs)                        {}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
