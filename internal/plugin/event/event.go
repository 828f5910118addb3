// Package event is the cancellable domain-event bus exposed to plugins.
package event

import (
	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/level"
)

type Event interface {
	Kind() string
	Cancelled() bool
	Cancel()

	snapshot() bool
	restore(cancelled bool)
}

// Cancellation is embedded by every event. The flag starts false and can
// only be raised by listeners.
type Cancellation struct {
	cancelled bool
}

func (c *Cancellation) Cancelled() bool { return c.cancelled }
func (c *Cancellation) Cancel()         { c.cancelled = true }

func (c *Cancellation) snapshot() bool         { return c.cancelled }
func (c *Cancellation) restore(cancelled bool) { c.cancelled = cancelled }

// BlockEvent exposes the affected block to listeners that do not know the
// concrete event type.
type BlockEvent interface {
	Event
	Block() *blockstate.Block
	Pos() level.BlockPos
}

type PlayerEvent interface {
	Event
	// Player is nil when no entity was involved.
	Player() entity.Actor
}

const (
	KindBlockBreak = "block_break"
	KindBlockUse   = "block_use"
)

// BlockBreakEvent fires before a block is removed. Cancelling it keeps the
// block, and no drops or experience are produced.
type BlockBreakEvent struct {
	Cancellation

	Actor    entity.Actor
	Target   *blockstate.Block
	Position level.BlockPos
	Exp      uint32
	Drop     bool
}

func NewBlockBreakEvent(actor entity.Actor, b *blockstate.Block, pos level.BlockPos, exp uint32, drop bool) *BlockBreakEvent {
	return &BlockBreakEvent{Actor: actor, Target: b, Position: pos, Exp: exp, Drop: drop}
}

func (e *BlockBreakEvent) Kind() string             { return KindBlockBreak }
func (e *BlockBreakEvent) Block() *blockstate.Block { return e.Target }
func (e *BlockBreakEvent) Pos() level.BlockPos      { return e.Position }
func (e *BlockBreakEvent) Player() entity.Actor     { return e.Actor }

// BlockUseEvent fires before a block's use hooks run. Cancelling it skips the
// hooks and any fallback placement.
type BlockUseEvent struct {
	Cancellation

	Actor    entity.Actor
	Target   *blockstate.Block
	Position level.BlockPos
	// Item is the held item id, empty for an empty hand.
	Item string
}

func NewBlockUseEvent(actor entity.Actor, b *blockstate.Block, pos level.BlockPos, itemID string) *BlockUseEvent {
	return &BlockUseEvent{Actor: actor, Target: b, Position: pos, Item: itemID}
}

func (e *BlockUseEvent) Kind() string             { return KindBlockUse }
func (e *BlockUseEvent) Block() *blockstate.Block { return e.Target }
func (e *BlockUseEvent) Pos() level.BlockPos      { return e.Position }
func (e *BlockUseEvent) Player() entity.Actor     { return e.Actor }
