package block

import (
	"context"
	"errors"
	"fmt"

	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/level"
)

var errReplaced = errors.New("block was replaced")

// updateToggle reads a boolean property and optionally writes a new value in
// one exclusive section. decide receives the current value and returns the
// desired one; returning the current value leaves the block untouched.
// Notifications belong to the caller and happen after this returns.
func updateToggle(ctx context.Context, w World, b *blockstate.Block, pos level.BlockPos, prop string, decide func(on bool) bool) (was, now bool, err error) {
	err = w.Update(ctx, pos, func(s *level.Section) error {
		cur := s.State()
		if !b.Owns(cur) {
			return fmt.Errorf("%s at %s: %w", b.ID, pos, errReplaced)
		}
		was = b.Bool(cur, prop)
		now = was
		next := decide(was)
		if next == was {
			return nil
		}
		id, err := b.WithBool(cur, prop, next)
		if err != nil {
			return err
		}
		s.Set(id, level.NotifyListeners)
		now = next
		return nil
	})
	return was, now, err
}
