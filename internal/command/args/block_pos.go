package args

import (
	"context"

	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/level"
)

// BlockPosConsumer reads x, y and z as a grid position.
type BlockPosConsumer struct {
	Axes [3]AxisSpec
}

func NewBlockPosConsumer() BlockPosConsumer {
	return BlockPosConsumer{Axes: [3]AxisSpec{Horizontal, Vertical, Horizontal}}
}

func (BlockPosConsumer) Arity() int                            { return 3 }
func (BlockPosConsumer) DefaultName() string                   { return "block_pos" }
func (BlockPosConsumer) ClientParser() protocol.ArgumentParser { return protocol.ParserBlockPos }

func (BlockPosConsumer) SuggestionProvider() (protocol.SuggestionProvider, bool) {
	return "", false
}

func (c BlockPosConsumer) Consume(_ context.Context, sender Sender, raw *RawArgs) (Arg, error) {
	m := raw.Mark()
	coords, err := triple(raw, c.Axes)
	if err != nil {
		return nil, err
	}
	pos, err := resolveBlock(coords, sender)
	if err != nil {
		raw.Reset(m)
		return nil, err
	}
	return BlockPosArg{Pos: pos}, nil
}

func (BlockPosConsumer) Suggest(context.Context, Sender, string) ([]protocol.Suggestion, error) {
	return nil, nil
}

// resolveBlock yields all three axes or none.
func resolveBlock(coords [3]Coordinate, sender Sender) (level.BlockPos, error) {
	origin, ok := sender.Position()
	o := [3]float64{origin.X, origin.Y, origin.Z}
	var v [3]int
	for i, c := range coords {
		n, err := c.Block(o[i], ok)
		if err != nil {
			return level.BlockPos{}, err
		}
		v[i] = n
	}
	return level.BlockPos{X: v[0], Y: v[1], Z: v[2]}, nil
}
