package args

import (
	"context"

	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/level"
)

// PositionConsumer reads x, y and z as a floating position. Whole absolute
// numbers on horizontal axes are moved to the block center.
type PositionConsumer struct {
	Axes [3]AxisSpec
}

func NewPositionConsumer() PositionConsumer {
	return PositionConsumer{Axes: [3]AxisSpec{Horizontal, Vertical, Horizontal}}
}

func (PositionConsumer) Arity() int                            { return 3 }
func (PositionConsumer) DefaultName() string                   { return "position" }
func (PositionConsumer) ClientParser() protocol.ArgumentParser { return protocol.ParserVec3 }

func (PositionConsumer) SuggestionProvider() (protocol.SuggestionProvider, bool) {
	return "", false
}

func (c PositionConsumer) Consume(_ context.Context, sender Sender, raw *RawArgs) (Arg, error) {
	m := raw.Mark()
	coords, err := triple(raw, c.Axes)
	if err != nil {
		return nil, err
	}
	origin, ok := sender.Position()
	o := [3]float64{origin.X, origin.Y, origin.Z}
	var v [3]float64
	for i, co := range coords {
		f, err := co.Resolve(o[i], ok)
		if err != nil {
			raw.Reset(m)
			return nil, err
		}
		if co.Integral && !co.Axis.Vertical {
			f += 0.5
		}
		v[i] = f
	}
	return PositionArg{Pos: level.Vec3{X: v[0], Y: v[1], Z: v[2]}}, nil
}

func (PositionConsumer) Suggest(context.Context, Sender, string) ([]protocol.Suggestion, error) {
	return nil, nil
}
