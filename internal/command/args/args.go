// Package args turns raw command tokens into typed arguments.
//
// A Consumer pops a fixed number of tokens from a shared cursor. On failure
// it leaves the cursor where it found it, so callers can try another
// consumer or report a usage error.
package args

import (
	"context"
	"errors"
	"fmt"

	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/level"
)

var (
	ErrParse              = errors.New("malformed argument")
	ErrMissingOrigin      = errors.New("relative coordinate needs a positioned sender")
	ErrUnknownKey         = errors.New("unknown registry key")
	ErrInvalidConsumption = errors.New("invalid argument consumption")
)

// InvalidConsumptionError reports a lookup whose name was absent (Present
// false) or held a different argument type.
type InvalidConsumptionError struct {
	Name    string
	Present bool
}

func (e *InvalidConsumptionError) Error() string {
	if e.Present {
		return fmt.Sprintf("argument %q has the wrong type", e.Name)
	}
	return fmt.Sprintf("argument %q not consumed", e.Name)
}

func (e *InvalidConsumptionError) Unwrap() error { return ErrInvalidConsumption }

// Code maps an argument error to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingOrigin):
		return protocol.ErrMissingOrigin
	case errors.Is(err, ErrUnknownKey):
		return protocol.ErrInvalidTarget
	case errors.Is(err, ErrParse):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrInvalidConsumption):
		return protocol.ErrInvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrCancelled
	default:
		return protocol.ErrInternal
	}
}

// Sender is whoever runs the command. Position is the origin for relative
// coordinates.
type Sender interface {
	Position() (level.Vec3, bool)
}

// Console is a sender without a position.
type Console struct{}

func (Console) Position() (level.Vec3, bool) { return level.Vec3{}, false }

// Arg is one consumed argument value. The variants are BlockPosArg,
// PositionArg and SongArg.
type Arg interface {
	isArg()
}

type BlockPosArg struct{ Pos level.BlockPos }

type PositionArg struct{ Pos level.Vec3 }

// SongArg is a jukebox song resolved against the synced registry.
type SongArg struct {
	Key   string
	Index int
}

func (BlockPosArg) isArg() {}
func (PositionArg) isArg() {}
func (SongArg) isArg()     {}

// ConsumedArgs maps argument names to values for one invocation.
type ConsumedArgs map[string]Arg

type Consumer interface {
	// Arity is the number of tokens Consume pops on success.
	Arity() int
	ClientParser() protocol.ArgumentParser
	SuggestionProvider() (protocol.SuggestionProvider, bool)
	Consume(ctx context.Context, sender Sender, raw *RawArgs) (Arg, error)
	// Suggest returns completions for input in order. A nil slice means the
	// client handles completion itself.
	Suggest(ctx context.Context, sender Sender, input string) ([]protocol.Suggestion, error)
	DefaultName() string
}

func FindBlockPos(args ConsumedArgs, name string) (level.BlockPos, error) {
	v, err := find[BlockPosArg](args, name)
	return v.Pos, err
}

func FindPosition(args ConsumedArgs, name string) (level.Vec3, error) {
	v, err := find[PositionArg](args, name)
	return v.Pos, err
}

func FindSong(args ConsumedArgs, name string) (SongArg, error) {
	return find[SongArg](args, name)
}

func find[T Arg](args ConsumedArgs, name string) (T, error) {
	var zero T
	a, ok := args[name]
	if !ok {
		return zero, &InvalidConsumptionError{Name: name}
	}
	v, ok := a.(T)
	if !ok {
		return zero, &InvalidConsumptionError{Name: name, Present: true}
	}
	return v, nil
}

// RawArgs is a cursor over the tokens of one command line.
type RawArgs struct {
	tokens []string
	next   int
}

func NewRawArgs(tokens []string) *RawArgs {
	return &RawArgs{tokens: tokens}
}

func (r *RawArgs) Pop() (string, bool) {
	if r.next >= len(r.tokens) {
		return "", false
	}
	t := r.tokens[r.next]
	r.next++
	return t, true
}

func (r *RawArgs) Peek() (string, bool) {
	if r.next >= len(r.tokens) {
		return "", false
	}
	return r.tokens[r.next], true
}

// Len is the number of tokens left.
func (r *RawArgs) Len() int { return len(r.tokens) - r.next }

type Mark int

func (r *RawArgs) Mark() Mark { return Mark(r.next) }

func (r *RawArgs) Reset(m Mark) { r.next = int(m) }

// popN pops n tokens or none.
func (r *RawArgs) popN(n int) ([]string, error) {
	if r.Len() < n {
		return nil, fmt.Errorf("%w: expected %d tokens, have %d", ErrParse, n, r.Len())
	}
	out := r.tokens[r.next : r.next+n]
	r.next += n
	return out, nil
}
