// Package item holds item stacks behind a scoped, context-aware lock.
package item

import (
	"context"
	"strings"

	"voxelhooks.dev/internal/sim/catalogs"
)

// Descriptor is the static part of an item, copied out of the stack's lock.
type Descriptor struct {
	ID string
	// JukeboxPlayable is "<namespace>:<key>" or empty.
	JukeboxPlayable string
}

// MediaKey returns the key segment of the linked media. A link without a
// namespace separator has none; "minecraft:" has the empty key.
func (d Descriptor) MediaKey() (string, bool) {
	if d.JukeboxPlayable == "" {
		return "", false
	}
	parts := strings.SplitN(d.JukeboxPlayable, ":", 3)
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

type Stack struct {
	sem   chan struct{}
	def   catalogs.ItemDef
	count int
}

func NewStack(def catalogs.ItemDef, count int) *Stack {
	return &Stack{sem: make(chan struct{}, 1), def: def, count: count}
}

// Empty is the stack held by an empty hand.
func Empty() *Stack { return NewStack(catalogs.ItemDef{}, 0) }

// With runs fn while holding the stack exclusively.
func (s *Stack) With(ctx context.Context, fn func(def *catalogs.ItemDef, count *int)) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	fn(&s.def, &s.count)
	return nil
}

func (s *Stack) Descriptor(ctx context.Context) (Descriptor, error) {
	var d Descriptor
	err := s.With(ctx, func(def *catalogs.ItemDef, count *int) {
		if *count <= 0 {
			return
		}
		d = Descriptor{ID: def.ID, JukeboxPlayable: def.JukeboxPlayable}
	})
	return d, err
}

// Take removes up to n items and returns how many were removed.
func (s *Stack) Take(ctx context.Context, n int) (int, error) {
	var took int
	err := s.With(ctx, func(def *catalogs.ItemDef, count *int) {
		took = n
		if took > *count {
			took = *count
		}
		*count -= took
		if *count == 0 {
			*def = catalogs.ItemDef{}
		}
	})
	return took, err
}
