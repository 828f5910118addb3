// Package blockstate encodes a block type's property bag as a compact state id.
//
// Every block owns a contiguous id range starting at Block.FirstState. Inside
// the range the offset is mixed-radix over property value indices, with the
// last declared property varying fastest. Blocks without properties own
// exactly one id.
package blockstate

import (
	"fmt"
	"sort"
	"strconv"

	"voxelhooks.dev/internal/sim/catalogs"
)

type StateID uint16

// MaxStates is the size of the state id space.
const MaxStates = 1 << 16

// Props is a named property bag. Decode always returns every property of the block.
type Props map[string]string

type Property struct {
	Name    string
	Values  []string
	Default int
	stride  int
}

type Block struct {
	ID           string
	Index        uint16
	Properties   []Property
	FirstState   StateID
	StateCount   int
	DefaultState StateID
}

type Codec struct {
	blocks []*Block
	byID   map[string]*Block
}

func NewCodec(cat catalogs.BlockCatalog) (*Codec, error) {
	c := &Codec{
		blocks: make([]*Block, 0, len(cat.Palette)),
		byID:   make(map[string]*Block, len(cat.Palette)),
	}
	next := 0
	for i, id := range cat.Palette {
		def, ok := cat.Defs[id]
		if !ok {
			return nil, fmt.Errorf("blockstate: palette entry %s has no def", id)
		}
		b := &Block{ID: id, Index: uint16(i), FirstState: StateID(next)}

		count := 1
		b.Properties = make([]Property, len(def.Properties))
		for j := len(def.Properties) - 1; j >= 0; j-- {
			pd := def.Properties[j]
			p := Property{Name: pd.Name, Values: append([]string(nil), pd.Values...), stride: count}
			if pd.Default != "" {
				p.Default = valueIndex(p.Values, pd.Default)
			}
			b.Properties[j] = p
			count *= len(p.Values)
		}
		b.StateCount = count
		if next+count > MaxStates {
			return nil, fmt.Errorf("blockstate: state id space exhausted at %s", id)
		}
		next += count

		def0 := 0
		for _, p := range b.Properties {
			def0 += p.Default * p.stride
		}
		b.DefaultState = b.FirstState + StateID(def0)

		c.blocks = append(c.blocks, b)
		c.byID[id] = b
	}
	return c, nil
}

// Block returns the block type registered under id.
func (c *Codec) Block(id string) (*Block, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Air is palette entry 0 and therefore state 0.
func (c *Codec) Air() *Block { return c.blocks[0] }

func (c *Codec) TotalStates() int {
	last := c.blocks[len(c.blocks)-1]
	return int(last.FirstState) + last.StateCount
}

// BlockOf returns the block type that owns id.
func (c *Codec) BlockOf(id StateID) (*Block, error) {
	i := sort.Search(len(c.blocks), func(i int) bool {
		return c.blocks[i].FirstState > id
	}) - 1
	if i < 0 || int(id) >= int(c.blocks[i].FirstState)+c.blocks[i].StateCount {
		return nil, fmt.Errorf("blockstate: unknown state id %d", id)
	}
	return c.blocks[i], nil
}

func (c *Codec) Encode(blockID string, props Props) (StateID, error) {
	b, ok := c.byID[blockID]
	if !ok {
		return 0, fmt.Errorf("blockstate: unknown block %s", blockID)
	}
	return b.Encode(props)
}

func (c *Codec) Decode(id StateID) (*Block, Props, error) {
	b, err := c.BlockOf(id)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Decode(id), nil
}

func (b *Block) Encode(props Props) (StateID, error) {
	for name := range props {
		if b.property(name) == nil {
			return 0, fmt.Errorf("blockstate: %s has no property %s", b.ID, name)
		}
	}
	off := 0
	for _, p := range b.Properties {
		vi := p.Default
		if v, ok := props[p.Name]; ok {
			vi = valueIndex(p.Values, v)
			if vi < 0 {
				return 0, fmt.Errorf("blockstate: %s.%s has no value %q", b.ID, p.Name, v)
			}
		}
		off += vi * p.stride
	}
	return b.FirstState + StateID(off), nil
}

// Decode assumes id belongs to b.
func (b *Block) Decode(id StateID) Props {
	off := int(id - b.FirstState)
	out := make(Props, len(b.Properties))
	for _, p := range b.Properties {
		out[p.Name] = p.Values[(off/p.stride)%len(p.Values)]
	}
	return out
}

func (b *Block) Owns(id StateID) bool {
	return id >= b.FirstState && int(id) < int(b.FirstState)+b.StateCount
}

// Get reads one property without building a bag.
func (b *Block) Get(id StateID, name string) (string, bool) {
	p := b.property(name)
	if p == nil || !b.Owns(id) {
		return "", false
	}
	off := int(id - b.FirstState)
	return p.Values[(off/p.stride)%len(p.Values)], true
}

// With returns id with a single property replaced.
func (b *Block) With(id StateID, name, value string) (StateID, error) {
	p := b.property(name)
	if p == nil {
		return 0, fmt.Errorf("blockstate: %s has no property %s", b.ID, name)
	}
	if !b.Owns(id) {
		return 0, fmt.Errorf("blockstate: state %d is not a %s", id, b.ID)
	}
	vi := valueIndex(p.Values, value)
	if vi < 0 {
		return 0, fmt.Errorf("blockstate: %s.%s has no value %q", b.ID, name, value)
	}
	off := int(id - b.FirstState)
	cur := (off / p.stride) % len(p.Values)
	off += (vi - cur) * p.stride
	return b.FirstState + StateID(off), nil
}

func (b *Block) Bool(id StateID, name string) bool {
	v, _ := b.Get(id, name)
	return v == "true"
}

func (b *Block) WithBool(id StateID, name string, v bool) (StateID, error) {
	return b.With(id, name, strconv.FormatBool(v))
}

func (b *Block) property(name string) *Property {
	for i := range b.Properties {
		if b.Properties[i].Name == name {
			return &b.Properties[i]
		}
	}
	return nil
}

func valueIndex(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
