package level

import (
	"fmt"
	"math"
)

const ChunkSize = 16

type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p BlockPos) Offset(dx, dy, dz int) BlockPos {
	return BlockPos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

func (p BlockPos) Chunk() ChunkKey {
	return ChunkKey{CX: floorDiv(p.X, ChunkSize), CZ: floorDiv(p.Z, ChunkSize)}
}

func (p BlockPos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func (p BlockPos) String() string { return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z) }

// Vec3 is a floating point world position (entities, command senders).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BlockPos floors every component toward negative infinity.
func (v Vec3) BlockPos() BlockPos {
	return BlockPos{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

type ChunkKey struct {
	CX int
	CZ int
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
