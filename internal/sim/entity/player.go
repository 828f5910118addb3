package entity

import (
	"sync"

	"voxelhooks.dev/internal/sim/item"
	"voxelhooks.dev/internal/sim/level"
)

// Actor is anything that can trigger an interaction.
type Actor interface {
	ID() string
}

type Player struct {
	id   string
	name string

	mu   sync.RWMutex
	pos  level.Vec3
	held *item.Stack
}

func NewPlayer(id, name string, pos level.Vec3) *Player {
	return &Player{id: id, name: name, pos: pos, held: item.Empty()}
}

func (p *Player) ID() string   { return p.id }
func (p *Player) Name() string { return p.name }

// Position satisfies the command sender contract; players always have one.
func (p *Player) Position() (level.Vec3, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos, true
}

func (p *Player) MoveTo(pos level.Vec3) {
	p.mu.Lock()
	p.pos = pos
	p.mu.Unlock()
}

func (p *Player) MainHand() *item.Stack {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.held
}

func (p *Player) SetMainHand(s *item.Stack) {
	if s == nil {
		s = item.Empty()
	}
	p.mu.Lock()
	p.held = s
	p.mu.Unlock()
}
