package block

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
)

var (
	ErrSealed    = errors.New("behavior registry is sealed")
	ErrDuplicate = errors.New("behavior already registered")
)

// Registry maps block ids to behaviors. It is filled at startup and sealed;
// after Seal lookups take no lock.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]Behavior
	sealed atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Behavior{}}
}

func (r *Registry) Register(blockID string, b Behavior) error {
	if b == nil {
		return fmt.Errorf("register %s: nil behavior", blockID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return fmt.Errorf("register %s: %w", blockID, ErrSealed)
	}
	if _, ok := r.byID[blockID]; ok {
		return fmt.Errorf("register %s: %w", blockID, ErrDuplicate)
	}
	r.byID[blockID] = b
	return nil
}

func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Get never fails: unknown ids get Default.
func (r *Registry) Get(blockID string) Behavior {
	if b, ok := r.lookup(blockID); ok {
		return b
	}
	return Default{}
}

func (r *Registry) Has(blockID string) bool {
	_, ok := r.lookup(blockID)
	return ok
}

func (r *Registry) IDs() []string {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) lookup(blockID string) (Behavior, bool) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	b, ok := r.byID[blockID]
	return b, ok
}

type Deps struct {
	Songs catalogs.Registry
	Log   Logger
}

// RegisterDefaults installs the built-in behaviors for blocks present in codec.
func RegisterDefaults(r *Registry, codec *blockstate.Codec, deps Deps) error {
	builtins := []struct {
		id string
		b  Behavior
	}{
		{JukeboxID, NewJukebox(deps.Songs, deps.Log)},
		{LeverID, Lever{}},
	}
	for _, bi := range builtins {
		if _, ok := codec.Block(bi.id); !ok {
			continue
		}
		if err := r.Register(bi.id, bi.b); err != nil {
			return err
		}
	}
	return nil
}
