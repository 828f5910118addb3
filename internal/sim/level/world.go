// Package level is the in-memory world façade: block state storage, per-chunk
// exclusive sections, and fan-out of client-visible effects.
package level

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"voxelhooks.dev/internal/sim/blockstate"
)

var ErrOutOfBounds = errors.New("position out of bounds")

type BlockFlags uint8

const (
	// NotifyNeighbors is recorded for the storage engine; neighbor shape updates happen there.
	NotifyNeighbors BlockFlags = 1 << iota
	// NotifyListeners forwards the change to BlockUpdateSinks (client re-render).
	NotifyListeners
	// SkipDrops tells the breaking code not to spawn the block's drops.
	SkipDrops
	// ForceState writes and audits even when the state is unchanged.
	ForceState
)

type Config struct {
	MinY      int
	Height    int
	BoundaryR int // blocks; 0 = unbounded
}

type World struct {
	cfg   Config
	clock func() time.Time

	mu     sync.RWMutex
	chunks map[ChunkKey]*chunk

	sinkMu      sync.RWMutex
	eventSinks  []EventSink
	updateSinks []BlockUpdateSink
	auditLogger AuditLogger
}

type chunk struct {
	key    ChunkKey
	sem    chan struct{}
	blocks []blockstate.StateID // ChunkSize*ChunkSize*Height, y-major
}

func New(cfg Config) (*World, error) {
	if cfg.Height <= 0 {
		return nil, fmt.Errorf("level: height must be > 0, got %d", cfg.Height)
	}
	if cfg.BoundaryR < 0 {
		return nil, fmt.Errorf("level: boundary_r must be >= 0, got %d", cfg.BoundaryR)
	}
	return &World{
		cfg:    cfg,
		clock:  time.Now,
		chunks: map[ChunkKey]*chunk{},
	}, nil
}

func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

// AddEventSink registers s for world events and, if it implements
// BlockUpdateSink, for block updates.
func (w *World) AddEventSink(s EventSink) {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	w.eventSinks = append(w.eventSinks, s)
	if u, ok := s.(BlockUpdateSink); ok {
		w.updateSinks = append(w.updateSinks, u)
	}
}

func (w *World) InBounds(p BlockPos) bool {
	if p.Y < w.cfg.MinY || p.Y >= w.cfg.MinY+w.cfg.Height {
		return false
	}
	if r := w.cfg.BoundaryR; r > 0 {
		if p.X < -r || p.X > r || p.Z < -r || p.Z > r {
			return false
		}
	}
	return true
}

// BlockState reads the state at p. Out-of-bounds positions read as air.
func (w *World) BlockState(ctx context.Context, p BlockPos) (blockstate.StateID, error) {
	if !w.InBounds(p) {
		return 0, nil
	}
	c := w.chunkFor(p)
	if err := c.lock(ctx); err != nil {
		return 0, err
	}
	defer c.unlock()
	return c.blocks[w.index(p)], nil
}

func (w *World) SetBlockState(ctx context.Context, p BlockPos, id blockstate.StateID, flags BlockFlags) error {
	return w.Update(ctx, p, func(s *Section) error {
		s.Set(id, flags)
		return nil
	})
}

// Update runs fn inside the exclusive section covering p. The section spans
// the read of the current state through every write fn performs. Listener
// notifications are delivered after the section is released.
func (w *World) Update(ctx context.Context, p BlockPos, fn func(s *Section) error) error {
	if !w.InBounds(p) {
		return fmt.Errorf("update %s: %w", p, ErrOutOfBounds)
	}
	c := w.chunkFor(p)
	if err := c.lock(ctx); err != nil {
		return err
	}
	s := &Section{w: w, c: c, pos: p, idx: w.index(p), actor: ActorFrom(ctx)}
	err := runSection(s, fn)

	w.notifyUpdates(s.updates)
	return err
}

// runSection releases the section even when fn panics.
func runSection(s *Section, fn func(s *Section) error) error {
	defer func() {
		s.done = true
		s.c.unlock()
	}()
	return fn(s)
}

// EmitWorldEvent broadcasts a client-visible effect. It never blocks on a section.
func (w *World) EmitWorldEvent(ctx context.Context, kind WorldEventKind, p BlockPos, payload int32) {
	if ctx.Err() != nil {
		return
	}
	ev := WorldEvent{Kind: kind, Pos: p, Payload: payload, At: w.clock()}
	w.sinkMu.RLock()
	sinks := w.eventSinks
	w.sinkMu.RUnlock()
	for _, s := range sinks {
		s.WorldEvent(ev)
	}
}

func (w *World) LoadedChunkKeys() []ChunkKey {
	w.mu.RLock()
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	w.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (w *World) notifyUpdates(updates []BlockUpdate) {
	if len(updates) == 0 {
		return
	}
	w.sinkMu.RLock()
	sinks := w.updateSinks
	w.sinkMu.RUnlock()
	for _, u := range updates {
		for _, s := range sinks {
			s.BlockUpdated(u)
		}
	}
}

func (w *World) chunkFor(p BlockPos) *chunk {
	k := p.Chunk()
	w.mu.RLock()
	c, ok := w.chunks[k]
	w.mu.RUnlock()
	if ok {
		return c
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.chunks[k]; ok {
		return c
	}
	c = &chunk{
		key:    k,
		sem:    make(chan struct{}, 1),
		blocks: make([]blockstate.StateID, ChunkSize*ChunkSize*w.cfg.Height),
	}
	w.chunks[k] = c
	return c
}

func (w *World) index(p BlockPos) int {
	lx := mod(p.X, ChunkSize)
	lz := mod(p.Z, ChunkSize)
	ly := p.Y - w.cfg.MinY
	return (ly*ChunkSize+lz)*ChunkSize + lx
}

func (c *chunk) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chunk) unlock() { <-c.sem }

// Section is scoped access to one position while its chunk is held exclusively.
// It must not be retained after the Update callback returns.
type Section struct {
	w     *World
	c     *chunk
	pos   BlockPos
	idx   int
	actor string
	done  bool

	updates []BlockUpdate
}

func (s *Section) Pos() BlockPos { return s.pos }

func (s *Section) State() blockstate.StateID {
	s.mustBeOpen()
	return s.c.blocks[s.idx]
}

func (s *Section) Set(id blockstate.StateID, flags BlockFlags) {
	s.mustBeOpen()
	from := s.c.blocks[s.idx]
	if from == id && flags&ForceState == 0 {
		return
	}
	s.c.blocks[s.idx] = id
	if flags&NotifyListeners != 0 {
		s.updates = append(s.updates, BlockUpdate{Pos: s.pos, From: uint16(from), To: uint16(id)})
	}
	if s.w.auditLogger != nil {
		_ = s.w.auditLogger.WriteAudit(AuditEntry{
			Time:   s.w.clock(),
			Actor:  s.actor,
			Action: "SET_BLOCK",
			Pos:    s.pos.ToArray(),
			From:   uint16(from),
			To:     uint16(id),
			Flags:  uint8(flags),
		})
	}
}

func (s *Section) mustBeOpen() {
	if s.done {
		panic("level: section used after Update returned")
	}
}

type actorKey struct{}

// WithActor tags writes made under ctx with an actor id for the audit log.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string)
	return s
}
