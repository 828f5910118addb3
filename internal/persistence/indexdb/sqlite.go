// Package indexdb keeps a queryable SQLite copy of the audit, world-event and
// listener-failure streams. The JSONL logs stay the source of truth; the index
// drops records rather than slow down the world.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/level"
	"voxelhooks.dev/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders enqueue against close(ch).
	mu     sync.RWMutex
	closed bool

	dropAudit   atomic.Uint64
	dropEvent   atomic.Uint64
	dropFailure atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqWorldEvent
	reqFailure
)

type req struct {
	kind reqKind

	audit   level.AuditEntry
	event   level.WorldEvent
	failure event.ListenerFailure
}

type Stats struct {
	DropAuditTotal   uint64 `json:"drop_audit_total"`
	DropEventTotal   uint64 `json:"drop_event_total"`
	DropFailureTotal uint64 `json:"drop_failure_total"`
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_state INTEGER NOT NULL,
			to_state INTEGER NOT NULL,
			flags INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor ON audits(actor, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos ON audits(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS world_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			kind INTEGER NOT NULL,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			data INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_world_events_pos ON world_events(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS listener_failures (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			listener_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL,
			error TEXT NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			discarded_cancel INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listener_failures_listener ON listener_failures(listener_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropAuditTotal:   s.dropAudit.Load(),
		DropEventTotal:   s.dropEvent.Load(),
		DropFailureTotal: s.dropFailure.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

// WriteAudit satisfies level.AuditLogger. It never blocks.
func (s *SQLiteIndex) WriteAudit(e level.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: e})
	return nil
}

// WorldEvent satisfies level.EventSink.
func (s *SQLiteIndex) WorldEvent(ev level.WorldEvent) {
	s.enqueue(req{kind: reqWorldEvent, event: ev})
}

// ListenerFailed satisfies event.FailureSink.
func (s *SQLiteIndex) ListenerFailed(f event.ListenerFailure) {
	s.enqueue(req{kind: reqFailure, failure: f})
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.countDrops(r.kind, 1)
	}
}

func (s *SQLiteIndex) countDrops(kind reqKind, n uint64) {
	if n == 0 {
		return
	}
	switch kind {
	case reqAudit:
		s.dropAudit.Add(n)
	case reqWorldEvent:
		s.dropEvent.Add(n)
	case reqFailure:
		s.dropFailure.Add(n)
	}
}

// UpsertCatalogs stores the catalogs and tuning the server runs with, keyed
// by digest, so indexed state ids can be decoded later.
func (s *SQLiteIndex) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		value  any
	}
	rows := []kv{
		{"blocks_palette", cats.Blocks.PaletteDigest, cats.Blocks.Palette},
		{"blocks_defs", cats.Blocks.DefsDigest, cats.Blocks.Defs},
		{"items_palette", cats.Items.PaletteDigest, cats.Items.Palette},
		{"items_defs", cats.Items.DefsDigest, cats.Items.Defs},
		{"jukebox_songs", cats.Songs.Digest, cats.Songs.Registry.Keys},
		{"tuning", tune.Digest, tune},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" {
			continue
		}
		b, err := json.Marshal(r.value)
		if err != nil {
			return fmt.Errorf("catalog %s: %w", r.name, err)
		}
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(b), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(time,actor,action,x,y,z,from_state,to_state,flags,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO world_events(time,kind,name,x,y,z,data) VALUES(?,?,?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT INTO listener_failures(time,listener_id,name,kind,reason,error,elapsed_ns,discarded_cancel) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, insertEvent, insertFailure} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 2000
		// pending counts the rows of the open batch per stream; they are
		// dropped together if the batch is lost.
		pending = map[reqKind]uint64{}
	)
	lose := func() {
		for k, n := range pending {
			s.countDrops(k, n)
		}
		clear(pending)
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			lose()
		}
		clear(pending)
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		lose()
		tx = nil
		opCount = 0
	}
	exec := func(kind reqKind, st *sql.Stmt, args ...any) {
		if st == nil {
			s.countDrops(kind, 1)
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.countDrops(kind, 1)
			rollback()
			return
		}
		pending[kind]++
		opCount++
	}

	for {
		select {
		case <-ticker.C:
			commit()
			continue
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				s.countDrops(r.kind, 1)
				continue
			}
			switch r.kind {
			case reqAudit:
				a := r.audit
				raw, _ := json.Marshal(a)
				exec(r.kind, insertAudit,
					a.Time.UTC().Format(time.RFC3339Nano),
					a.Actor,
					a.Action,
					a.Pos[0], a.Pos[1], a.Pos[2],
					int64(a.From),
					int64(a.To),
					int64(a.Flags),
					a.Reason,
					string(raw),
				)
			case reqWorldEvent:
				ev := r.event
				exec(r.kind, insertEvent,
					ev.At.UTC().Format(time.RFC3339Nano),
					int64(ev.Kind),
					ev.Kind.String(),
					ev.Pos.X, ev.Pos.Y, ev.Pos.Z,
					int64(ev.Payload),
				)
			case reqFailure:
				f := r.failure
				discarded := 0
				if f.DiscardedCancel {
					discarded = 1
				}
				exec(r.kind, insertFailure,
					f.Time.UTC().Format(time.RFC3339Nano),
					string(f.Listener),
					f.Name,
					f.Kind,
					f.Reason,
					f.Error,
					int64(f.Elapsed),
					discarded,
				)
			}
			if opCount >= commitEvery {
				commit()
			}
		}
	}
}
