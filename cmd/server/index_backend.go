package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelhooks.dev/internal/persistence/indexdb"
	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/level"
	"voxelhooks.dev/internal/sim/tuning"
)

type runtimeIndex interface {
	level.AuditLogger
	level.EventSink
	event.FailureSink
	Close() error
	UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VH_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "world.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported VH_INDEX_BACKEND: %s", backend)
	}
}
