package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelhooks.dev/internal/command/args"
	persistlog "voxelhooks.dev/internal/persistence/log"
	"voxelhooks.dev/internal/plugin/event"
	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/block"
	"voxelhooks.dev/internal/sim/blockstate"
	"voxelhooks.dev/internal/sim/catalogs"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/interact"
	"voxelhooks.dev/internal/sim/level"
	"voxelhooks.dev/internal/sim/tuning"
	"voxelhooks.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (audits, world events, listener failures)")
		jukeboxAt  = flag.String("jukebox_at", "", `place a playing jukebox at startup: "<x> <y> <z> <song>"`)
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	codec, err := blockstate.NewCodec(cats.Blocks)
	if err != nil {
		logger.Fatalf("block states: %v", err)
	}
	w, err := level.New(level.Config{MinY: tune.World.MinY, Height: tune.World.Height, BoundaryR: tune.World.BoundaryR})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	reg := block.NewRegistry()
	if err := block.RegisterDefaults(reg, codec, block.Deps{Songs: cats.Songs.Registry, Log: logger}); err != nil {
		logger.Fatalf("register behaviors: %v", err)
	}
	reg.Seal()

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(context.Background(), cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(*dataDir, persistlog.WriterOptions{})
	eventLog := persistlog.NewWorldEventLogger(*dataDir, persistlog.WriterOptions{}, logger)
	failureLog := persistlog.NewFailureLogger(*dataDir, persistlog.WriterOptions{}, logger)
	defer auditLog.Close()
	defer eventLog.Close()
	defer failureLog.Close()

	failures := multiFailureSink{failureLog}
	audits := multiAuditLogger{auditLog}
	w.AddEventSink(eventLog)
	if idx != nil {
		failures = append(failures, idx)
		audits = append(audits, idx)
		w.AddEventSink(idx)
	}
	w.SetAuditLogger(audits)

	bus := event.NewBus(event.Options{
		ListenerTimeout: tune.Events.ListenerTimeout(),
		Log:             logger,
		Failures:        failures,
	})
	engine := &interact.Engine{
		World:     w,
		Codec:     codec,
		Catalogs:  cats,
		Behaviors: reg,
		Bus:       bus,
		Log:       logger,
	}

	jukebox, err := newJukeboxCommand(engine, w, codec, cats)
	if err != nil {
		logger.Fatalf("jukebox command: %v", err)
	}

	wsSrv := ws.NewServer(ws.Info{
		WorldParams: protocol.WorldParams{
			ChunkSize: level.ChunkSize,
			MinY:      tune.World.MinY,
			Height:    tune.World.Height,
			BoundaryR: tune.World.BoundaryR,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			ItemPalette:  protocol.DigestRef{Digest: cats.Items.PaletteDigest, Count: len(cats.Items.Palette)},
			JukeboxSongs: protocol.DigestRef{Digest: cats.Songs.Digest, Count: cats.Songs.Registry.Len()},
			TuningDigest: tune.Digest,
		},
		Hints:    []protocol.CommandHintsMsg{jukebox.Hints()},
		MaxQueue: tune.WS.MaxQueue,
	}, logger)
	w.AddEventSink(wsSrv)

	ctx, cancel := signalContext()
	defer cancel()

	if line := strings.TrimSpace(*jukeboxAt); line != "" {
		console := entity.NewPlayer("console", "console", level.Vec3{})
		res, err := jukebox.Run(ctx, args.Console{}, console, line)
		if err != nil {
			logger.Fatalf("-jukebox_at %q: %s: %v", line, args.Code(err), err)
		}
		logger.Printf("jukebox at %v song=%s index=%d result=%s", res.Pos, res.Song, res.Index, res.Result)
	}

	rt := &runtime{
		world:    w,
		registry: reg,
		ws:       wsSrv,
		idx:      idx,
		jukebox:  jukebox,
		log:      logger,
	}
	mux := rt.mux(envBool("VH_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()))
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		wsSrv.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s behaviors=%v songs=%d", *addr, reg.IDs(), cats.Songs.Registry.Len())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
