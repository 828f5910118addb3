package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"voxelhooks.dev/internal/command/args"
	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/block"
	"voxelhooks.dev/internal/sim/entity"
	"voxelhooks.dev/internal/sim/level"
	"voxelhooks.dev/internal/transport/ws"
)

type runtime struct {
	world    *level.World
	registry *block.Registry
	ws       *ws.Server
	idx      runtimeIndex
	jukebox  *jukeboxCommand
	log      *log.Logger
}

func (rt *runtime) mux(enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.handleMetrics)

	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", rt.handleState)
		mux.HandleFunc("/admin/v1/jukebox", rt.handleJukebox)
		mux.HandleFunc("/admin/v1/suggest", rt.handleSuggest)
	} else if rt.log != nil {
		rt.log.Printf("admin endpoints disabled (VH_ENABLE_ADMIN_HTTP=false)")
	}
	return mux
}

func (rt *runtime) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP voxelhooks_loaded_chunks Loaded chunk count.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_loaded_chunks gauge\n")
	fmt.Fprintf(rw, "voxelhooks_loaded_chunks %d\n", len(rt.world.LoadedChunkKeys()))

	wsStats := rt.ws.Stats()
	fmt.Fprintf(rw, "# HELP voxelhooks_ws_sessions Connected feed sessions.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_ws_sessions gauge\n")
	fmt.Fprintf(rw, "voxelhooks_ws_sessions %d\n", wsStats.Sessions)
	fmt.Fprintf(rw, "# HELP voxelhooks_ws_dropped_total Feed messages dropped on full session queues.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_ws_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelhooks_ws_dropped_total %d\n", wsStats.DroppedTotal)

	if rt.idx == nil {
		return
	}
	s := rt.idx.Stats()
	fmt.Fprintf(rw, "# HELP voxelhooks_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelhooks_index_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# HELP voxelhooks_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "voxelhooks_index_queue_capacity %d\n", s.QueueCapacity)
	fmt.Fprintf(rw, "# HELP voxelhooks_index_dropped_total Records the index dropped because its queue was full.\n")
	fmt.Fprintf(rw, "# TYPE voxelhooks_index_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelhooks_index_dropped_total{stream=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "voxelhooks_index_dropped_total{stream=%q} %d\n", "world_event", s.DropEventTotal)
	fmt.Fprintf(rw, "voxelhooks_index_dropped_total{stream=%q} %d\n", "listener_failure", s.DropFailureTotal)
}

func (rt *runtime) handleState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	resp := struct {
		Behaviors    []string                `json:"behaviors"`
		LoadedChunks int                     `json:"loaded_chunks"`
		WS           ws.Stats                `json:"ws"`
		Hints        []protocol.ArgumentHint `json:"jukebox_args"`
	}{
		Behaviors:    rt.registry.IDs(),
		LoadedChunks: len(rt.world.LoadedChunkKeys()),
		WS:           rt.ws.Stats(),
		Hints:        rt.jukebox.Hints().Args,
	}
	writeJSON(rw, http.StatusOK, resp)
}

type jukeboxRequest struct {
	Args string `json:"args"`
	// Origin, when set, runs the command as a positioned sender so relative
	// coordinates resolve against it.
	Origin *level.Vec3 `json:"origin,omitempty"`
}

func (rt *runtime) handleJukebox(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	var req jukeboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}

	var sender args.Sender = args.Console{}
	actor := entity.NewPlayer("console", "console", level.Vec3{})
	if req.Origin != nil {
		actor = entity.NewPlayer("console", "console", *req.Origin)
		sender = actor
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	res, err := rt.jukebox.Run(ctx, sender, actor, req.Args)
	if err != nil {
		code := args.Code(err)
		status := http.StatusBadRequest
		if code == protocol.ErrInternal || errors.Is(err, level.ErrOutOfBounds) {
			status = http.StatusUnprocessableEntity
		}
		writeError(rw, status, code, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

func (rt *runtime) handleSuggest(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("arg"))
	if name == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing arg")
		return
	}
	out, err := rt.jukebox.Suggest(r.Context(), args.Console{}, name, q.Get("input"))
	if err != nil {
		writeError(rw, http.StatusBadRequest, args.Code(err), err.Error())
		return
	}
	if out == nil {
		out = []protocol.Suggestion{}
	}
	writeJSON(rw, http.StatusOK, out)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
