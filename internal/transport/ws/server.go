package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelhooks.dev/internal/protocol"
	"voxelhooks.dev/internal/sim/level"
)

// Info is what a client receives right after HELLO.
type Info struct {
	WorldParams protocol.WorldParams
	Catalogs    protocol.CatalogDigests
	Hints       []protocol.CommandHintsMsg
	// MaxQueue caps the per-session outbound queue a client may ask for.
	MaxQueue int
}

// Server streams world events and block updates to connected clients. A
// slow client loses messages; it never holds up the world.
type Server struct {
	info Info
	log  *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// Feed clients stay silent after HELLO, so liveness comes from pongs.
	pongWait   time.Duration
	pingPeriod time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	dropped atomic.Uint64
}

type session struct {
	id           string
	conn         *websocket.Conn
	out          chan []byte
	blockUpdates bool
}

type Stats struct {
	Sessions     int    `json:"sessions"`
	DroppedTotal uint64 `json:"dropped_total"`
}

func NewServer(info Info, logger *log.Logger) *Server {
	if info.MaxQueue <= 0 {
		info.MaxQueue = 64
	}
	return &Server{
		info:       info,
		log:        logger,
		sessions:   map[string]*session{},
		pongWait:   60 * time.Second,
		pingPeriod: 30 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	return Stats{Sessions: n, DroppedTotal: s.dropped.Load()}
}

// WorldEvent satisfies level.EventSink.
func (s *Server) WorldEvent(ev level.WorldEvent) {
	b, err := json.Marshal(protocol.WorldEventMsg{
		Type:            protocol.TypeWorldEvent,
		ProtocolVersion: protocol.Version,
		Event:           int32(ev.Kind),
		Name:            ev.Kind.String(),
		Pos:             ev.Pos.ToArray(),
		Data:            ev.Payload,
		TimeMS:          ev.At.UnixMilli(),
	})
	if err != nil {
		return
	}
	s.broadcast(b, false)
}

// BlockUpdated satisfies level.BlockUpdateSink. Only sessions that asked for
// block updates in HELLO receive them.
func (s *Server) BlockUpdated(u level.BlockUpdate) {
	b, err := json.Marshal(protocol.BlockUpdateMsg{
		Type:            protocol.TypeBlockUpdate,
		ProtocolVersion: protocol.Version,
		Pos:             u.Pos.ToArray(),
		From:            u.From,
		To:              u.To,
	})
	if err != nil {
		return
	}
	s.broadcast(b, true)
}

func (s *Server) broadcast(b []byte, blockUpdate bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if blockUpdate && !sess.blockUpdates {
			continue
		}
		select {
		case sess.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close disconnects every session and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = sess.conn.Close()
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		if !s.register(sess) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			ping := time.NewTicker(s.pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Clients only send HELLO; anything later is ignored and
		// reading just keeps control frames flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.unregister(sess.id)
		cancel()
		<-writeDone
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > s.info.MaxQueue {
		maxQ = s.info.MaxQueue
	}
	sess := &session{
		id:           fmt.Sprintf("S%d", s.nextID.Add(1)),
		conn:         conn,
		out:          make(chan []byte, maxQ),
		blockUpdates: hello.Capabilities.BlockUpdates,
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		WorldParams:     s.info.WorldParams,
		Catalogs:        s.info.Catalogs,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	for _, h := range s.info.Hints {
		h.Type = protocol.TypeCommandHints
		h.ProtocolVersion = protocol.Version
		if err := writeJSON(conn, h); err != nil {
			return nil
		}
	}
	if s.log != nil {
		s.log.Printf("ws: session %s joined client=%q queue=%d", sess.id, hello.ClientName, maxQ)
	}
	return sess
}

func (s *Server) reject(conn *websocket.Conn, code, msg string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), time.Now().Add(time.Second))
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("ws: session %s left", id)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
