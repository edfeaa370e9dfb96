/*
Copyright © 2026 juizo-game
*/

// The relay is deliberately dumb: it tracks presence per room and fans
// broadcast frames out to the other subscribers, verbatim. It never inspects
// payloads, never orders, never deduplicates, and never replays history to a
// late joiner. All game semantics live in the clients.

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/juizo-game/juizo/internal/wire"
)

type subscriber struct {
	conn    *websocket.Conn
	send    chan wire.Frame
	key     string
	limiter *rate.Limiter
}

type inboundFrame struct {
	sub   *subscriber
	frame wire.Frame
}

// Room is one channel namespace: a set of subscribers plus their last
// tracked presence records.
type Room struct {
	code string

	subscribers map[*subscriber]bool
	presence    map[string]json.RawMessage

	register   chan *subscriber
	unregister chan *subscriber
	inbound    chan inboundFrame

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(code string) *Room {
	now := time.Now()
	return &Room{
		code:        code,
		subscribers: make(map[*subscriber]bool),
		presence:    make(map[string]json.RawMessage),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		inbound:     make(chan inboundFrame),
		createdAt:   now,
		lastActive:  now,
	}
}

func (rm *Room) run(cfg *Config) {
	for {
		select {
		case sub := <-rm.register:
			rm.mu.Lock()
			rm.lastActive = time.Now()
			rm.subscribers[sub] = true
			snapshot := rm.presenceFrameLocked()
			rm.mu.Unlock()

			// Ack first: the client is not present until it sees this
			// and tracks itself. Then the live snapshot, which is all
			// the history a late joiner ever gets.
			sub.send <- wire.Frame{Type: wire.TypeSubscribed}
			sub.send <- snapshot

		case sub := <-rm.unregister:
			rm.mu.Lock()
			rm.lastActive = time.Now()

			if _, ok := rm.subscribers[sub]; ok {
				delete(rm.subscribers, sub)
				close(sub.send)
			}

			if _, tracked := rm.presence[sub.key]; tracked {
				delete(rm.presence, sub.key)
				rm.fanOutLocked(rm.presenceFrameLocked(), nil)
			}
			rm.mu.Unlock()

		case in := <-rm.inbound:
			rm.handleFrame(cfg, in)
		}
	}
}

func (rm *Room) handleFrame(cfg *Config, in inboundFrame) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.lastActive = time.Now()

	switch in.frame.Type {
	case wire.TypeTrack:
		if in.sub.key == "" || len(in.frame.Payload) == 0 {
			return
		}
		rm.presence[in.sub.key] = in.frame.Payload
		rm.fanOutLocked(rm.presenceFrameLocked(), nil)
		logf(cfg, "ROOMS: %s tracked in %s (%d present)", in.sub.key, rm.code, len(rm.presence))

	case wire.TypeBroadcast:
		if in.frame.Event == "" {
			return
		}
		// Senders apply their own transitions optimistically, so the
		// frame goes to everyone else only.
		rm.fanOutLocked(in.frame, in.sub)

	default:
		// Unknown frame types from newer clients are ignored.
	}
}

func (rm *Room) presenceFrameLocked() wire.Frame {
	state := make(wire.PresenceState, len(rm.presence))
	for key, rec := range rm.presence {
		state[key] = rec
	}

	payload, err := json.Marshal(state)
	if err != nil {
		payload = []byte("{}")
	}

	return wire.Frame{Type: wire.TypePresenceSync, Payload: payload}
}

// fanOutLocked delivers a frame to every subscriber except skip. A
// subscriber with a full send buffer is dropped rather than blocking the
// room.
func (rm *Room) fanOutLocked(f wire.Frame, skip *subscriber) {
	for sub := range rm.subscribers {
		if sub == skip {
			continue
		}
		select {
		case sub.send <- f:
		default:
			delete(rm.subscribers, sub)
			close(sub.send)
		}
	}
}

// closeAll disconnects every subscriber of this room (used by the reaper).
func (rm *Room) closeAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for sub := range rm.subscribers {
		close(sub.send)
		_ = sub.conn.Close()
		delete(rm.subscribers, sub)
	}
}

// RoomManager holds the live rooms, keyed by their 4-digit code. Rooms are
// created lazily on first subscribe; the host generated the code client-side
// and collisions across concurrent rooms are accepted.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRoomManager(idleTimeout time.Duration) *RoomManager {
	m := &RoomManager{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

func (m *RoomManager) getRoom(cfg *Config, code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rm, ok := m.rooms[code]; ok {
		return rm
	}

	rm := newRoom(code)
	m.rooms[code] = rm
	go rm.run(cfg)

	logf(cfg, "ROOMS: Opened room %s", code)

	return rm
}

// reaperLoop periodically removes rooms idle longer than idleTimeout.
func (m *RoomManager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-m.idleTimeout)

		m.mu.Lock()
		for code, rm := range m.rooms {
			rm.mu.RLock()
			last := rm.lastActive
			rm.mu.RUnlock()

			if last.Before(cutoff) {
				delete(m.rooms, code)
				go rm.closeAll()
			}
		}
		m.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func isRoomCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// serveRoomChannel subscribes a websocket client to the room named by :code,
// keyed by the client-generated presence key.
func serveRoomChannel(cfg *Config, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if !isRoomCode(code) {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "missing client key", http.StatusBadRequest)
			return
		}

		rm := m.getRoom(cfg, code)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		sub := &subscriber{
			conn:    conn,
			send:    make(chan wire.Frame, 16),
			key:     key,
			limiter: rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
		}

		rm.register <- sub

		go sub.writePump()
		sub.readPump(rm)
	}
}

func (s *subscriber) readPump(rm *Room) {
	defer func() {
		rm.unregister <- s
		_ = s.conn.Close()
	}()

	for {
		var f wire.Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}

		// Frames over the per-connection rate limit are dropped, not
		// fatal: one noisy client must not take the room down.
		if !s.limiter.Allow() {
			continue
		}

		rm.inbound <- inboundFrame{sub: s, frame: f}
	}
}

func (s *subscriber) writePump() {
	defer s.conn.Close()

	for f := range s.send {
		if err := s.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

// serveRoomQR renders a PNG QR code of the room join URL.
func serveRoomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if !isRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")
	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerRelay wires the per-room endpoints onto the router.
func registerRelay(cfg *Config, mux *httprouter.Router) *RoomManager {
	m := newRoomManager(cfg.roomTimeout)

	mux.GET(cfg.prefix+"/rooms/:code/ws", serveRoomChannel(cfg, m))
	mux.GET(cfg.prefix+"/rooms/:code/qr", serveRoomQR)

	return m
}
