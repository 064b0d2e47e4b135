package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bizdesk/pkg/approval"
	"bizdesk/pkg/model"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

// wsConn queues events for a single writer goroutine; gorilla connections
// allow one writer at a time.
type wsConn struct {
	c    *websocket.Conn
	out  chan model.Event
	done chan struct{}
	once sync.Once
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c, out: make(chan model.Event, sendBuffer), done: make(chan struct{})}
}

// enqueue never blocks; it reports false when the buffer is full.
func (w *wsConn) enqueue(ev model.Event) bool {
	select {
	case w.out <- ev:
		return true
	default:
		return false
	}
}

func (w *wsConn) close() {
	w.once.Do(func() {
		close(w.done)
		_ = w.c.Close()
	})
}

// Hub keeps the open push connections of each user. A user may hold several
// (one per browser tab); every event goes to all of them.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger
	mu       sync.RWMutex
	conns    map[string]map[*wsConn]struct{}
}

var _ approval.Publisher = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:   log.With().Str("component", "hub").Logger(),
		conns: map[string]map[*wsConn]struct{}{},
	}
}

// Publish queues ev on every connection of userID without blocking. Offline
// users miss it; a connection whose buffer is full is dropped.
func (h *Hub) Publish(userID string, ev model.Event) {
	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		h.log.Debug().Str("user", userID).Str("type", ev.Type).Msg("ws publish skipped; user not connected")
		return
	}
	for _, c := range targets {
		if !c.enqueue(ev) {
			h.log.Warn().Str("user", userID).Str("type", ev.Type).Msg("ws send buffer full; dropping connection")
			h.drop(userID, c)
		}
	}
}

// Connected reports how many connections userID holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.Hub.serve(w, r, actor.ID)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user", userID).Msg("ws upgrade failed")
		return
	}
	conn := newWSConn(c)
	h.register(userID, conn)
	h.log.Info().Str("user", userID).Msg("ws connected")
	go h.writeLoop(userID, conn)
	go h.readLoop(userID, conn)
}

func (h *Hub) register(userID string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = map[*wsConn]struct{}{}
	}
	h.conns[userID][c] = struct{}{}
}

func (h *Hub) writeLoop(userID string, c *wsConn) {
	for {
		select {
		case ev := <-c.out:
			_ = c.c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.c.WriteJSON(ev); err != nil {
				h.log.Warn().Err(err).Str("user", userID).Msg("ws send failed")
				h.drop(userID, c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop drains client frames so control messages are processed, and
// unregisters the connection once the client goes away.
func (h *Hub) readLoop(userID string, c *wsConn) {
	defer h.drop(userID, c)
	for {
		if _, _, err := c.c.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(userID string, c *wsConn) {
	c.close()
	h.mu.Lock()
	if set, ok := h.conns[userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, userID)
			}
			h.log.Info().Str("user", userID).Msg("ws disconnected")
		}
	}
	h.mu.Unlock()
}
