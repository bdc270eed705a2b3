// Package push fans view events out to the websocket clients of each page session.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babbling-brook/streambed/frontend/internal/metrics"
	"github.com/babbling-brook/streambed/shared/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

type subscriber struct {
	out  chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.out) })
}

type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub accepts websocket upgrades from allowedOrigins; an empty list only allows
// same-origin clients.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		log:  logger.Component("push"),
		subs: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

func (h *Hub) subscribe(session string) *subscriber {
	sub := &subscriber{out: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.subs[session] == nil {
		h.subs[session] = make(map[*subscriber]struct{})
	}
	h.subs[session][sub] = struct{}{}
	h.mu.Unlock()
	metrics.PushClients.Inc()
	return sub
}

func (h *Hub) unsubscribe(session string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[session]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			metrics.PushClients.Dec()
		}
		if len(set) == 0 {
			delete(h.subs, session)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish sends msg to every client of session. A client whose buffer is full misses
// the message rather than stalling the publisher.
func (h *Hub) Publish(session string, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("push message not encodable", "session", session, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[session] {
		select {
		case sub.out <- b:
		default:
			h.log.Warn("push client too slow, message dropped", "session", session)
		}
	}
}

// Clients returns how many websocket clients session has.
func (h *Hub) Clients(session string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[session])
}

// CloseSession disconnects every client of session.
func (h *Hub) CloseSession(session string) {
	h.mu.Lock()
	set := h.subs[session]
	delete(h.subs, session)
	h.mu.Unlock()
	for sub := range set {
		metrics.PushClients.Dec()
		sub.close()
	}
}

// Handler upgrades the request and streams the session's messages until either side
// goes away. resolve maps the request to its session id.
func (h *Hub) Handler(resolve func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolve(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sub := h.subscribe(session)
		defer h.unsubscribe(session, sub)

		done := make(chan struct{})
		go h.readLoop(conn, done)
		h.writeLoop(conn, sub, done)
	}
}

// readLoop discards client frames; it only keeps the read deadline moving and
// notices when the client leaves.
func (h *Hub) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case b, ok := <-sub.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
