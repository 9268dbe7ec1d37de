// Package feed pushes recorded surge snapshots to dashboard websockets.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/surge-dashboard/internal/models"
)

const writeWait = 5 * time.Second

// Message is what subscribers receive for every recorded snapshot.
type Message struct {
	Type    string               `json:"type"`
	Records []models.SurgeRecord `json:"records"`
}

// session is a connected subscriber. zone, when set, filters records.
type session struct {
	conn *websocket.Conn
	zone string
	mu   sync.Mutex
}

func (s *session) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Hub holds subscriber sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

func (h *Hub) add(conn *websocket.Conn, zone string) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = &session{conn: conn, zone: zone}
	return id
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Record broadcasts a snapshot; it satisfies surge.Sink. Subscribers that
// fail to receive are dropped and do not fail the snapshot.
func (h *Hub) Record(_ context.Context, recs []models.SurgeRecord) error {
	h.mu.RLock()
	targets := make(map[string]*session, len(h.sessions))
	for id, s := range h.sessions {
		targets[id] = s
	}
	h.mu.RUnlock()

	for id, s := range targets {
		msg := Message{Type: "surge", Records: filter(recs, s.zone)}
		if len(msg.Records) == 0 {
			continue
		}
		if err := s.send(msg); err != nil {
			h.logger.Warn("ws send failed, dropping subscriber", "session", id, "error", err)
			h.remove(id)
		}
	}
	return nil
}

func filter(recs []models.SurgeRecord, zone string) []models.SurgeRecord {
	if zone == "" {
		return recs
	}
	var out []models.SurgeRecord
	for _, r := range recs {
		if r.ZoneID == zone {
			out = append(out, r)
		}
	}
	return out
}

// ServeHTTP upgrades the request and keeps the subscriber until it
// disconnects. ?zone= limits the feed to one zone.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	id := h.add(conn, r.URL.Query().Get("zone"))
	h.logger.Info("ws subscriber connected", "session", id)
	defer func() {
		h.remove(id)
		h.logger.Info("ws subscriber disconnected", "session", id)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("ws read ended", "session", id, "error", err)
			}
			return
		}
	}
}
