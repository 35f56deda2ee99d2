package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classroom-service/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type feedMessage struct {
	Type    string                       `json:"type"`
	Payload domain.ClassProgressSnapshot `json:"payload"`
}

// progressFeed streams class progress snapshots to a teacher dashboard:
// one initial snapshot, then an update after every recompute that touches
// the class. Read-only; the client sends nothing but close frames.
func (h *Handler) progressFeed(w http.ResponseWriter, r *http.Request) {
	classID := r.PathValue("id")

	snapshot, err := h.snapshots.ClassSnapshot(r.Context(), classID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe(classID)
	defer cancel()

	// Reader goroutine only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(feedMessage{Type: "snapshot", Payload: snapshot}); err != nil {
		return
	}
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(feedMessage{Type: "progress", Payload: update}); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
