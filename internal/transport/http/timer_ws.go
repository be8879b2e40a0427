package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watchTimer upgrades to a websocket and streams countdown snapshots for one
// attempt until it reaches a terminal state or the client disconnects.
// Disconnecting only stops the stream; the server-side timer keeps running.
func (h *Handler) watchTimer(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")
	engine, err := h.attempts.Watch(r.Context(), attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.String("attempt_id", attemptID), zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := engine.Subscribe()
	defer cancel()

	// Reader exists only to notice the peer going away.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				h.logger.Debug("ws write failed", zap.String("attempt_id", attemptID), zap.Error(err))
				return
			}
			if update.State == app.CountdownExpired || update.State == app.CountdownCompleted {
				return
			}
		case <-disconnected:
			return
		}
	}
}
