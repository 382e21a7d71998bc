package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// handleWS streams live bus events to the client as JSON text frames. An
// optional ?thread_id= query filters to one thread.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	threadID := r.URL.Query().Get("thread_id")

	ch, unsubscribe := s.bus.SubscribeChan(64)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}
			if threadID != "" && e.ThreadID != threadID {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
