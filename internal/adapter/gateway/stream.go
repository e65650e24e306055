package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentorg/internal/domain"
)

// handleStream serves the conversation timeline as Server-Sent Events. Idle
// subscribers receive a synthetic keepalive so transport-level timeouts do
// not fire; disconnecting unsubscribes and frees the queue.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	broadcaster := s.orch.Broadcaster()
	sub := broadcaster.Subscribe(conversationID)
	defer broadcaster.Unsubscribe(conversationID, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-sub.C:
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
			keepalive.Reset(s.keepalive)
		case <-keepalive.C:
			if err := writeSSE(w, domain.Event{Type: domain.EventKeepalive, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// handleWS serves the same timeline over a WebSocket for clients that prefer
// a bidirectional transport. The server only writes; inbound frames are
// ignored until the peer closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	broadcaster := s.orch.Broadcaster()
	sub := broadcaster.Subscribe(conversationID)
	defer broadcaster.Unsubscribe(conversationID, sub)

	ctx := r.Context()
	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.C:
			if err := wsjson.Write(ctx, ws, event); err != nil {
				return
			}
			keepalive.Reset(s.keepalive)
		case <-keepalive.C:
			if err := ws.Ping(ctx); err != nil {
				return
			}
		}
	}
}
