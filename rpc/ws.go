package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"prizechain/core/events"
)

const wsWriteTimeout = 10 * time.Second

// eventPayload is one committed program event as streamed on /ws.
type eventPayload struct {
	Round      uint64            `json:"round"`
	Signature  string            `json:"signature"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEventsWS streams committed events. The optional "type" query
// parameter keeps events whose type starts with it, e.g. "bounty.".
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.limiter.allow(clientID(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel := s.feed.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			committed, isCommitted := evt.(events.Committed)
			if !isCommitted || !strings.HasPrefix(committed.EventType(), prefix) {
				continue
			}
			if err := writeEvent(ctx, conn, committed); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt events.Committed) error {
	data, err := json.Marshal(eventPayload{
		Round:      evt.Round,
		Signature:  evt.Signature.String(),
		Type:       evt.Event.Type,
		Attributes: evt.Event.Attributes,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
