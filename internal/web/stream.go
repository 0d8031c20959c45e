package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"eventclock/internal/board"
	appLog "eventclock/internal/log"
)

const (
	messageSnapshot = "snapshot"
	messageNotice   = "notice"
)

// streamMessage is one frame on /api/stream. Exactly one of Snapshot and
// Notice is set, matching Type.
type streamMessage struct {
	Type     string          `json:"type"`
	Snapshot *board.Snapshot `json:"snapshot,omitempty"`
	Notice   *board.Notice   `json:"notice,omitempty"`
}

// handleStream upgrades to a WebSocket and pushes a board snapshot every
// streamInterval plus each notice as it happens. Client frames are ignored.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		appLog.Warn("websocket accept failed", "reason", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	notices, unsubscribe := s.board.Subscribe()
	defer unsubscribe()

	ticker := s.clock.NewTicker(s.streamInterval)
	defer ticker.Stop()

	appLog.Debug("stream client connected", "remote", r.RemoteAddr)

	send := func(msg streamMessage) error {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return wsjson.Write(writeCtx, conn, msg)
	}
	sendSnapshot := func() error {
		snap := s.board.Snapshot()
		return send(streamMessage{Type: messageSnapshot, Snapshot: &snap})
	}

	if err := sendSnapshot(); err != nil {
		logStreamEnd(r, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			logStreamEnd(r, ctx.Err())
			return
		case n, ok := <-notices:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "board closed")
				return
			}
			if err := send(streamMessage{Type: messageNotice, Notice: &n}); err != nil {
				logStreamEnd(r, err)
				return
			}
		case <-ticker.C():
			if err := sendSnapshot(); err != nil {
				logStreamEnd(r, err)
				return
			}
		}
	}
}

func logStreamEnd(r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		appLog.Debug("stream client disconnected", "remote", r.RemoteAddr)
		return
	}
	appLog.Warn("stream ended", "reason", err, "remote", r.RemoteAddr)
}
