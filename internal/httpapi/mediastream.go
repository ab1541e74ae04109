package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dialbridge/dialbridge/internal/bridge"
	"github.com/dialbridge/dialbridge/internal/telephony"
)

// setupTimeout bounds the wait for the provider's start event after the
// socket upgrade. A socket that never announces its stream is useless.
const setupTimeout = 10 * time.Second

// handleMediaStream upgrades the provider's WebSocket, waits for the
// start event, and hands the stream to the bridge. The handler owns the
// socket: it closes it after the bridge returns.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("media stream upgrade failed", slog.Any("error", err))
		return
	}
	conn := telephony.NewConn(ws)
	defer conn.Close()

	start, err := awaitStart(conn)
	if err != nil {
		s.logger.Error("media stream never started", slog.Any("error", err))
		return
	}

	firstMessage := s.cfg.FirstMessage
	if v := start.CustomParameters["firstMessage"]; v != "" {
		firstMessage = v
	}

	outcome := s.runner.Run(r.Context(), bridge.RunParams{
		Conn:         conn,
		CallID:       start.CallSID,
		StreamID:     start.StreamSID,
		CallerNumber: start.CustomParameters["callerNumber"],
		FirstMessage: firstMessage,
		Voice:        start.CustomParameters["voice"],
	})

	s.logger.Info("media stream finished",
		slog.String("call_sid", start.CallSID),
		slog.String("stream_sid", start.StreamSID),
		slog.String("end_reason", string(outcome.EndReason)))
}

// awaitStart reads frames until the start event arrives. The connected
// event and any malformed frames before start are skipped.
func awaitStart(conn *telephony.Conn) (*telephony.Start, error) {
	if err := conn.SetReadDeadline(time.Now().Add(setupTimeout)); err != nil {
		return nil, err
	}
	for {
		msg, err := conn.Read()
		if errors.Is(err, telephony.ErrMalformedMessage) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if msg.Event != telephony.EventStart || msg.Start == nil {
			continue
		}
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
		return msg.Start, nil
	}
}
