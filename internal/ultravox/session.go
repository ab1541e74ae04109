package ultravox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrHandshakeFailed indicates the WebSocket dial to the agent's join URL
// did not complete. Fatal before the session goes active; never retried.
var ErrHandshakeFailed = errors.New("agent websocket handshake failed")

const defaultHandshakeTimeout = 10 * time.Second

// Session is an open agent-leg WebSocket. Reads are owned by one pump;
// writes (caller audio from one pump, tool results from the other) are
// serialized through a mutex.
type Session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the agent session behind joinURL with an explicit
// handshake timeout. Failure wraps ErrHandshakeFailed.
func Dial(ctx context.Context, joinURL string, logger *slog.Logger) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}

	ws, _, err := dialer.DialContext(ctx, joinURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	logger.Info("agent websocket connected")
	return &Session{ws: ws, logger: logger}, nil
}

// Read blocks for the next frame. Binary frames are raw PCM16LE audio;
// text frames are JSON control messages. Not safe for concurrent use.
func (s *Session) Read() (messageType int, data []byte, err error) {
	return s.ws.ReadMessage()
}

// SendAudio forwards one frame of caller audio as raw PCM16LE.
func (s *Session) SendAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.BinaryMessage, pcm)
}

// SendToolResult replies to a tool invocation.
func (s *Session) SendToolResult(result ToolResult) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(result)
}

// SetReadDeadline unblocks a pending Read; used as the cancellation nudge
// for the agent pump.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.ws.SetReadDeadline(t)
}

// Close sends a normal-closure frame and closes the socket. Safe to call
// from any goroutine and more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.closeErr = s.ws.Close()
	})
	return s.closeErr
}
