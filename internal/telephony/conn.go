package telephony

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps the provider's WebSocket with decode-on-read and a write
// mutex. Both bridge pumps may send through it; gorilla permits only one
// concurrent writer per socket, so every outbound path funnels through mu.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewConn wraps an upgraded provider WebSocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read blocks for the next stream event. Read is not safe for concurrent
// use; exactly one pump owns the read side.
func (c *Conn) Read() (*Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// SendMedia sends one frame of µ-law audio to the caller.
func (c *Conn) SendMedia(streamSID string, mulaw []byte) error {
	msg := outboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     outboundMediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// SendMark asks the provider to echo a mark event once queued audio has
// been played out.
func (c *Conn) SendMark(streamSID, name string) error {
	msg := outboundMark{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      outboundMarkName{Name: name},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// SendClear discards any audio the provider has buffered but not played.
func (c *Conn) SendClear(streamSID string) error {
	msg := outboundClear{Event: "clear", StreamSID: streamSID}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// SetReadDeadline unblocks a pending Read. The bridge uses an immediate
// deadline as its cancellation nudge for the telephony pump; the socket
// itself stays open for the caller to close.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close closes the underlying socket. Called by the connection's owner
// (the HTTP handler) after the bridge has finished.
func (c *Conn) Close() error {
	return c.ws.Close()
}
