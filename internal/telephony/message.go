// Package telephony implements the media-stream wire protocol spoken by the
// telephony provider: one JSON object per WebSocket text message, tagged by
// an "event" field, with call audio carried as base64 µ-law in "media"
// events. It also wraps the provider socket with a write-serialized
// connection so both bridge pumps can safely send to it.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Stream event names sent by the provider.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// ErrMalformedMessage indicates a frame that could not be decoded as a
// stream message. Such frames are dropped by the caller, never fatal.
var ErrMalformedMessage = errors.New("malformed telephony message")

// Message is a single inbound stream event. Exactly one of the event
// payload fields is populated, matching Event.
type Message struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	StreamSID      string `json:"streamSid,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
	DTMF           *DTMF  `json:"dtmf,omitempty"`
}

// Start announces a new media stream. CustomParameters carries the
// caller-supplied values from the stream setup document (opening
// utterance, voice selection, caller number).
type Start struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Media carries one frame of caller audio, base64-encoded µ-law.
type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type Mark struct {
	Name string `json:"name"`
}

type Stop struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type DTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// Decode parses one inbound text frame. Unknown event names decode
// successfully; skipping them is the caller's decision.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("%w: missing event field", ErrMalformedMessage)
	}
	return &msg, nil
}

// Audio decodes the base64 payload of a media event.
func (m *Media) Audio() ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad media payload: %v", ErrMalformedMessage, err)
	}
	return audio, nil
}

// Outbound message shapes. The provider requires every outbound message to
// echo the streamSid from the start event.

type outboundMedia struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     outboundMediaPayload `json:"media"`
}

type outboundMediaPayload struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Event     string           `json:"event"`
	StreamSID string           `json:"streamSid"`
	Mark      outboundMarkName `json:"mark"`
}

type outboundMarkName struct {
	Name string `json:"name"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}
