package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is the call session lifecycle position.
type State int

const (
	StateStarting State = iota // start event received, origination pending
	StateBridging              // agent endpoint obtained, handshake pending
	StateActive                // both pumps running
	StateClosing               // terminal trigger fired, pumps unwinding
	StateClosed                // all resources released
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateBridging:
		return "bridging"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EndReason records why a call ended. Written exactly once per session.
type EndReason string

const (
	EndRemoteHangup        EndReason = "remote_hangup"        // caller hung up (stop event)
	EndAgentHangup         EndReason = "agent_hangup"         // hangUp tool or agent-side close
	EndTelephonyDisconnect EndReason = "telephony_disconnect" // telephony socket dropped without a stop
	EndOriginationFailed   EndReason = "origination_failed"   // no agent endpoint, call never bridged
	EndInternalError       EndReason = "internal_error"       // handshake failure or pump fault
)

// Utterance is one finalized or partial transcript fragment, in arrival
// order. Partial deltas are appended as received, so text may repeat;
// only ordering is guaranteed.
type Utterance struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is one phone call's live state. The bridge owns it exclusively;
// both pumps touch only the mutex-guarded fields, and every transition
// into Closing goes through finish, which is first-writer-wins.
type Session struct {
	CallID       string
	CallerNumber string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	streamID   string
	state      State
	endReason  EndReason
	transcript []Utterance
	startedAt  time.Time
}

func newSession(parent context.Context, callID, streamID, callerNumber string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		CallID:       callID,
		CallerNumber: callerNumber,
		ctx:          ctx,
		cancel:       cancel,
		streamID:     streamID,
		state:        StateStarting,
		startedAt:    time.Now(),
	}
}

// finish is the single terminal trigger. The first caller wins: it
// records the end reason, moves the session to Closing, and cancels the
// session context so both pumps unwind. Later callers are no-ops.
func (s *Session) finish(reason EndReason) bool {
	s.mu.Lock()
	if s.endReason != "" {
		s.mu.Unlock()
		return false
	}
	s.endReason = reason
	if s.state != StateClosed {
		s.state = StateClosing
	}
	s.mu.Unlock()

	s.cancel()
	return true
}

// done reports whether a terminal trigger has fired. Pumps use it to
// tell cancellation-induced socket errors from genuine disconnects.
func (s *Session) done() bool {
	return s.ctx.Err() != nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Never regress out of Closing/Closed; a terminal trigger may race
	// the Bridging→Active transition.
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.state = state
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// EndReason returns the recorded end reason, empty until finish fires.
func (s *Session) EndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// setStreamID adopts a new media stream id. The transport may re-issue
// a start event on reconnect; the stream id is session-scoped while the
// call id is call-scoped.
func (s *Session) setStreamID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.streamID = id
	}
}

// StreamID returns the media stream id outbound frames must echo.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *Session) appendTranscript(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, Utterance{Role: role, Text: text})
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// transcriptText renders the transcript for persistence, one line per
// fragment.
func (s *Session) transcriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	for _, u := range s.transcript {
		role := u.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		fmt.Fprintf(&sb, "%s says: %s\n", role, u.Text)
	}
	return sb.String()
}

func (s *Session) duration() time.Duration {
	return time.Since(s.startedAt)
}
