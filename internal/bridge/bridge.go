// Package bridge owns a single phone call's real-time session: it
// originates the voice agent session, then runs two concurrent pumps that
// relay audio between the telephony media stream and the agent socket,
// transcoding µ-law⇄PCM16 inline and interpreting the agent's control
// protocol (transcripts, tool invocations, hangup). Every exit path
// converges on one finalize step that records the call and releases the
// agent socket.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dialbridge/dialbridge/internal/store"
	"github.com/dialbridge/dialbridge/internal/telephony"
	"github.com/dialbridge/dialbridge/internal/tools"
	"github.com/dialbridge/dialbridge/internal/ultravox"
	"github.com/dialbridge/dialbridge/pkg/audio/g711"
)

// TelephonyConn is the already-established inbound media socket. The
// bridge reads events and sends audio on it; closing it is the caller's
// job after Run returns.
type TelephonyConn interface {
	Read() (*telephony.Message, error)
	SendMedia(streamSID string, mulaw []byte) error
	SendClear(streamSID string) error
	SetReadDeadline(t time.Time) error
}

// AgentSession is an open agent-leg socket. *ultravox.Session satisfies it.
type AgentSession interface {
	Read() (messageType int, data []byte, err error)
	SendAudio(pcm []byte) error
	SendToolResult(result ultravox.ToolResult) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// AgentDialer opens the agent session behind a join URL.
type AgentDialer interface {
	Dial(ctx context.Context, joinURL string) (AgentSession, error)
}

// AgentDialerFunc adapts a function to AgentDialer.
type AgentDialerFunc func(ctx context.Context, joinURL string) (AgentSession, error)

func (f AgentDialerFunc) Dial(ctx context.Context, joinURL string) (AgentSession, error) {
	return f(ctx, joinURL)
}

// Summarizer condenses a finished call's transcript for the call record.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Config wires a Bridge. Store and Summarizer are optional.
type Config struct {
	Originator   ultravox.Originator
	Dialer       AgentDialer
	Store        store.Store
	Dispatcher   *tools.Dispatcher
	Summarizer   Summarizer
	SystemPrompt string
	Logger       *slog.Logger

	// OriginationTimeout bounds the session-creation REST call; a hang
	// there sits outside the pump loops and would never self-resolve.
	OriginationTimeout time.Duration

	// CloseGrace bounds how long finalize waits for the pumps to
	// acknowledge cancellation before force-closing the sockets.
	CloseGrace time.Duration
}

// Bridge runs call sessions. One Bridge serves many concurrent calls;
// all per-call state lives in the Session created by Run.
type Bridge struct {
	cfg Config
}

// New validates the config and returns a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Originator == nil {
		return nil, errors.New("bridge: originator is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("bridge: agent dialer is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("bridge: tool dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OriginationTimeout <= 0 {
		cfg.OriginationTimeout = 15 * time.Second
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 3 * time.Second
	}
	return &Bridge{cfg: cfg}, nil
}

// RunParams carries one call's inputs, taken from the telephony start event.
type RunParams struct {
	Conn         TelephonyConn
	CallID       string
	StreamID     string
	CallerNumber string
	FirstMessage string
	Voice        string
	CallHistory  string
}

// Outcome is the finished session: the single recorded end reason and
// the ordered transcript.
type Outcome struct {
	EndReason  EndReason
	Transcript []Utterance
}

// Run drives one call from Starting to Closed and blocks until every
// resource except the telephony socket is released. It never returns an
// error: every failure mode is an Outcome with the matching end reason.
func (b *Bridge) Run(ctx context.Context, p RunParams) Outcome {
	sess := newSession(ctx, p.CallID, p.StreamID, p.CallerNumber)
	defer sess.cancel()

	logger := b.cfg.Logger.With(
		slog.String("call_sid", p.CallID),
		slog.String("stream_sid", p.StreamID))
	logger.Info("call session starting", slog.String("caller", p.CallerNumber))

	b.upsert(sess.CallID, store.CallFields{
		FromNumber: store.String(p.CallerNumber),
		Direction:  store.String("inbound"),
		Status:     store.String("in-progress"),
		StartTime:  store.Time(sess.startedAt),
	}, logger)

	octx, ocancel := context.WithTimeout(sess.ctx, b.cfg.OriginationTimeout)
	joinURL, err := b.cfg.Originator.Originate(octx, ultravox.OriginateRequest{
		SystemPrompt: b.cfg.SystemPrompt,
		FirstMessage: p.FirstMessage,
		Voice:        p.Voice,
		CallHistory:  p.CallHistory,
	})
	ocancel()
	if err != nil {
		logger.Error("origination failed", slog.Any("error", err))
		sess.finish(EndOriginationFailed)
		return b.finalize(sess, logger)
	}
	sess.setState(StateBridging)

	agent, err := b.cfg.Dialer.Dial(sess.ctx, joinURL)
	if err != nil {
		logger.Error("agent handshake failed", slog.Any("error", err))
		sess.finish(EndInternalError)
		return b.finalize(sess, logger)
	}
	sess.setState(StateActive)
	logger.Info("bridge active")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pumpTelephony(sess, p.Conn, agent, logger)
	}()
	go func() {
		defer wg.Done()
		b.pumpAgent(sess, p.Conn, agent, logger)
	}()

	// Block until the first terminal trigger, then unwind: nudge any
	// blocked read with an immediate deadline, wait out the grace
	// period, and force-close if a pump still has not returned.
	<-sess.ctx.Done()
	_ = p.Conn.SetReadDeadline(time.Now())
	_ = agent.SetReadDeadline(time.Now())

	pumpsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(pumpsDone)
	}()
	select {
	case <-pumpsDone:
	case <-time.After(b.cfg.CloseGrace):
		logger.Warn("pumps did not exit within grace period, forcing close")
	}
	_ = agent.Close()
	// The forced close unblocks any remaining read; a pump stuck on a
	// telephony write is freed when the caller closes that socket, so
	// this second wait is bounded rather than unconditional.
	select {
	case <-pumpsDone:
	case <-time.After(b.cfg.CloseGrace):
		logger.Warn("pump still unwinding at finalize")
	}

	// The session context also cancels when the parent does, with no
	// terminal trigger having fired. Claim a fallback reason so every
	// call records exactly one; a pump that already finished wins.
	if sess.finish(EndInternalError) {
		logger.Warn("call cancelled externally")
	}

	return b.finalize(sess, logger)
}

// pumpTelephony relays caller audio to the agent: one stream event per
// iteration, µ-law expanded to PCM16 inline, order preserved. Malformed
// frames are dropped; socket failure and the stop event are terminal.
func (b *Bridge) pumpTelephony(sess *Session, conn TelephonyConn, agent AgentSession, logger *slog.Logger) {
	defer b.recoverPump(sess, logger, "telephony")

	for {
		msg, err := conn.Read()
		if err != nil {
			if errors.Is(err, telephony.ErrMalformedMessage) {
				logger.Warn("dropping malformed telephony frame", slog.Any("error", err))
				continue
			}
			if !sess.done() {
				logger.Info("telephony socket closed", slog.Any("error", err))
				sess.finish(EndTelephonyDisconnect)
			}
			return
		}

		switch msg.Event {
		case telephony.EventMedia:
			if msg.Media == nil {
				continue
			}
			mulaw, err := msg.Media.Audio()
			if err != nil {
				logger.Warn("dropping media frame with bad payload", slog.Any("error", err))
				continue
			}
			if err := agent.SendAudio(g711.DecodeMuLaw(mulaw)); err != nil {
				if !sess.done() {
					logger.Info("agent socket write failed", slog.Any("error", err))
					sess.finish(EndAgentHangup)
				}
				return
			}

		case telephony.EventStop:
			logger.Info("caller ended the call")
			sess.finish(EndRemoteHangup)
			return

		case telephony.EventStart:
			if msg.Start != nil {
				sess.setStreamID(msg.Start.StreamSID)
			}

		case telephony.EventDTMF:
			if msg.DTMF != nil {
				logger.Info("dtmf received", slog.String("digit", msg.DTMF.Digit))
			}

		case telephony.EventConnected, telephony.EventMark:
			// informational

		default:
			logger.Warn("unrecognized telephony event", slog.String("event", msg.Event))
		}
	}
}

// pumpAgent relays agent output to the caller: binary frames are PCM16
// companded back to µ-law and sent as media, text frames drive the
// transcript and the tool dispatcher.
func (b *Bridge) pumpAgent(sess *Session, conn TelephonyConn, agent AgentSession, logger *slog.Logger) {
	defer b.recoverPump(sess, logger, "agent")

	for {
		messageType, data, err := agent.Read()
		if err != nil {
			if !sess.done() {
				logger.Info("agent socket closed", slog.Any("error", err))
				sess.finish(EndAgentHangup)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			mulaw, err := g711.EncodeMuLaw(data)
			if err != nil {
				logger.Warn("dropping agent audio frame", slog.Any("error", err))
				continue
			}
			if err := conn.SendMedia(sess.StreamID(), mulaw); err != nil {
				if !sess.done() {
					logger.Info("telephony socket write failed", slog.Any("error", err))
					sess.finish(EndTelephonyDisconnect)
				}
				return
			}

		case websocket.TextMessage:
			if stop := b.handleAgentMessage(sess, conn, agent, data, logger); stop {
				return
			}
		}
	}
}

func (b *Bridge) handleAgentMessage(sess *Session, conn TelephonyConn, agent AgentSession, data []byte, logger *slog.Logger) (stop bool) {
	msg, err := ultravox.DecodeServerMessage(data)
	if err != nil {
		logger.Warn("dropping malformed agent message", slog.Any("error", err))
		return false
	}

	switch msg.Type {
	case ultravox.TypeTranscript:
		if text := msg.TranscriptText(); msg.Role != "" && text != "" {
			sess.appendTranscript(msg.Role, text)
		}

	case ultravox.TypeClientToolInvocation:
		logger.Info("tool invoked",
			slog.String("tool", msg.ToolName),
			slog.String("invocation_id", msg.InvocationID))

		result := b.cfg.Dispatcher.Dispatch(sess.ctx, tools.Invocation{
			InvocationID: msg.InvocationID,
			ToolName:     msg.ToolName,
			Parameters:   msg.Parameters,
		})

		var reply ultravox.ToolResult
		if result.OK() {
			reply = ultravox.SuccessResult(result.InvocationID, result.Value)
		} else {
			reply = ultravox.ErrorResult(result.InvocationID, result.ErrorType, result.ErrorMessage)
		}
		if err := agent.SendToolResult(reply); err != nil {
			if !sess.done() {
				logger.Error("tool result write failed", slog.Any("error", err))
				sess.finish(EndAgentHangup)
			}
			return true
		}

		// The hangUp acknowledgment is on the wire; ending the session
		// before that send would make the peer treat the call as an error.
		if msg.ToolName == tools.ToolHangUp && result.OK() {
			logger.Info("agent requested hangup")
			sess.finish(EndAgentHangup)
			return true
		}

	case ultravox.TypePlaybackClearBuffer:
		// The agent was interrupted; flush whatever audio the provider
		// has queued so the caller does not hear stale speech.
		if err := conn.SendClear(sess.StreamID()); err != nil {
			logger.Warn("playback clear failed", slog.Any("error", err))
		}

	case ultravox.TypeState, ultravox.TypeCallStarted, ultravox.TypeDebug:
		logger.Debug("agent event", slog.String("type", msg.Type), slog.String("state", msg.State))

	default:
		logger.Debug("unhandled agent message", slog.String("type", msg.Type))
	}
	return false
}

func (b *Bridge) recoverPump(sess *Session, logger *slog.Logger, pump string) {
	if r := recover(); r != nil {
		logger.Error("pump panic", slog.String("pump", pump), slog.Any("panic", r))
		sess.finish(EndInternalError)
	}
}

// finalize closes the session, flushes the call record, and shapes the
// outcome. Reached on every exit path exactly once.
func (b *Bridge) finalize(sess *Session, logger *slog.Logger) Outcome {
	sess.close()
	reason := sess.EndReason()

	status := "completed"
	if reason == EndOriginationFailed || reason == EndInternalError {
		status = "failed"
	}

	duration := int(sess.duration().Seconds())
	fields := store.CallFields{
		Status:      store.String(status),
		EndTime:     store.Time(time.Now()),
		Duration:    store.Int(duration),
		EndReason:   store.String(string(reason)),
		AgentHungUp: store.Bool(reason == EndAgentHangup),
	}

	if transcript := sess.transcriptText(); transcript != "" {
		fields.Transcription = &transcript
		if b.cfg.Summarizer != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			summary, err := b.cfg.Summarizer.Summarize(sctx, transcript)
			cancel()
			if err != nil {
				logger.Error("transcript summary failed", slog.Any("error", err))
			} else if summary != "" {
				fields.Summary = &summary
			}
		}
	}
	b.upsert(sess.CallID, fields, logger)

	logger.Info("call session closed",
		slog.String("end_reason", string(reason)),
		slog.Int("duration_s", duration),
		slog.Int("transcript_fragments", len(sess.Transcript())))

	return Outcome{EndReason: reason, Transcript: sess.Transcript()}
}

// upsert is the best-effort record write: a failed store never aborts or
// retries the call itself.
func (b *Bridge) upsert(callSID string, fields store.CallFields, logger *slog.Logger) {
	if b.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.cfg.Store.UpsertCall(ctx, callSID, fields); err != nil {
		logger.Error("call record update failed", slog.Any("error", err))
	}
}
