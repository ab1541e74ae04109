// Package httpapi exposes the service's HTTP surface: the telephony
// webhook that answers a call with a stream-connect document, the media
// WebSocket endpoint that hands the stream to the bridge, and the call
// history API.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dialbridge/dialbridge/internal/bridge"
	"github.com/dialbridge/dialbridge/internal/store"
)

// CallRunner runs one bridged call to completion. *bridge.Bridge
// satisfies it.
type CallRunner interface {
	Run(ctx context.Context, p bridge.RunParams) bridge.Outcome
}

// Config carries the request-independent values handlers need.
type Config struct {
	PublicHost   string // host for generated stream URLs
	FirstMessage string // default opening utterance
}

// Server holds the HTTP handlers.
type Server struct {
	runner   CallRunner
	store    store.Store
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the handlers.
func NewServer(runner CallRunner, st store.Store, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		runner: runner,
		store:  st,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The telephony provider connects from its own cloud; there
			// is no browser origin to check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /twilio/incoming-call", s.handleIncomingCall)
	mux.HandleFunc("GET /media-stream", s.handleMediaStream)
	mux.HandleFunc("GET /api/calls/history", s.handleCallHistory)
	mux.HandleFunc("POST /api/calls/initiate", s.handleInitiateCall)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCallHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	records, total, err := s.store.ListCalls(r.Context(), store.ListFilter{
		Status: q.Get("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		s.logger.Error("call history query failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "call history unavailable"})
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": records,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

type initiateRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// handleInitiateCall records an outbound call request. Placing the call
// itself is the telephony provider's signaling surface, handled outside
// this service; the record keeps campaign tooling honest about intent.
func (s *Server) handleInitiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to number is required"})
		return
	}

	callSID := "OUT" + uuid.NewString()
	err := s.store.UpsertCall(r.Context(), callSID, store.CallFields{
		FromNumber: store.String(req.From),
		ToNumber:   store.String(req.To),
		Direction:  store.String("outbound"),
		Status:     store.String("queued"),
		StartTime:  store.Time(time.Now()),
	})
	if err != nil {
		s.logger.Error("outbound call record failed", slog.Any("error", err))
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"call_sid": callSID,
		"status":   "call_initiated",
		"to":       req.To,
		"from":     req.From,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
