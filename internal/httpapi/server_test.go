package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/dialbridge/dialbridge/internal/bridge"
	"github.com/dialbridge/dialbridge/internal/store"
)

type fakeRunner struct {
	params  chan bridge.RunParams
	outcome bridge.Outcome
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		params:  make(chan bridge.RunParams, 1),
		outcome: bridge.Outcome{EndReason: bridge.EndRemoteHangup},
	}
}

func (f *fakeRunner) Run(ctx context.Context, p bridge.RunParams) bridge.Outcome {
	f.params <- p
	return f.outcome
}

func newTestServer(t *testing.T, st store.Store) (*Server, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(runner, st, Config{
		PublicHost:   "bridge.example.com",
		FirstMessage: "Hello, how can I help you today?",
	}, logger)
	return srv, runner
}

func TestIncomingCallTwiML(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, store.NewMemory())

	form := url.Values{"From": {"+15550100"}, "CallSid": {"CA123"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/incoming-call",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusOK)
	is.Equal(rec.Header().Get("Content-Type"), "text/xml")
	body := rec.Body.String()
	is.True(strings.Contains(body, `url="wss://bridge.example.com/media-stream"`))
	is.True(strings.Contains(body, `name="callerNumber" value="+15550100"`))
	is.True(strings.Contains(body, `name="firstMessage"`))
}

func TestCallHistoryPagination(t *testing.T) {
	is := is.New(t)
	st := store.NewMemory()
	ctx := context.Background()
	for _, sid := range []string{"CA1", "CA2", "CA3"} {
		is.NoErr(st.UpsertCall(ctx, sid, store.CallFields{
			Status:    store.String("completed"),
			StartTime: store.Time(time.Now()),
		}))
	}
	srv, _ := newTestServer(t, st)

	req := httptest.NewRequest(http.MethodGet, "/api/calls/history?page=1&limit=2", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusOK)
	var resp struct {
		Calls []store.CallRecord `json:"calls"`
		Total int                `json:"total"`
		Page  int                `json:"page"`
		Limit int                `json:"limit"`
	}
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.Equal(resp.Total, 3)
	is.Equal(len(resp.Calls), 2)
	is.Equal(resp.Limit, 2)
}

func TestInitiateCallRecordsIntent(t *testing.T) {
	is := is.New(t)
	st := store.NewMemory()
	srv, _ := newTestServer(t, st)

	req := httptest.NewRequest(http.MethodPost, "/api/calls/initiate",
		strings.NewReader(`{"to":"+15550199","from":"+15550100"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusAccepted)
	var resp map[string]string
	is.NoErr(json.NewDecoder(rec.Body).Decode(&resp))
	is.True(resp["call_sid"] != "")

	record, err := st.GetCall(context.Background(), resp["call_sid"])
	is.NoErr(err)
	is.Equal(record.Direction, "outbound")
	is.Equal(record.Status, "queued")
	is.Equal(record.ToNumber, "+15550199")
}

func TestInitiateCallRejectsMissingNumber(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, store.NewMemory())

	req := httptest.NewRequest(http.MethodPost, "/api/calls/initiate",
		strings.NewReader(`{"from":"+15550100"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusBadRequest)
}

func TestMediaStreamHandsStartToBridge(t *testing.T) {
	is := is.New(t)
	srv, runner := newTestServer(t, store.NewMemory())

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media-stream"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	is.NoErr(err)
	defer ws.Close()

	is.NoErr(ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"connected","protocol":"Call","version":"1.0.0"}`)))
	is.NoErr(ws.WriteMessage(websocket.TextMessage, []byte(`{
		"event":"start",
		"start":{
			"streamSid":"MZ42","callSid":"CA42",
			"customParameters":{"callerNumber":"+15550123","firstMessage":"Hi there"}
		}
	}`)))

	select {
	case p := <-runner.params:
		is.Equal(p.CallID, "CA42")
		is.Equal(p.StreamID, "MZ42")
		is.Equal(p.CallerNumber, "+15550123")
		is.Equal(p.FirstMessage, "Hi there")
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never received the stream")
	}
}

func TestHealthz(t *testing.T) {
	is := is.New(t)
	srv, _ := newTestServer(t, store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	is.Equal(rec.Code, http.StatusOK)
}
