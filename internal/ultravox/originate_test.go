package ultravox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestOriginate(t *testing.T) {
	is := is.New(t)

	var got createCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodPost)
		is.Equal(r.Header.Get("X-API-Key"), "test-key")
		is.NoErr(json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"joinUrl": "wss://agent.example.com/join/abc"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, slog.Default())

	joinURL, err := c.Originate(context.Background(), OriginateRequest{
		SystemPrompt: "You are a helpful AI assistant.",
		FirstMessage: "Hello, how can I help?",
		CallHistory:  "No previous calls found.",
	})
	is.NoErr(err)
	is.Equal(joinURL, "wss://agent.example.com/join/abc")

	is.Equal(got.Model, DefaultModel)
	is.Equal(got.Voice, DefaultVoice)
	is.True(len(got.InitialMessages) == 1)
	is.Equal(got.InitialMessages[0].Role, "MESSAGE_ROLE_USER")
	is.Equal(got.InitialMessages[0].Text, "Hello, how can I help?")
	is.Equal(got.Medium.ServerWebSocket.InputSampleRate, SampleRate)
	is.Equal(got.Medium.ServerWebSocket.OutputSampleRate, SampleRate)

	// Prior history rides in the system prompt.
	is.True(len(got.SystemPrompt) > len("You are a helpful AI assistant."))

	// All three client tools are declared.
	names := map[string]bool{}
	for _, tool := range got.SelectedTools {
		names[tool.TemporaryTool.ModelToolName] = true
	}
	is.True(names["question_and_answer"])
	is.True(names["schedule_meeting"])
	is.True(names["hangUp"])
}

func TestOriginateRejected(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "bad", BaseURL: srv.URL}, slog.Default())

	_, err := c.Originate(context.Background(), OriginateRequest{FirstMessage: "hi"})
	is.True(errors.Is(err, ErrOriginationFailed))
}

func TestOriginateMissingJoinURL(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, slog.Default())

	_, err := c.Originate(context.Background(), OriginateRequest{FirstMessage: "hi"})
	is.True(errors.Is(err, ErrOriginationFailed))
}

func TestOriginateVoiceOverride(t *testing.T) {
	is := is.New(t)

	var got createCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"joinUrl": "wss://agent/j"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, slog.Default())

	_, err := c.Originate(context.Background(), OriginateRequest{FirstMessage: "hi", Voice: "Mark-English"})
	is.NoErr(err)
	is.Equal(got.Voice, "Mark-English")
}
