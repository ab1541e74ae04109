// Package ultravox talks to the voice agent's streaming API: a REST call
// that creates an agent session and returns a join URL, and the WebSocket
// session behind that URL. Binary frames on the session are raw
// little-endian PCM16 at 8 kHz mono; text frames are JSON control
// messages tagged by a "type" field.
package ultravox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the agent API endpoint for creating calls.
	DefaultBaseURL = "https://api.ultravox.ai/api/calls"

	// DefaultModel and DefaultVoice are used when the config leaves them unset.
	DefaultModel = "fixie-ai/ultravox-70B"
	DefaultVoice = "Tanya-English"

	// SampleRate is fixed at the telephony leg's rate so no resampling
	// happens in the bridge.
	SampleRate = 8000

	clientBufferMS = 60
)

// ErrOriginationFailed indicates the agent session could not be created.
// There is no retry; the bridge surfaces this as the session outcome.
var ErrOriginationFailed = errors.New("agent session origination failed")

// OriginateRequest carries everything the agent needs to open a session.
type OriginateRequest struct {
	SystemPrompt string
	FirstMessage string
	Voice        string // empty selects the client default
	CallHistory  string // optional summary of prior calls, appended to the prompt
}

// Originator creates an agent session and returns its join URL.
// Implementations make a single attempt; the bridge never retries.
type Originator interface {
	Originate(ctx context.Context, req OriginateRequest) (string, error)
}

// Client is the HTTP Originator against the agent's REST API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// NewClient builds an Originator for the agent REST API.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		voice:   cfg.Voice,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type createCallRequest struct {
	SystemPrompt    string           `json:"systemPrompt"`
	Model           string           `json:"model"`
	Voice           string           `json:"voice"`
	Temperature     float64          `json:"temperature"`
	InitialMessages []initialMessage `json:"initialMessages"`
	Medium          medium           `json:"medium"`
	SelectedTools   []selectedTool   `json:"selectedTools"`
}

type initialMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type medium struct {
	ServerWebSocket serverWebSocket `json:"serverWebSocket"`
}

type serverWebSocket struct {
	InputSampleRate    int `json:"inputSampleRate"`
	OutputSampleRate   int `json:"outputSampleRate"`
	ClientBufferSizeMS int `json:"clientBufferSizeMs"`
}

type selectedTool struct {
	TemporaryTool temporaryTool `json:"temporaryTool"`
}

type temporaryTool struct {
	ModelToolName     string             `json:"modelToolName"`
	Description       string             `json:"description"`
	DynamicParameters []dynamicParameter `json:"dynamicParameters,omitempty"`
	Timeout           string             `json:"timeout,omitempty"`
	Client            struct{}           `json:"client"`
}

type dynamicParameter struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Schema   parameterSchema `json:"schema"`
	Required bool            `json:"required"`
}

type parameterSchema struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type createCallResponse struct {
	JoinURL string `json:"joinUrl"`
}

// Originate creates the agent session. A non-2xx response or transport
// failure wraps ErrOriginationFailed.
func (c *Client) Originate(ctx context.Context, req OriginateRequest) (string, error) {
	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}

	systemPrompt := req.SystemPrompt
	if req.CallHistory != "" {
		systemPrompt = fmt.Sprintf("%s\n\nPrevious Call History:\n%s", systemPrompt, req.CallHistory)
	}

	payload := createCallRequest{
		SystemPrompt: systemPrompt,
		Model:        c.model,
		Voice:        voice,
		Temperature:  0.1,
		InitialMessages: []initialMessage{
			{Role: "MESSAGE_ROLE_USER", Text: req.FirstMessage},
		},
		Medium: medium{ServerWebSocket: serverWebSocket{
			InputSampleRate:    SampleRate,
			OutputSampleRate:   SampleRate,
			ClientBufferSizeMS: clientBufferMS,
		}},
		SelectedTools: clientTools(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrOriginationFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOriginationFailed, err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOriginationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("agent call creation rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(detail)))
		return "", fmt.Errorf("%w: status %d", ErrOriginationFailed, resp.StatusCode)
	}

	var out createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrOriginationFailed, err)
	}
	if out.JoinURL == "" {
		return "", fmt.Errorf("%w: response missing joinUrl", ErrOriginationFailed)
	}

	c.logger.Info("agent session created", slog.String("join_url", out.JoinURL))
	return out.JoinURL, nil
}

// clientTools declares the client-implemented tools the agent may invoke
// during a call. The dispatcher in internal/tools handles each of these.
func clientTools() []selectedTool {
	return []selectedTool{
		{TemporaryTool: temporaryTool{
			ModelToolName: "question_and_answer",
			Description:   "Get answers to customer questions especially about AI employees",
			DynamicParameters: []dynamicParameter{
				{
					Name:     "question",
					Location: "PARAMETER_LOCATION_BODY",
					Schema:   parameterSchema{Type: "string", Description: "Question to be answered"},
					Required: true,
				},
			},
			Timeout: "20s",
		}},
		{TemporaryTool: temporaryTool{
			ModelToolName: "schedule_meeting",
			Description:   "Schedule a meeting for a customer. Returns a message indicating whether the booking was successful or not.",
			DynamicParameters: []dynamicParameter{
				{Name: "name", Location: "PARAMETER_LOCATION_BODY", Schema: parameterSchema{Type: "string", Description: "Customer's name"}, Required: true},
				{Name: "email", Location: "PARAMETER_LOCATION_BODY", Schema: parameterSchema{Type: "string", Description: "Customer's email"}, Required: true},
				{Name: "purpose", Location: "PARAMETER_LOCATION_BODY", Schema: parameterSchema{Type: "string", Description: "Purpose of the Meeting"}, Required: true},
				{Name: "datetime", Location: "PARAMETER_LOCATION_BODY", Schema: parameterSchema{Type: "string", Description: "Meeting Datetime"}, Required: true},
				{Name: "location", Location: "PARAMETER_LOCATION_BODY", Schema: parameterSchema{Type: "string", Description: "Meeting location"}, Required: true},
			},
			Timeout: "20s",
		}},
		{TemporaryTool: temporaryTool{
			ModelToolName: "hangUp",
			Description:   "End the call",
		}},
	}
}
