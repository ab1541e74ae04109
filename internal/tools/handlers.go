package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dialbridge/dialbridge/internal/store"
)

// NewHangUpHandler returns the handler for the hangUp tool. It only
// produces the success acknowledgment; the bridge raises its terminal
// trigger after that acknowledgment has gone out on the wire.
func NewHangUpHandler() Handler {
	return func(ctx context.Context, params map[string]any) (string, error) {
		return "Call ended successfully", nil
	}
}

// NewScheduleMeetingHandler books meetings through the configured
// scheduling webhook. With no webhook configured the booking is accepted
// locally and confirmed in the reply.
func NewScheduleMeetingHandler(webhookURL string, client *http.Client, logger *slog.Logger) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, params map[string]any) (string, error) {
		required := []string{"name", "email", "purpose", "datetime", "location"}
		values := make(map[string]string, len(required))
		for _, key := range required {
			v, _ := params[key].(string)
			if v == "" {
				return "", fmt.Errorf("schedule_meeting: missing parameter %q", key)
			}
			values[key] = v
		}

		logger.Info("scheduling meeting",
			slog.String("name", values["name"]),
			slog.String("datetime", values["datetime"]),
			slog.String("location", values["location"]))

		if webhookURL != "" {
			body, err := json.Marshal(values)
			if err != nil {
				return "", fmt.Errorf("schedule_meeting: encode request: %w", err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
			if err != nil {
				return "", fmt.Errorf("schedule_meeting: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("schedule_meeting: webhook call: %w", err)
			}
			resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return "", fmt.Errorf("schedule_meeting: webhook status %d", resp.StatusCode)
			}
		}

		return fmt.Sprintf("Meeting scheduled successfully for %s at %s on %s to discuss %s.",
			values["name"], values["location"], values["datetime"], values["purpose"]), nil
	}
}

// KnowledgeSearcher is the slice of the store the Q&A handler needs.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, embedding []float32, k int) ([]store.KnowledgeChunk, error)
}

// QAConfig tunes the question_and_answer handler.
type QAConfig struct {
	EmbeddingModel openai.EmbeddingModel
	ChatModel      string
	TopK           int
}

func (c *QAConfig) defaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = openai.AdaEmbeddingV2
	}
	if c.ChatModel == "" {
		c.ChatModel = openai.GPT4oMini
	}
	if c.TopK <= 0 {
		c.TopK = 4
	}
}

// NewQuestionAnswerHandler answers caller questions from the knowledge
// base: embed the question, retrieve the closest chunks, and ground a
// chat completion on them. With no OpenAI client configured it degrades
// to a static acknowledgment so the tool still gets a result.
func NewQuestionAnswerHandler(client *openai.Client, kb KnowledgeSearcher, cfg QAConfig, logger *slog.Logger) Handler {
	cfg.defaults()
	return func(ctx context.Context, params map[string]any) (string, error) {
		question, _ := params["question"].(string)
		if question == "" {
			return "", fmt.Errorf("question_and_answer: missing question parameter")
		}

		if client == nil {
			logger.Warn("question_and_answer invoked without an OpenAI client")
			return fmt.Sprintf("I heard your question about %q, but the knowledge base is not available right now.", question), nil
		}

		var snippets []string
		if kb != nil {
			emb, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{question},
				Model: cfg.EmbeddingModel,
			})
			if err != nil {
				return "", fmt.Errorf("question_and_answer: embed question: %w", err)
			}
			if len(emb.Data) > 0 {
				chunks, err := kb.SearchKnowledge(ctx, emb.Data[0].Embedding, cfg.TopK)
				if err != nil {
					logger.Error("knowledge search failed", slog.Any("error", err))
				}
				for _, chunk := range chunks {
					snippets = append(snippets, chunk.Content)
				}
			}
		}

		systemPrompt := "You answer customer questions on a live phone call. Be brief and conversational."
		if len(snippets) > 0 {
			systemPrompt += "\n\nUse the following knowledge snippets when relevant:\n- " +
				strings.Join(snippets, "\n- ")
		}

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: cfg.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
		})
		if err != nil {
			return "", fmt.Errorf("question_and_answer: completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("question_and_answer: no completion choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}
