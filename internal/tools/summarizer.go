package tools

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISummarizer condenses a finished call's transcript into the short
// summary stored on the call record and fed to future calls as history.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISummarizer builds a summarizer; model is optional.
func NewOpenAISummarizer(client *openai.Client, model string) *OpenAISummarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISummarizer{client: client, model: model}
}

// Summarize returns a two-to-three sentence summary of the transcript.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if transcript == "" {
		return "", nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Summarize this phone call transcript in two to three sentences: outcome, any commitments made, and follow-ups.",
			},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize call: no completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}
