package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
)

// OpenAIConfig holds the chat completion parameters.
type OpenAIConfig struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// OpenAIGenerator calls the chat completions endpoint directly.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIGenerator wraps an existing client.
func NewOpenAIGenerator(client *openai.Client, cfg OpenAIConfig, logger zerolog.Logger) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	return &OpenAIGenerator{client: client, cfg: cfg, logger: logger}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, transcript []dialogue.Turn) (string, error) {
	if err := validateTranscript(transcript); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(transcript)),
	}
	for _, turn := range transcript {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	if g.cfg.Temperature != nil {
		req.Temperature = float32(*g.cfg.Temperature)
	}
	if g.cfg.TopP != nil {
		req.TopP = float32(*g.cfg.TopP)
	}
	if g.cfg.MaxTokens != nil {
		req.MaxTokens = *g.cfg.MaxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError("response has no choices", nil)
	}

	reply, err := cleanReply(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}

	g.logger.Debug().
		Str("model", g.cfg.Model).
		Int("turns", len(transcript)).
		Int("totalTokens", resp.Usage.TotalTokens).
		Msg("openai generated reply")
	return reply, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return generationError("chat completion timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return generationError("rate limited", err)
		}
		return generationError(fmt.Sprintf("chat completion failed with status %d", apiErr.HTTPStatusCode), err)
	}
	return generationError("chat completion request failed", err)
}
