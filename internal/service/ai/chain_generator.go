package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
)

// ChainGenerator runs the transcript through an eino chain ending in a chat
// model (Ark in production).
type ChainGenerator struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger zerolog.Logger
}

// NewChainGenerator compiles the transcript -> chat model chain.
func NewChainGenerator(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*ChainGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("transcript", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainGenerator{chain: runnable, logger: logger}, nil
}

// Generate implements Generator.
func (g *ChainGenerator) Generate(ctx context.Context, transcript []dialogue.Turn) (string, error) {
	if err := validateTranscript(transcript); err != nil {
		return "", err
	}

	messages, err := toSchemaMessages(transcript)
	if err != nil {
		return "", generationError("malformed transcript", err)
	}

	response, err := g.chain.Invoke(ctx, map[string]any{"transcript": messages})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", generationError("model call timed out", err)
		}
		return "", generationError("failed to run chat chain", err)
	}
	if response == nil {
		return "", generationError("model returned no message", nil)
	}

	reply, err := cleanReply(response.Content)
	if err != nil {
		return "", err
	}

	g.logger.Debug().Int("turns", len(transcript)).Int("replyLength", len(reply)).Msg("chain generated reply")
	return reply, nil
}
