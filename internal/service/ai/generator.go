package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
)

// ErrGeneration marks any failure of the language model collaborator. It is
// never retried here; the caller reports the turn as failed.
var ErrGeneration = errors.New("generation error")

// ErrNotConfigured is wrapped together with ErrGeneration when no provider
// credentials were supplied.
var ErrNotConfigured = errors.New("generation provider not configured")

// Generator produces the next assistant utterance for a transcript whose last
// turn is the user's.
type Generator interface {
	Generate(ctx context.Context, transcript []dialogue.Turn) (string, error)
}

func generationError(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrGeneration, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrGeneration, reason, err)
}

// toSchemaMessages converts the transcript into eino messages.
func toSchemaMessages(transcript []dialogue.Turn) ([]*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(transcript))
	for i, turn := range transcript {
		switch turn.Role {
		case dialogue.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case dialogue.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case dialogue.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			return nil, fmt.Errorf("turn %d has unknown role %q", i, turn.Role)
		}
	}
	return messages, nil
}

func validateTranscript(transcript []dialogue.Turn) error {
	if len(transcript) < 2 {
		return generationError("transcript has no user turn", nil)
	}
	if transcript[len(transcript)-1].Role != dialogue.RoleUser {
		return generationError("last turn must be the user's", nil)
	}
	return nil
}

func cleanReply(content string) (string, error) {
	reply := strings.TrimSpace(content)
	if reply == "" {
		return "", generationError("model returned an empty reply", nil)
	}
	return reply, nil
}
