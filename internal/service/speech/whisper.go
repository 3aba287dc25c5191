package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

// WhisperTranscriber transcribes audio with the OpenAI transcription endpoint.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperTranscriber creates a transcriber. language may be empty for auto detection.
func NewWhisperTranscriber(client *openai.Client, model, language string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model, language: language}
}

// Transcribe implements Transcriber.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, in speech.AudioInput) (speech.Transcript, error) {
	format := NormalizeAudioFormat(in.Format)

	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = w.language
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance." + format,
		Reader:   bytes.NewReader(in.Data),
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return speech.Transcript{}, fmt.Errorf("%w: whisper request failed: %w", ErrTranscription, err)
	}

	return speech.Transcript{
		SessionID: in.SessionID,
		Text:      strings.TrimSpace(resp.Text),
		Language:  resp.Language,
		Duration:  resp.Duration,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NormalizeAudioFormat 从格式名或文件名推断音频格式，未知时按 wav 处理。
func NormalizeAudioFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if idx := strings.LastIndex(format, "."); idx >= 0 {
		format = format[idx+1:]
	}
	format = strings.TrimPrefix(format, "audio/")

	switch format {
	case "mp3", "mpeg", "mpga":
		return "mp3"
	case "wav", "x-wav", "wave":
		return "wav"
	case "webm", "m4a", "ogg", "flac", "mp4":
		return format
	default:
		return "wav"
	}
}
