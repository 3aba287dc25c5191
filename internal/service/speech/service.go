package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

var (
	// ErrTranscription 转写失败或未检测到语音。
	ErrTranscription = errors.New("transcription error")
	// ErrSynthesis 语音合成失败。
	ErrSynthesis = errors.New("synthesis error")
	// ErrNotConfigured 对应 provider 缺少凭证，与上面两个错误一起包装返回。
	ErrNotConfigured = errors.New("speech provider not configured")
)

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, in speech.AudioInput) (speech.Transcript, error)
}

// Synthesizer 文字转语音
type Synthesizer interface {
	Synthesize(ctx context.Context, in speech.SynthesisInput) (speech.Audio, error)
}

// Service 组合转写与合成 provider，并为每次外部调用加上超时。
type Service struct {
	transcriber Transcriber
	synthesizer Synthesizer
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewService 创建语音服务实例，provider 可以为 nil（对应能力未配置）。
func NewService(transcriber Transcriber, synthesizer Synthesizer, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		transcriber: transcriber,
		synthesizer: synthesizer,
		timeout:     timeout,
		logger:      logger,
	}
}

// CanTranscribe 是否配置了转写 provider。
func (s *Service) CanTranscribe() bool {
	return s != nil && s.transcriber != nil
}

// CanSynthesize 是否配置了合成 provider。
func (s *Service) CanSynthesize() bool {
	return s != nil && s.synthesizer != nil
}

// Transcribe 语音转文字，空文本视为未检测到语音。
func (s *Service) Transcribe(ctx context.Context, in speech.AudioInput) (speech.Transcript, error) {
	if !s.CanTranscribe() {
		return speech.Transcript{}, fmt.Errorf("%w: %w", ErrTranscription, ErrNotConfigured)
	}
	if len(in.Data) == 0 {
		return speech.Transcript{}, fmt.Errorf("%w: audio is empty", ErrTranscription)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, in)
	if err != nil {
		return speech.Transcript{}, ensureWrapped(ErrTranscription, err)
	}
	if result.Text == "" {
		return speech.Transcript{}, fmt.Errorf("%w: no speech detected", ErrTranscription)
	}

	s.logger.Debug().
		Str("sessionId", in.SessionID).
		Int("audioBytes", len(in.Data)).
		Dur("took", time.Since(start)).
		Msg("transcribed utterance")
	return result, nil
}

// Synthesize 文字转语音
func (s *Service) Synthesize(ctx context.Context, in speech.SynthesisInput) (speech.Audio, error) {
	if !s.CanSynthesize() {
		return speech.Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, ErrNotConfigured)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	audio, err := s.synthesizer.Synthesize(ctx, in)
	if err != nil {
		return speech.Audio{}, ensureWrapped(ErrSynthesis, err)
	}
	if len(audio.Data) == 0 {
		return speech.Audio{}, fmt.Errorf("%w: provider returned no audio", ErrSynthesis)
	}

	s.logger.Debug().
		Str("sessionId", in.SessionID).
		Int("audioBytes", len(audio.Data)).
		Dur("took", time.Since(start)).
		Msg("synthesized reply")
	return audio, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureWrapped(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
