package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/analysis/emotion"
	modelcall "github.com/objectionlab/voicecall/backend/internal/model/call"
	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	"github.com/objectionlab/voicecall/backend/internal/service/ai"
	"github.com/objectionlab/voicecall/backend/internal/service/speech"
)

// PipelineConfig 单轮对话的外部调用参数。
type PipelineConfig struct {
	GenerateTimeout time.Duration
	WrapUpAfter     int
	AudioFormat     string
	// ToneEnabled 根据回复内容推断语气，随合成请求一起发送
	ToneEnabled     bool
}

// Pipeline 执行一轮对话：转写 -> 生成 -> 合成 -> 提交。
// 调用方必须先通过 Service.Acquire 独占通话。
type Pipeline struct {
	transcriber speech.Transcriber
	generator   ai.Generator
	synthesizer speech.Synthesizer
	cfg         PipelineConfig
	logger      zerolog.Logger
}

// NewPipeline wires the collaborators used by every turn.
func NewPipeline(transcriber speech.Transcriber, generator ai.Generator, synthesizer speech.Synthesizer, cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	return &Pipeline{
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger,
	}
}

// ProcessTurn 处理一段用户录音。任何一步失败时对话记录保持不变，同一段录音可以直接重试。
func (p *Pipeline) ProcessTurn(ctx context.Context, c *Call, audio speechmodel.AudioInput) (modelcall.TurnResult, error) {
	audio.SessionID = c.ID
	transcript, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return modelcall.TurnResult{}, err
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return modelcall.TurnResult{}, fmt.Errorf("%w: no speech detected", speech.ErrTranscription)
	}
	return p.respond(ctx, c, transcript.Text)
}

// ProcessText 处理键入的文本，跳过转写。
func (p *Pipeline) ProcessText(ctx context.Context, c *Call, text string) (modelcall.TurnResult, error) {
	return p.respond(ctx, c, strings.TrimSpace(text))
}

func (p *Pipeline) respond(ctx context.Context, c *Call, text string) (modelcall.TurnResult, error) {
	log := p.logger.With().Str("callId", c.ID).Logger()
	start := time.Now()

	if p.generator == nil {
		return modelcall.TurnResult{}, fmt.Errorf("%w: %w", ai.ErrGeneration, ai.ErrNotConfigured)
	}

	c.mu.Lock()
	candidate, err := c.session.Pending(text)
	c.mu.Unlock()
	if err != nil {
		return modelcall.TurnResult{}, err
	}

	genCtx, cancel := p.generateContext(ctx)
	reply, err := p.generator.Generate(genCtx, candidate)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ai.ErrGeneration) {
			err = fmt.Errorf("%w: %w", ai.ErrGeneration, err)
		}
		log.Warn().Err(err).Msg("generation failed, transcript unchanged")
		return modelcall.TurnResult{}, err
	}
	if strings.TrimSpace(reply) == "" {
		log.Warn().Msg("generator returned a blank reply, transcript unchanged")
		return modelcall.TurnResult{}, fmt.Errorf("%w: empty reply", ai.ErrGeneration)
	}

	var tone emotion.Decision
	if p.cfg.ToneEnabled {
		tone = emotion.Analyze(text, reply)
	}

	audio, err := p.synthesizer.Synthesize(ctx, speechmodel.SynthesisInput{
		SessionID:    c.ID,
		Text:         reply,
		Voice:        c.Voice,
		Format:       p.cfg.AudioFormat,
		Emotion:      string(tone.Emotion),
		EmotionScale: tone.Scale,
	})
	if err != nil {
		log.Warn().Err(err).Msg("synthesis failed, transcript unchanged")
		return modelcall.TurnResult{}, err
	}

	c.mu.Lock()
	if err := c.session.RecordExchange(text, reply); err != nil {
		c.mu.Unlock()
		return modelcall.TurnResult{}, err
	}
	turns := c.session.TurnCount()
	exchanges := c.session.Exchanges()
	c.mu.Unlock()

	wrapUp := p.cfg.WrapUpAfter > 0 && exchanges >= p.cfg.WrapUpAfter
	log.Info().
		Int("turnCount", turns).
		Bool("wrapUpSuggested", wrapUp).
		Str("tone", string(tone.Emotion)).
		Dur("took", time.Since(start)).
		Msg("turn completed")

	return modelcall.TurnResult{
		Transcript:      text,
		Reply:           reply,
		Audio:           audio.Data,
		AudioFormat:     audio.Format,
		TurnCount:       turns,
		WrapUpSuggested: wrapUp,
		Tone:            tone,
	}, nil
}

func (p *Pipeline) generateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.GenerateTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.GenerateTimeout)
}
