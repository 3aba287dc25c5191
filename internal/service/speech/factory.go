package speech

import (
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/config"
)

// NewFromConfig 根据配置装配转写与合成 provider；凭证缺失的能力保持为空，调用时返回 ErrNotConfigured。
func NewFromConfig(cfg config.SpeechConfig, logger zerolog.Logger) *Service {
	var transcriber Transcriber
	if cfg.TranscriptionEnabled() {
		client := config.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		transcriber = NewWhisperTranscriber(client, cfg.TranscribeModel, cfg.ASRLanguage)
	} else {
		logger.Warn().Str("provider", cfg.ASRProvider).Msg("transcription disabled: credentials missing")
	}

	var synthesizer Synthesizer
	switch {
	case !cfg.SynthesisEnabled():
		logger.Warn().Str("provider", cfg.TTSProvider).Msg("synthesis disabled: credentials missing")
	case cfg.TTSProvider == config.ProviderVolcengine:
		synthesizer = NewVolcengineSynthesizer(VolcengineConfig{
			AppID:       cfg.AppID,
			AccessToken: cfg.AccessToken,
			Voice:       cfg.TTSVoice,
			Speed:       cfg.TTSSpeed,
			Volume:      cfg.TTSVolume,
			Language:    cfg.TTSLanguage,
		}, logger.With().Str("provider", config.ProviderVolcengine).Logger())
	default:
		synthesizer = NewElevenLabsSynthesizer(ElevenLabsConfig{
			APIKey:       cfg.ElevenAPIKey,
			BaseURL:      cfg.ElevenBaseURL,
			VoiceID:      cfg.ElevenVoiceID,
			ModelID:      cfg.ElevenModelID,
			OutputFormat: cfg.ElevenOutputFormat,
		}, logger.With().Str("provider", config.ProviderElevenLabs).Logger())
	}

	return NewService(transcriber, synthesizer, cfg.Timeout, logger)
}
