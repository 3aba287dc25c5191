package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

const defaultElevenBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsConfig ElevenLabs stream-input 合成配置。
type ElevenLabsConfig struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	ModelID         string
	OutputFormat    string
	Stability       float64
	SimilarityBoost float64
}

// ElevenLabsSynthesizer 每次合成建立一条 stream-input 连接，整段回复一次发送后读取到 isFinal。
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

type elevenInit struct {
	Text          string              `json:"text"`
	VoiceSettings elevenVoiceSettings `json:"voice_settings"`
}

type elevenVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenText struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type elevenServerMessage struct {
	Audio   *string `json:"audio"`
	IsFinal bool    `json:"isFinal"`
	Error   string  `json:"error,omitempty"`
	Message string  `json:"message,omitempty"`
	Code    int     `json:"code,omitempty"`
}

// NewElevenLabsSynthesizer creates a synthesizer with defaults filled in.
func NewElevenLabsSynthesizer(cfg ElevenLabsConfig, logger zerolog.Logger) *ElevenLabsSynthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_turbo_v2_5"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = 0.75
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Synthesize implements Synthesizer.
func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, in speech.SynthesisInput) (speech.Audio, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return speech.Audio{}, fmt.Errorf("%w: text is empty", ErrSynthesis)
	}

	voice := strings.TrimSpace(in.Voice)
	if voice == "" {
		voice = e.cfg.VoiceID
	}
	if e.cfg.APIKey == "" || voice == "" {
		return speech.Audio{}, fmt.Errorf("%w: %w: elevenlabs api key or voice id missing", ErrSynthesis, ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		strings.TrimRight(e.cfg.BaseURL, "/"),
		url.PathEscape(voice),
		url.QueryEscape(e.cfg.ModelID),
		url.QueryEscape(e.cfg.OutputFormat),
	)
	header := http.Header{}
	header.Set("xi-api-key", e.cfg.APIKey)

	conn, _, err := e.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return speech.Audio{}, fmt.Errorf("%w: dial elevenlabs: %w", ErrSynthesis, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// 协议要求：首帧为单个空格，随后是正文（以空格结尾），最后发送空串结束输入
	messages := []any{
		elevenInit{
			Text:          " ",
			VoiceSettings: elevenVoiceSettings{Stability: e.stabilityFor(in.Emotion, in.EmotionScale), SimilarityBoost: e.cfg.SimilarityBoost},
		},
		elevenText{Text: text + " ", TryTriggerGeneration: true},
		elevenText{Text: ""},
	}
	for _, msg := range messages {
		payload, err := sonic.Marshal(msg)
		if err != nil {
			return speech.Audio{}, fmt.Errorf("%w: marshal message: %w", ErrSynthesis, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return speech.Audio{}, fmt.Errorf("%w: send text: %w", ErrSynthesis, err)
		}
	}

	var audio bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return speech.Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, ctxErr)
			}
			// 服务端在 isFinal 之后可能直接关闭连接
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && audio.Len() > 0 {
				break
			}
			return speech.Audio{}, fmt.Errorf("%w: read elevenlabs stream: %w", ErrSynthesis, err)
		}

		var msg elevenServerMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return speech.Audio{}, fmt.Errorf("%w: unmarshal elevenlabs message: %w", ErrSynthesis, err)
		}
		if msg.Error != "" {
			return speech.Audio{}, fmt.Errorf("%w: elevenlabs error %s: %s", ErrSynthesis, msg.Error, msg.Message)
		}
		if msg.Audio != nil && *msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(*msg.Audio)
			if err != nil {
				return speech.Audio{}, fmt.Errorf("%w: decode audio chunk: %w", ErrSynthesis, err)
			}
			audio.Write(chunk)
		}
		if msg.IsFinal {
			break
		}
	}

	if audio.Len() == 0 {
		return speech.Audio{}, fmt.Errorf("%w: elevenlabs returned no audio", ErrSynthesis)
	}

	e.logger.Debug().Str("voice", voice).Int("bytes", audio.Len()).Msg("elevenlabs synthesis complete")
	return speech.Audio{
		SessionID: in.SessionID,
		Data:      audio.Bytes(),
		Format:    formatFromOutput(e.cfg.OutputFormat),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// formatFromOutput mp3_44100_128 -> mp3, pcm_24000 -> pcm
func formatFromOutput(outputFormat string) string {
	if idx := strings.Index(outputFormat, "_"); idx > 0 {
		return outputFormat[:idx]
	}
	return outputFormat
}

// stabilityFor 情绪越强稳定度越低，语气起伏更大。
func (e *ElevenLabsSynthesizer) stabilityFor(emotion string, scale float32) float64 {
	switch strings.ToLower(strings.TrimSpace(emotion)) {
	case "", "neutral":
		return e.cfg.Stability
	}
	if scale <= 0 {
		scale = 3
	}
	stability := e.cfg.Stability - float64(scale)*0.06
	if stability < 0.15 {
		stability = 0.15
	}
	return stability
}
