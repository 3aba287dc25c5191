package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

const defaultVolcengineEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// errResourceMismatch 音色与资源 ID 不匹配，换下一个资源重试。
var errResourceMismatch = errors.New("resource id mismatched with speaker")

// VolcengineConfig 火山引擎单向流式 TTS 配置。
type VolcengineConfig struct {
	AppID       string
	AccessToken string
	Voice       string
	Speed       float32
	Volume      float32
	Language    string
	// Endpoint 为空时使用线上地址
	Endpoint string
}

// VolcengineSynthesizer 火山引擎TTS WebSocket客户端
type VolcengineSynthesizer struct {
	cfg    VolcengineConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewVolcengineSynthesizer 创建火山引擎TTS客户端
func NewVolcengineSynthesizer(cfg VolcengineConfig, logger zerolog.Logger) *VolcengineSynthesizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultVolcengineEndpoint
	}
	return &VolcengineSynthesizer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type volcRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams volcReqParams `json:"req_params"`
}

type volcReqParams struct {
	Speaker     string          `json:"speaker"`
	Text        string          `json:"text"`
	AudioParams volcAudioParams `json:"audio_params"`
	Additions   string          `json:"additions,omitempty"`
	Language    string          `json:"language,omitempty"`
}

type volcAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio   float32 `json:"speed_ratio,omitempty"`
	VolumeRatio  float32 `json:"volume_ratio,omitempty"`
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale float32 `json:"emotion_scale,omitempty"`
}

type volcServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize implements Synthesizer.
func (v *VolcengineSynthesizer) Synthesize(ctx context.Context, in speech.SynthesisInput) (speech.Audio, error) {
	if strings.TrimSpace(in.Text) == "" {
		return speech.Audio{}, fmt.Errorf("%w: text is empty", ErrSynthesis)
	}
	if v.cfg.AppID == "" || v.cfg.AccessToken == "" {
		return speech.Audio{}, fmt.Errorf("%w: %w: volcengine credentials missing", ErrSynthesis, ErrNotConfigured)
	}

	// 单向流式接口不支持 wav 输出
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" || format == "wav" {
		format = "mp3"
	}

	var lastErr error
	for _, speaker := range speakerCandidates(in.Voice, v.cfg.Voice) {
		for _, resource := range resourceCandidates(speaker) {
			audio, err := v.synthesizeOnce(ctx, in, speaker, resource, format)
			if err == nil {
				return audio, nil
			}
			if !errors.Is(err, errResourceMismatch) {
				return speech.Audio{}, err
			}
			v.logger.Warn().
				Str("speaker", speaker).
				Str("resource", resource).
				Msg("volcengine resource mismatch, trying next candidate")
			lastErr = err
		}
	}
	return speech.Audio{}, lastErr
}

func (v *VolcengineSynthesizer) synthesizeOnce(ctx context.Context, in speech.SynthesisInput, speaker, resource, format string) (speech.Audio, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", v.cfg.AppID)
	header.Set("X-Api-Access-Key", v.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := v.dialer.DialContext(ctx, v.cfg.Endpoint, header)
	if err != nil {
		return speech.Audio{}, fmt.Errorf("%w: dial volcengine: %w", ErrSynthesis, err)
	}
	defer conn.Close()
	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			v.logger.Debug().Str("logId", logID).Str("speaker", speaker).Msg("volcengine tts connected")
		}
	}

	// ctx 取消时关闭连接，打断阻塞中的 ReadMessage
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	payload, err := sonic.Marshal(v.buildRequest(in, speaker, format))
	if err != nil {
		return speech.Audio{}, fmt.Errorf("%w: marshal request: %w", ErrSynthesis, err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newClientRequest(payload).marshal()); err != nil {
		return speech.Audio{}, fmt.Errorf("%w: send request: %w", ErrSynthesis, err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return speech.Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, ctxErr)
			}
			return speech.Audio{}, fmt.Errorf("%w: read response: %w", ErrSynthesis, err)
		}

		f, err := parseFrame(data)
		if err != nil {
			return speech.Audio{}, fmt.Errorf("%w: decode frame: %w", ErrSynthesis, err)
		}
		body, err := f.body()
		if err != nil {
			return speech.Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
		}

		var last bool
		switch f.Type {
		case frameError:
			if strings.Contains(string(body), "resource ID is mismatched") {
				return speech.Audio{}, fmt.Errorf("%w: %w: %s", ErrSynthesis, errResourceMismatch, body)
			}
			return speech.Audio{}, fmt.Errorf("%w: volcengine error %d: %s", ErrSynthesis, f.ErrorCode, body)

		case frameAudioOnlyResponse:
			audio.Write(body)
			last = f.isLast()

		case frameFullServerResponse:
			if f.hasEvent() && f.Event == eventSessionFailed {
				return speech.Audio{}, fmt.Errorf("%w: volcengine session failed: %s", ErrSynthesis, body)
			}

			var msg volcServerMessage
			if len(body) > 0 && f.Serialization == serializationJSON {
				if err := sonic.Unmarshal(body, &msg); err != nil {
					return speech.Audio{}, fmt.Errorf("%w: unmarshal response: %w", ErrSynthesis, err)
				}
				// 3000 表示成功
				if msg.Code != 0 && msg.Code != 3000 {
					return speech.Audio{}, fmt.Errorf("%w: volcengine api error %d: %s", ErrSynthesis, msg.Code, msg.Message)
				}
				if msg.ReqID != "" {
					reqID = msg.ReqID
				}
				if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
					duration = ms
				}
				if msg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(msg.Data)
					if err != nil {
						return speech.Audio{}, fmt.Errorf("%w: decode audio chunk: %w", ErrSynthesis, err)
					}
					audio.Write(chunk)
				}
			}
			last = (f.hasEvent() && f.Event == eventSessionFinished) || f.isLast() || msg.Sequence < 0

		default:
			v.logger.Debug().Uint8("type", uint8(f.Type)).Msg("ignoring unexpected volcengine frame")
		}

		if last {
			if audio.Len() == 0 {
				return speech.Audio{}, fmt.Errorf("%w: volcengine returned no audio", ErrSynthesis)
			}
			if reqID == "" {
				reqID = connectID
			}
			return speech.Audio{
				SessionID: in.SessionID,
				Data:      audio.Bytes(),
				Format:    format,
				Duration:  duration,
				RequestID: reqID,
				CreatedAt: time.Now().UTC(),
			}, nil
		}
	}
}

func (v *VolcengineSynthesizer) buildRequest(in speech.SynthesisInput, speaker, format string) *volcRequest {
	req := &volcRequest{}

	req.User.UID = in.SessionID
	if req.User.UID == "" {
		req.User.UID = uuid.NewString()
	}

	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = in.Text
	req.ReqParams.AudioParams = volcAudioParams{Format: format, SampleRate: 24000}

	speed := in.Speed
	if speed <= 0 {
		speed = v.cfg.Speed
	}
	if speed > 0 && speed != 1 {
		req.ReqParams.AudioParams.SpeedRatio = speed
	}
	if v.cfg.Volume > 0 && v.cfg.Volume != 1 {
		req.ReqParams.AudioParams.VolumeRatio = v.cfg.Volume
	}

	// 仅多情感音色支持 emotion 参数，其他音色会忽略
	if emotion := strings.ToLower(strings.TrimSpace(in.Emotion)); emotion != "" && emotion != "neutral" {
		req.ReqParams.AudioParams.Emotion = emotion
		req.ReqParams.AudioParams.EmotionScale = clampEmotionScale(in.EmotionScale)
	}

	req.ReqParams.Language = strings.TrimSpace(in.Language)
	if req.ReqParams.Language == "" {
		req.ReqParams.Language = v.cfg.Language
	}
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return req
}

func clampEmotionScale(scale float32) float32 {
	switch {
	case scale <= 0:
		return 4
	case scale < 1:
		return 1
	case scale > 5:
		return 5
	default:
		return scale
	}
}
