package call

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	modelcall "github.com/objectionlab/voicecall/backend/internal/model/call"
	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	callservice "github.com/objectionlab/voicecall/backend/internal/service/call"
	"github.com/objectionlab/voicecall/backend/pkg/utils"
)

const maxTextLength = 4000

// Options 处理器的可调参数。
type Options struct {
	DefaultPersona string
	MaxAudioBytes  int64
}

// Handler 通话相关的HTTP与WebSocket处理器
type Handler struct {
	calls    *callservice.Service
	pipeline *callservice.Pipeline
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New 创建通话处理器
func New(calls *callservice.Service, pipeline *callservice.Pipeline, opts Options, logger zerolog.Logger) *Handler {
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 25 << 20
	}
	return &Handler{
		calls:    calls,
		pipeline: pipeline,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册 /api 下的通话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/calls", func(r chi.Router) {
		r.Post("/", h.handleStartCall)
		r.Get("/", h.handleListCalls)
		r.Route("/{callID}", func(r chi.Router) {
			r.Get("/", h.handleGetCall)
			r.Delete("/", h.handleEndCall)
			r.Post("/turns", h.handleAudioTurn)
			r.Post("/messages", h.handleTextTurn)
			r.Get("/ws", h.handleWebSocket)
		})
	})
}

// RegisterLegacyRoutes 注册根路径下兼容旧客户端的接口
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Post("/transcribe", h.handleLegacyTranscribe)
}

type startCallRequest struct {
	PersonaID string `json:"personaId"`
}

type startCallResponse struct {
	CallID      string    `json:"callId"`
	PersonaID   string    `json:"personaId"`
	OpeningLine string    `json:"openingLine,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type audioTurnRequest struct {
	Audio    string `json:"audio"`
	Format   string `json:"format"`
	Language string `json:"language"`
}

func (r audioTurnRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Audio, validation.Required),
		validation.Field(&r.Format, validation.Length(0, 16)),
		validation.Field(&r.Language, validation.Length(0, 8)),
	)
}

type textTurnRequest struct {
	Text string `json:"text"`
}

func (r textTurnRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text,
			validation.Required,
			validation.By(notBlank),
			validation.Length(1, maxTextLength),
		),
	)
}

type turnResponse struct {
	CallID          string `json:"callId"`
	Transcript      string `json:"transcript"`
	Reply           string `json:"reply"`
	Audio           string `json:"audio"`
	AudioFormat     string `json:"audioFormat,omitempty"`
	TurnCount       int    `json:"turnCount"`
	WrapUpSuggested bool   `json:"wrapUpSuggested"`
	Tone            string `json:"tone,omitempty"`
}

func newTurnResponse(callID string, result modelcall.TurnResult) turnResponse {
	return turnResponse{
		CallID:          callID,
		Transcript:      result.Transcript,
		Reply:           result.Reply,
		Audio:           base64.StdEncoding.EncodeToString(result.Audio),
		AudioFormat:     result.AudioFormat,
		TurnCount:       result.TurnCount,
		WrapUpSuggested: result.WrapUpSuggested,
		Tone:            string(result.Tone.Emotion),
	}
}

// handleStartCall 开始一通电话，请求体可省略，此时使用默认人设
func (h *Handler) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(w, r, 4<<10, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	personaID := strings.TrimSpace(req.PersonaID)
	if personaID == "" {
		personaID = h.opts.DefaultPersona
	}

	c, err := h.calls.StartCall(r.Context(), personaID)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, startCallResponse{
		CallID:      c.ID,
		PersonaID:   c.PersonaID,
		OpeningLine: c.OpeningLine,
		CreatedAt:   c.CreatedAt,
	})
}

func (h *Handler) handleListCalls(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.calls.ListCalls(r.Context()))
}

func (h *Handler) handleGetCall(w http.ResponseWriter, r *http.Request) {
	c, err := h.calls.GetCall(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, c.Summary(true))
}

func (h *Handler) handleEndCall(w http.ResponseWriter, r *http.Request) {
	if err := h.calls.EndCall(r.Context(), chi.URLParam(r, "callID")); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAudioTurn 处理一段 base64 编码的录音
func (h *Handler) handleAudioTurn(w http.ResponseWriter, r *http.Request) {
	var req audioTurnRequest
	if err := h.decode(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	audio, err := decodeAudio(req.Audio)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	callID := chi.URLParam(r, "callID")
	c, release, err := h.calls.Acquire(r.Context(), callID)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	defer release()

	result, err := h.pipeline.ProcessTurn(r.Context(), c, speechmodel.AudioInput{
		Data:     audio,
		Format:   req.Format,
		Language: req.Language,
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, newTurnResponse(c.ID, result))
}

// handleTextTurn 处理键入的文本，跳过转写
func (h *Handler) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	var req textTurnRequest
	if err := h.decode(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	c, release, err := h.calls.Acquire(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	defer release()

	result, err := h.pipeline.ProcessText(r.Context(), c, req.Text)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, newTurnResponse(c.ID, result))
}

// decode 限制请求体大小：base64 比原始音频大约多三分之一
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return utils.DecodeJSON(w, r, h.opts.MaxAudioBytes*4/3+4096, v)
}

func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("request failed")
	utils.RespondError(w, status, message)
}

func decodeAudio(encoded string) ([]byte, error) {
	// 兼容 data URL 形式：data:audio/webm;base64,xxxx
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	audio, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("audio is not valid base64: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("audio is empty")
	}
	return audio, nil
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: must not be blank", dialogue.ErrInvalidInput)
	}
	return nil
}
