package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/model/persona"
	"github.com/objectionlab/voicecall/backend/internal/model/speech"
	speechsvc "github.com/objectionlab/voicecall/backend/internal/service/speech"
	"github.com/objectionlab/voicecall/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	speechsvc.Transcriber
	speechsvc.Synthesizer
	CanTranscribe() bool
	CanSynthesize() bool
}

// Handler 单独调试转写与合成的HTTP处理器，不触碰任何通话记录
type Handler struct {
	speechSvc     SpeechService
	personas      persona.Store
	maxAudioBytes int64
	logger        zerolog.Logger
}

// New 创建语音处理器
func New(speechSvc SpeechService, personas persona.Store, maxAudioBytes int64, logger zerolog.Logger) *Handler {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 25 << 20
	}
	return &Handler{
		speechSvc:     speechSvc,
		personas:      personas,
		maxAudioBytes: maxAudioBytes,
		logger:        logger,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(r chi.Router) {
		r.Post("/transcribe", h.handleTranscribe)
		r.Post("/synthesize", h.handleSynthesize)
		r.Get("/health", h.handleHealth)
	})
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	PersonaID string `json:"personaId"`
	Format    string `json:"format"`
}

func (r synthesizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 4000)),
	)
}

// handleTranscribe 处理 multipart 表单中的 audio 文件
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = header.Filename
	}

	resp, err := h.speechSvc.Transcribe(r.Context(), speech.AudioInput{
		SessionID: r.FormValue("sessionId"),
		Data:      data,
		Format:    speechsvc.NormalizeAudioFormat(format),
		Language:  r.FormValue("language"),
	})
	if err != nil {
		h.respondSpeechError(w, err, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 合成后直接返回音频字节
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := utils.DecodeJSON(w, r, 64<<10, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = h.resolvePersonaVoice(r.Context(), req.PersonaID)
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), speech.SynthesisInput{
		Text:   req.Text,
		Voice:  voice,
		Format: req.Format,
	})
	if err != nil {
		h.respondSpeechError(w, err, "speech synthesis failed")
		return
	}

	format := resp.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Data); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write audio response")
	}
}

func (h *Handler) resolvePersonaVoice(_ context.Context, personaID string) string {
	personaID = strings.TrimSpace(personaID)
	if personaID == "" || h.personas == nil {
		return ""
	}
	p, ok := h.personas.FindByID(personaID)
	if !ok {
		return ""
	}
	return p.VoiceID
}

// handleHealth 报告两种能力是否可用
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"service":       "speech",
		"transcription": h.speechSvc.CanTranscribe(),
		"synthesis":     h.speechSvc.CanSynthesize(),
	})
}

func (h *Handler) respondSpeechError(w http.ResponseWriter, err error, message string) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, speechsvc.ErrNotConfigured):
		status = http.StatusServiceUnavailable
		message = err.Error()
	case errors.Is(err, speechsvc.ErrTranscription):
		status = http.StatusUnprocessableEntity
	}
	h.logger.Warn().Err(err).Int("status", status).Msg(message)
	utils.RespondError(w, status, message)
}
