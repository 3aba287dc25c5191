package call

import (
	"context"
	"errors"
	"net/http"
	"strings"

	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	callservice "github.com/objectionlab/voicecall/backend/internal/service/call"
	"github.com/objectionlab/voicecall/backend/internal/service/speech"
	"github.com/objectionlab/voicecall/backend/pkg/utils"
)

type legacyTranscribeRequest struct {
	Audio  string `json:"audio"`
	CallID string `json:"callId"`
	Format string `json:"format"`
}

type legacyTranscribeResponse struct {
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	Audio      string `json:"audio"`
	CallID     string `json:"callId"`
	TurnCount  int    `json:"turnCount"`
}

// handleLegacyTranscribe 兼容最早的单接口客户端。没有 callId 时用默认人设新开一通电话，
// 并在响应中返回 callId，后续请求带上它即可继续同一通话。
func (h *Handler) handleLegacyTranscribe(w http.ResponseWriter, r *http.Request) {
	var req legacyTranscribeRequest
	if err := h.decode(w, r, &req); err != nil || strings.TrimSpace(req.Audio) == "" {
		utils.RespondError(w, http.StatusBadRequest, "No audio provided")
		return
	}

	audio, err := decodeAudio(req.Audio)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "No audio provided")
		return
	}

	callID := strings.TrimSpace(req.CallID)
	started := false
	if callID == "" {
		c, err := h.calls.StartCall(r.Context(), h.opts.DefaultPersona)
		if err != nil {
			h.respondFailure(w, r, err)
			return
		}
		callID = c.ID
		started = true
	}

	c, release, err := h.calls.Acquire(r.Context(), callID)
	if err != nil {
		h.discardStarted(r, callID, started)
		h.respondFailure(w, r, err)
		return
	}
	defer release()

	format := req.Format
	if format == "" {
		format = "wav"
	}
	result, err := h.pipeline.ProcessTurn(r.Context(), c, speechmodel.AudioInput{Data: audio, Format: format})
	if err != nil {
		// 失败响应里没有 callId，本次新开的通话客户端无从继续，直接结束
		release()
		h.discardStarted(r, callID, started)
		if errors.Is(err, speech.ErrTranscription) && !errors.Is(err, speech.ErrNotConfigured) {
			utils.RespondError(w, http.StatusBadRequest, "Could not transcribe audio")
			return
		}
		h.respondFailure(w, r, err)
		return
	}

	resp := newTurnResponse(c.ID, result)
	utils.RespondJSON(w, http.StatusOK, legacyTranscribeResponse{
		Transcript: resp.Transcript,
		Reply:      resp.Reply,
		Audio:      resp.Audio,
		CallID:     resp.CallID,
		TurnCount:  resp.TurnCount,
	})
}

func (h *Handler) discardStarted(r *http.Request, callID string, started bool) {
	if !started {
		return
	}
	if err := h.calls.EndCall(context.WithoutCancel(r.Context()), callID); err != nil && !errors.Is(err, callservice.ErrCallNotFound) {
		h.logger.Warn().Err(err).Str("callId", callID).Msg("failed to end call after first turn failed")
	}
}
