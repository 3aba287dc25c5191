package call

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
	"github.com/objectionlab/voicecall/backend/internal/service/ai"
	callservice "github.com/objectionlab/voicecall/backend/internal/service/call"
	"github.com/objectionlab/voicecall/backend/internal/service/speech"
)

// errorStatus 把各层的哨兵错误映射为 HTTP 状态码与对外消息。
func errorStatus(err error) (int, string) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, verrs.Error()
	case errors.Is(err, callservice.ErrCallNotFound), errors.Is(err, callservice.ErrPersonaNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, callservice.ErrPersonaRequired), errors.Is(err, dialogue.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, callservice.ErrTurnInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, callservice.ErrTooManyCalls):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, speech.ErrNotConfigured), errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, speech.ErrTranscription):
		return http.StatusUnprocessableEntity, "could not transcribe audio"
	case errors.Is(err, ai.ErrGeneration):
		return http.StatusBadGateway, "reply generation failed"
	case errors.Is(err, speech.ErrSynthesis):
		return http.StatusBadGateway, "speech synthesis failed"
	case errors.Is(err, dialogue.ErrConfiguration):
		return http.StatusInternalServerError, "persona is misconfigured"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
