package speech

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectionlab/voicecall/backend/internal/model/persona"
	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	speechsvc "github.com/objectionlab/voicecall/backend/internal/service/speech"
)

type fakeSpeechService struct {
	transcribed speechmodel.AudioInput
	synthVoice  string
	err         error
}

func (f *fakeSpeechService) Transcribe(_ context.Context, in speechmodel.AudioInput) (speechmodel.Transcript, error) {
	f.transcribed = in
	if f.err != nil {
		return speechmodel.Transcript{}, f.err
	}
	return speechmodel.Transcript{SessionID: in.SessionID, Text: "ok"}, nil
}

func (f *fakeSpeechService) Synthesize(_ context.Context, in speechmodel.SynthesisInput) (speechmodel.Audio, error) {
	f.synthVoice = in.Voice
	if f.err != nil {
		return speechmodel.Audio{}, f.err
	}
	return speechmodel.Audio{Data: []byte("audio"), Format: "mp3"}, nil
}

func (f *fakeSpeechService) CanTranscribe() bool { return true }
func (f *fakeSpeechService) CanSynthesize() bool { return f.err == nil }

func newTestRouter(svc SpeechService) http.Handler {
	personas := persona.NewMemoryStore([]persona.Persona{{ID: "tyler", VoiceID: "voice-tyler"}})
	r := chi.NewRouter()
	New(svc, personas, 1<<20, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func multipartAudio(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("audio"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestTranscribeMultipart(t *testing.T) {
	svc := &fakeSpeechService{}
	body, contentType := multipartAudio(t, "clip.webm", map[string]string{"sessionId": "s-1", "language": "en"})

	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"text":"ok"`)
	assert.Equal(t, "webm", svc.transcribed.Format)
	assert.Equal(t, "s-1", svc.transcribed.SessionID)
	assert.Equal(t, []byte("audio"), svc.transcribed.Data)
}

func TestTranscribeRequiresAudio(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("language", "en"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestRouter(&fakeSpeechService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeNoSpeech(t *testing.T) {
	svc := &fakeSpeechService{err: fmt.Errorf("%w: no speech detected", speechsvc.ErrTranscription)}
	body, contentType := multipartAudio(t, "clip.wav", nil)

	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSynthesizeUsesPersonaVoice(t *testing.T) {
	svc := &fakeSpeechService{}
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"hello","personaId":"tyler"}`))
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp3", rec.Header().Get("Content-Type"))
	assert.Equal(t, "audio", rec.Body.String())
	assert.Equal(t, "voice-tyler", svc.synthVoice)
}

func TestSynthesizeValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":""}`))
	rec := httptest.NewRecorder()
	newTestRouter(&fakeSpeechService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSynthesizeNotConfigured(t *testing.T) {
	svc := &fakeSpeechService{err: fmt.Errorf("%w: %w", speechsvc.ErrSynthesis, speechsvc.ErrNotConfigured)}
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/speech/health", nil))
	assert.JSONEq(t, `{"status":"healthy","service":"speech","transcription":true,"synthesis":false}`, rec.Body.String())
}
