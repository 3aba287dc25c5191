package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectionlab/voicecall/backend/internal/model/speech"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestVolcengineSynthesizeCollectsAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "app", r.Header.Get("X-Api-App-Key"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Access-Key"))
		assert.Equal(t, resourceSeed, r.Header.Get("X-Api-Resource-Id"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if !assert.NoError(t, err) {
			return
		}
		req, err := parseFrame(data)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, frameFullClientRequest, req.Type)

		var payload volcRequest
		assert.NoError(t, sonic.Unmarshal(req.Payload, &payload))
		assert.Equal(t, "sounds fine", payload.ReqParams.Text)
		assert.Equal(t, "mp3", payload.ReqParams.AudioParams.Format)
		assert.Equal(t, "en-US", payload.ReqParams.Language)

		chunk := &frame{Type: frameAudioOnlyResponse, Flags: flagPositiveSequence, Sequence: 1, Payload: []byte("aa")}
		_ = conn.WriteMessage(websocket.BinaryMessage, chunk.marshal())

		done := &frame{
			Type:          frameFullServerResponse,
			Flags:         flagWithEvent,
			Serialization: serializationJSON,
			Event:         eventSessionFinished,
			SessionID:     "s",
			Payload:       []byte(`{"reqid":"req-7","code":3000,"data":"` + base64.StdEncoding.EncodeToString([]byte("bb")) + `","addition":{"duration":"1200"}}`),
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, done.marshal())
	}))
	defer server.Close()

	synth := NewVolcengineSynthesizer(VolcengineConfig{
		AppID:       "app",
		AccessToken: "token",
		Language:    "en-US",
		Endpoint:    wsURL(server),
	}, zerolog.Nop())

	audio, err := synth.Synthesize(context.Background(), speech.SynthesisInput{SessionID: "c1", Text: "sounds fine", Format: "wav"})
	require.NoError(t, err)
	assert.Equal(t, []byte("aabb"), audio.Data)
	assert.Equal(t, "mp3", audio.Format)
	assert.Equal(t, "req-7", audio.RequestID)
	assert.Equal(t, int64(1200), audio.Duration)
	assert.Equal(t, "c1", audio.SessionID)
}

func TestVolcengineFallsBackOnResourceMismatch(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		if n == 1 {
			assert.Equal(t, resourceSeed, r.Header.Get("X-Api-Resource-Id"))
			msg := &frame{Type: frameError, ErrorCode: 45000000, Payload: []byte(`{"error":"resource ID is mismatched with speaker related resource"}`)}
			_ = conn.WriteMessage(websocket.BinaryMessage, msg.marshal())
			return
		}

		assert.Equal(t, resourceStandard, r.Header.Get("X-Api-Resource-Id"))
		last := &frame{Type: frameAudioOnlyResponse, Flags: flagLastNoSequence, Payload: []byte("ok")}
		_ = conn.WriteMessage(websocket.BinaryMessage, last.marshal())
	}))
	defer server.Close()

	synth := NewVolcengineSynthesizer(VolcengineConfig{AppID: "app", AccessToken: "token", Endpoint: wsURL(server)}, zerolog.Nop())

	audio, err := synth.Synthesize(context.Background(), speech.SynthesisInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), audio.Data)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestVolcengineAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		msg := &frame{Type: frameError, ErrorCode: 55000000, Payload: []byte("server busy")}
		_ = conn.WriteMessage(websocket.BinaryMessage, msg.marshal())
	}))
	defer server.Close()

	synth := NewVolcengineSynthesizer(VolcengineConfig{AppID: "app", AccessToken: "token", Endpoint: wsURL(server)}, zerolog.Nop())

	_, err := synth.Synthesize(context.Background(), speech.SynthesisInput{Text: "hello"})
	require.ErrorIs(t, err, ErrSynthesis)
	assert.Contains(t, err.Error(), "server busy")
}

func TestVolcengineRequiresCredentials(t *testing.T) {
	synth := NewVolcengineSynthesizer(VolcengineConfig{}, zerolog.Nop())
	_, err := synth.Synthesize(context.Background(), speech.SynthesisInput{Text: "hello"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestElevenLabsSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voice-123/stream-input", r.URL.Path)
		assert.Equal(t, "eleven_turbo_v2_5", r.URL.Query().Get("model_id"))
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var texts []string
		for i := 0; i < 3; i++ {
			_, data, err := conn.ReadMessage()
			if !assert.NoError(t, err) {
				return
			}
			var msg map[string]any
			assert.NoError(t, sonic.Unmarshal(data, &msg))
			texts = append(texts, msg["text"].(string))
		}
		assert.Equal(t, []string{" ", "what's the price? ", ""}, texts)

		for _, chunk := range []string{"ab", "cd"} {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"audio":"`+base64.StdEncoding.EncodeToString([]byte(chunk))+`","isFinal":false}`))
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"audio":null,"isFinal":true}`))
	}))
	defer server.Close()

	synth := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "key", VoiceID: "voice-123", BaseURL: wsURL(server)}, zerolog.Nop())

	audio, err := synth.Synthesize(context.Background(), speech.SynthesisInput{SessionID: "c1", Text: "what's the price?"})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), audio.Data)
	assert.Equal(t, "mp3", audio.Format)
}

func TestElevenLabsErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"quota_exceeded","message":"out of credits"}`))
	}))
	defer server.Close()

	synth := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "key", VoiceID: "v", BaseURL: wsURL(server)}, zerolog.Nop())

	_, err := synth.Synthesize(context.Background(), speech.SynthesisInput{Text: "hi"})
	require.ErrorIs(t, err, ErrSynthesis)
	assert.Contains(t, err.Error(), "out of credits")
}

func TestElevenLabsRequiresVoice(t *testing.T) {
	synth := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "key"}, zerolog.Nop())
	_, err := synth.Synthesize(context.Background(), speech.SynthesisInput{Text: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestVolcengineRequestCarriesEmotion(t *testing.T) {
	synth := NewVolcengineSynthesizer(VolcengineConfig{AppID: "app", AccessToken: "token"}, zerolog.Nop())

	req := synth.buildRequest(speech.SynthesisInput{Text: "not interested", Emotion: "Angry", EmotionScale: 9}, "voice", "mp3")
	assert.Equal(t, "angry", req.ReqParams.AudioParams.Emotion)
	assert.Equal(t, float32(5), req.ReqParams.AudioParams.EmotionScale)

	req = synth.buildRequest(speech.SynthesisInput{Text: "okay", Emotion: "neutral"}, "voice", "mp3")
	assert.Empty(t, req.ReqParams.AudioParams.Emotion)
	assert.Zero(t, req.ReqParams.AudioParams.EmotionScale)
}

func TestElevenLabsStabilityFollowsEmotion(t *testing.T) {
	synth := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "key", VoiceID: "voice"}, zerolog.Nop())

	assert.InDelta(t, 0.5, synth.stabilityFor("", 0), 1e-9)
	assert.InDelta(t, 0.5, synth.stabilityFor("neutral", 4), 1e-9)
	assert.InDelta(t, 0.26, synth.stabilityFor("angry", 4), 1e-9)
	assert.InDelta(t, 0.2, synth.stabilityFor("excited", 5), 1e-9)
	assert.InDelta(t, 0.15, synth.stabilityFor("excited", 10), 1e-9)
}
