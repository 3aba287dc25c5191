package call

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	modelcall "github.com/objectionlab/voicecall/backend/internal/model/call"
	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	callservice "github.com/objectionlab/voicecall/backend/internal/service/call"
)

const wsWriteTimeout = 10 * time.Second

// 客户端发来的文本帧
type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// 服务端发出的 JSON 事件；turn 事件之后紧跟一帧二进制音频
type outboundEvent struct {
	Type            string `json:"type"`
	CallID          string `json:"callId,omitempty"`
	PersonaID       string `json:"personaId,omitempty"`
	OpeningLine     string `json:"openingLine,omitempty"`
	Transcript      string `json:"transcript,omitempty"`
	Reply           string `json:"reply,omitempty"`
	AudioFormat     string `json:"audioFormat,omitempty"`
	AudioBytes      int    `json:"audioBytes,omitempty"`
	TurnCount       int    `json:"turnCount,omitempty"`
	WrapUpSuggested bool   `json:"wrapUpSuggested,omitempty"`
	Tone            string `json:"tone,omitempty"`
	Status          int    `json:"status,omitempty"`
	Error           string `json:"error,omitempty"`
}

type wsSession struct {
	conn     *websocket.Conn
	call     *callservice.Call
	format   string
	language string
	logger   zerolog.Logger
}

// handleWebSocket 每个二进制帧是一段完整录音，文本帧 {"type":"text"} 为键入内容。
// ?ephemeral=true 时连接关闭即结束通话。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	c, err := h.calls.GetCall(r.Context(), callID)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("callId", callID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.opts.MaxAudioBytes)

	query := r.URL.Query()
	session := &wsSession{
		conn:     conn,
		call:     c,
		format:   strings.TrimSpace(query.Get("format")),
		language: strings.TrimSpace(query.Get("language")),
		logger:   h.logger.With().Str("callId", callID).Logger(),
	}

	if query.Get("ephemeral") == "true" {
		defer func() {
			if err := h.calls.EndCall(context.Background(), callID); err == nil {
				session.logger.Debug().Msg("ephemeral call ended with socket")
			}
		}()
	}

	session.logger.Info().Msg("websocket connected")
	if err := session.send(outboundEvent{
		Type:        "ready",
		CallID:      c.ID,
		PersonaID:   c.PersonaID,
		OpeningLine: c.OpeningLine,
	}); err != nil {
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				session.logger.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			h.wsTurn(r.Context(), session, func(ctx context.Context, c *callservice.Call) (modelcall.TurnResult, error) {
				return h.pipeline.ProcessTurn(ctx, c, speechmodel.AudioInput{
					Data:     data,
					Format:   session.format,
					Language: session.language,
				})
			})

		case websocket.TextMessage:
			var msg inboundMessage
			if err := sonic.Unmarshal(data, &msg); err != nil {
				_ = session.send(outboundEvent{Type: "error", Status: http.StatusBadRequest, Error: "invalid message"})
				continue
			}
			switch msg.Type {
			case "text":
				if err := (textTurnRequest{Text: msg.Text}).Validate(); err != nil {
					status, message := errorStatus(err)
					_ = session.send(outboundEvent{Type: "error", Status: status, Error: message})
					continue
				}
				h.wsTurn(r.Context(), session, func(ctx context.Context, c *callservice.Call) (modelcall.TurnResult, error) {
					return h.pipeline.ProcessText(ctx, c, msg.Text)
				})
			case "end":
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
					time.Now().Add(wsWriteTimeout))
				return
			default:
				_ = session.send(outboundEvent{Type: "error", Status: http.StatusBadRequest, Error: "unknown message type " + msg.Type})
			}
		}
	}
}

func (h *Handler) wsTurn(ctx context.Context, s *wsSession, run func(context.Context, *callservice.Call) (modelcall.TurnResult, error)) {
	c, release, err := h.calls.Acquire(ctx, s.call.ID)
	if err != nil {
		s.sendFailure(err)
		return
	}
	defer release()

	result, err := run(ctx, c)
	if err != nil {
		s.sendFailure(err)
		return
	}

	if err := s.send(outboundEvent{
		Type:            "turn",
		CallID:          c.ID,
		Transcript:      result.Transcript,
		Reply:           result.Reply,
		AudioFormat:     result.AudioFormat,
		AudioBytes:      len(result.Audio),
		TurnCount:       result.TurnCount,
		WrapUpSuggested: result.WrapUpSuggested,
		Tone:            string(result.Tone.Emotion),
	}); err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, result.Audio); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write reply audio")
	}
}

func (s *wsSession) send(event outboundEvent) error {
	payload, err := sonic.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal websocket event")
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to write websocket event")
		return err
	}
	return nil
}

func (s *wsSession) sendFailure(err error) {
	status, message := errorStatus(err)
	s.logger.Warn().Err(err).Int("status", status).Msg("websocket turn failed")
	_ = s.send(outboundEvent{Type: "error", Status: status, Error: message})
}
