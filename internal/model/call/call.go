package call

import (
	"time"

	"github.com/objectionlab/voicecall/backend/internal/analysis/emotion"
	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
)

// Summary is the externally visible state of one practice call.
type Summary struct {
	ID         string          `json:"callId"`
	PersonaID  string          `json:"personaId"`
	TurnCount  int             `json:"turnCount"`
	Exchanges  int             `json:"exchanges"`
	Transcript []dialogue.Turn `json:"transcript,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastActive time.Time       `json:"lastActive"`
}

// TurnResult 一轮对话的完整产出。
type TurnResult struct {
	Transcript      string `json:"transcript"`
	Reply           string `json:"reply"`
	Audio           []byte `json:"-"`
	AudioFormat     string `json:"audioFormat,omitempty"`
	TurnCount       int    `json:"turnCount"`
	WrapUpSuggested bool   `json:"wrapUpSuggested"`

	// Tone 合成回复时使用的语气，未推断时为空
	Tone emotion.Decision `json:"tone"`
}
