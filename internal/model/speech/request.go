package speech

// AudioInput 一段待转写的录音。
type AudioInput struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"-"`
	Format    string `json:"format"`   // wav, mp3, webm, m4a ...
	Language  string `json:"language"` // ISO-639-1, 为空时由引擎自动识别
}

// SynthesisInput 一段待合成的回复文本。
type SynthesisInput struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Format    string  `json:"format"`
	Speed     float32 `json:"speed,omitempty"`
	Language  string  `json:"language,omitempty"`

	// Emotion 为空或 neutral 时按音色默认语气合成
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale float32 `json:"emotionScale,omitempty"`
}
