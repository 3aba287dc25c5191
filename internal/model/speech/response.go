package speech

import "time"

// Transcript 转写结果
type Transcript struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	Duration  float64   `json:"duration,omitempty"` // seconds
	CreatedAt time.Time `json:"createdAt"`
}

// Audio 合成结果
type Audio struct {
	SessionID string    `json:"sessionId"`
	Data      []byte    `json:"-"`
	Format    string    `json:"format"`
	Duration  int64     `json:"duration,omitempty"` // milliseconds
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
