package dialogue

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration 会话创建时人设提示词缺失。
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput 空内容或角色交替被破坏，通常意味着调用方顺序错误。
	ErrInvalidInput = errors.New("invalid input")
)

// Session holds the canonical transcript of one call.
//
// The first turn is always the persona prompt with role system; after it user
// and assistant turns strictly alternate, starting with user. A Session is not
// safe for concurrent use: the owner must serialize record calls.
type Session struct {
	transcript []Turn
}

// New creates a session primed with the persona prompt as its only system turn.
func New(personaPrompt string) (*Session, error) {
	if strings.TrimSpace(personaPrompt) == "" {
		return nil, fmt.Errorf("%w: persona prompt is empty", ErrConfiguration)
	}

	transcript := make([]Turn, 1, 17)
	transcript[0] = Turn{Role: RoleSystem, Content: personaPrompt}
	return &Session{transcript: transcript}, nil
}

// RecordUserTurn appends a user utterance.
func (s *Session) RecordUserTurn(text string) error {
	return s.record(RoleUser, text)
}

// RecordAssistantTurn appends a reply from the generation model.
func (s *Session) RecordAssistantTurn(text string) error {
	return s.record(RoleAssistant, text)
}

// RecordExchange appends a user utterance and the reply to it as one step.
// Either both turns are recorded or, on error, neither is.
func (s *Session) RecordExchange(userText, reply string) error {
	if err := s.check(RoleUser, userText); err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("%w: %s turn is empty", ErrInvalidInput, RoleAssistant)
	}
	s.transcript = append(s.transcript,
		Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: reply},
	)
	return nil
}

// Pending returns the transcript as it would look after RecordUserTurn(text),
// without changing the session.
func (s *Session) Pending(text string) ([]Turn, error) {
	if err := s.check(RoleUser, text); err != nil {
		return nil, err
	}

	candidate := make([]Turn, len(s.transcript), len(s.transcript)+1)
	copy(candidate, s.transcript)
	return append(candidate, Turn{Role: RoleUser, Content: text}), nil
}

// Snapshot returns a copy of the transcript in chronological order.
func (s *Session) Snapshot() []Turn {
	copied := make([]Turn, len(s.transcript))
	copy(copied, s.transcript)
	return copied
}

// TurnCount is the number of turns excluding the system turn.
func (s *Session) TurnCount() int {
	return len(s.transcript) - 1
}

// Exchanges counts completed user/assistant pairs.
func (s *Session) Exchanges() int {
	return s.TurnCount() / 2
}

// LastTurn returns the most recent turn; for a fresh session that is the system turn.
func (s *Session) LastTurn() Turn {
	return s.transcript[len(s.transcript)-1]
}

// PersonaPrompt returns the content of the system turn.
func (s *Session) PersonaPrompt() string {
	return s.transcript[0].Content
}

func (s *Session) record(role Role, text string) error {
	if err := s.check(role, text); err != nil {
		return err
	}
	s.transcript = append(s.transcript, Turn{Role: role, Content: text})
	return nil
}

func (s *Session) check(role Role, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %s turn is empty", ErrInvalidInput, role)
	}

	last := s.LastTurn().Role
	if last == role {
		return fmt.Errorf("%w: two consecutive %s turns", ErrInvalidInput, role)
	}
	// 系统提示词之后必须先由用户开口
	if last == RoleSystem && role != RoleUser {
		return fmt.Errorf("%w: first turn after the persona prompt must be %s, got %s", ErrInvalidInput, RoleUser, role)
	}
	return nil
}
