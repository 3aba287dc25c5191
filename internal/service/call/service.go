package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	modelcall "github.com/objectionlab/voicecall/backend/internal/model/call"
	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
	"github.com/objectionlab/voicecall/backend/internal/model/persona"
	"github.com/objectionlab/voicecall/backend/internal/service/ai"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrCallNotFound    = errors.New("call not found")
	ErrTurnInProgress  = errors.New("a turn is already in progress for this call")
	ErrTooManyCalls    = errors.New("too many active calls")
)

// Call 一通练习电话：人设、语音以及只属于它的对话记录。
type Call struct {
	ID          string
	PersonaID   string
	Voice       string
	OpeningLine string
	CreatedAt   time.Time

	busy atomic.Bool

	mu         sync.Mutex
	session    *dialogue.Session
	lastActive time.Time
}

// Summary 返回通话状态快照，includeTranscript 为 true 时附带完整对话（含系统提示词）。
func (c *Call) Summary(includeTranscript bool) modelcall.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := modelcall.Summary{
		ID:         c.ID,
		PersonaID:  c.PersonaID,
		TurnCount:  c.session.TurnCount(),
		Exchanges:  c.session.Exchanges(),
		CreatedAt:  c.CreatedAt,
		LastActive: c.lastActive,
	}
	if includeTranscript {
		summary.Transcript = c.session.Snapshot()
	}
	return summary
}

// Transcript 返回对话记录副本。
func (c *Call) Transcript() []dialogue.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

func (c *Call) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Call) touch(now time.Time) {
	c.mu.Lock()
	c.lastActive = now
	c.mu.Unlock()
}

// Options 调整注册表的容量与过期策略。
type Options struct {
	IdleTTL   time.Duration
	MaxActive int
	// Now 仅用于测试
	Now func() time.Time
}

// Service 内存中的通话注册表，每通电话拥有独立的对话记录。
type Service struct {
	personas persona.Store
	prompts  *ai.PromptBuilder
	opts     Options
	logger   zerolog.Logger

	mu    sync.RWMutex
	calls map[string]*Call
}

// NewService bootstraps the in-memory registry.
func NewService(personas persona.Store, prompts *ai.PromptBuilder, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if prompts == nil {
		prompts = ai.NewPromptBuilder()
	}
	return &Service{
		personas: personas,
		prompts:  prompts,
		opts:     opts,
		logger:   logger,
		calls:    make(map[string]*Call),
	}
}

// StartCall provisions a call bound to a persona with a freshly primed dialogue.
func (s *Service) StartCall(_ context.Context, personaID string) (*Call, error) {
	if personaID == "" {
		return nil, ErrPersonaRequired
	}

	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	session, err := dialogue.New(s.prompts.BuildSystemPrompt(&p))
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", personaID, err)
	}

	now := s.opts.Now().UTC()
	c := &Call{
		ID:          uuid.NewString(),
		PersonaID:   p.ID,
		Voice:       p.VoiceID,
		OpeningLine: p.OpeningLine,
		CreatedAt:   now,
		session:     session,
		lastActive:  now,
	}

	s.mu.Lock()
	if s.opts.MaxActive > 0 && len(s.calls) >= s.opts.MaxActive {
		s.mu.Unlock()
		return nil, ErrTooManyCalls
	}
	s.calls[c.ID] = c
	active := len(s.calls)
	s.mu.Unlock()

	s.logger.Info().Str("callId", c.ID).Str("persona", p.ID).Int("active", active).Msg("call started")
	return c, nil
}

// GetCall retrieves a call by identifier.
func (s *Service) GetCall(_ context.Context, id string) (*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// EndCall disposes a call and its transcript.
func (s *Service) EndCall(_ context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.calls[id]
	delete(s.calls, id)
	s.mu.Unlock()

	if !ok {
		return ErrCallNotFound
	}
	s.logger.Info().Str("callId", id).Int("turns", c.Summary(false).TurnCount).Msg("call ended")
	return nil
}

// ListCalls returns summaries of active calls without transcripts.
func (s *Service) ListCalls(_ context.Context) []modelcall.Summary {
	s.mu.RLock()
	calls := make([]*Call, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.mu.RUnlock()

	out := make([]modelcall.Summary, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Summary(false))
	}
	return out
}

// ActiveCount 当前活跃通话数。
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// Acquire 为一轮对话独占通话；同一通话已有进行中的轮次时立即返回 ErrTurnInProgress。
// 查找与置忙在同一把读锁内完成，Sweep 持写锁，因此不会回收刚被占用的通话。
func (s *Service) Acquire(_ context.Context, id string) (*Call, func(), error) {
	s.mu.RLock()
	c, ok := s.calls[id]
	if !ok {
		s.mu.RUnlock()
		return nil, nil, ErrCallNotFound
	}
	if !c.busy.CompareAndSwap(false, true) {
		s.mu.RUnlock()
		return nil, nil, ErrTurnInProgress
	}
	s.mu.RUnlock()
	c.touch(s.opts.Now().UTC())

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.touch(s.opts.Now().UTC())
			c.busy.Store(false)
		})
	}
	return c, release, nil
}

// Sweep 移除空闲超过 IdleTTL 的通话，进行中的通话不会被回收。
func (s *Service) Sweep(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	var expired []string
	for id, c := range s.calls {
		if c.busy.Load() {
			continue
		}
		if now.Sub(c.idleSince()) > s.opts.IdleTTL {
			delete(s.calls, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.logger.Info().Str("callId", id).Dur("idleTTL", s.opts.IdleTTL).Msg("call expired")
	}
	return len(expired)
}

// RunSweeper 按 interval 周期清理空闲通话，直到 ctx 取消。
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.opts.IdleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.opts.Now()); n > 0 {
				s.logger.Debug().Int("expired", n).Int("active", s.ActiveCount()).Msg("idle sweep finished")
			}
		}
	}
}
