// Package session owns the lifecycle of debate sessions and the ordering of
// their turns.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/ashureev/debatebot/internal/position"
	"github.com/ashureev/debatebot/internal/store"
	"github.com/ashureev/debatebot/internal/validator"
)

// maxTurnConflicts bounds how often RecordTurn recomputes a taken turn.
const maxTurnConflicts = 3

// Assigner chooses topic and position for a new session.
type Assigner interface {
	Assign(ctx context.Context, message string) position.Assignment
}

// Manager resolves sessions and records turns.
type Manager struct {
	repo     store.Repository
	assigner Assigner
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(repo store.Repository, assigner Assigner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:     repo,
		assigner: assigner,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// ResolveOrCreate returns the session for sessionID. An empty id creates a
// new session whose topic and position are derived from firstMessage.
// A missing session yields domain.ErrSessionNotFound.
func (m *Manager) ResolveOrCreate(ctx context.Context, sessionID, firstMessage string) (*domain.Session, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		s, err := m.repo.GetSession(ctx, sessionID)
		if err != nil {
			return nil, false, fmt.Errorf("get session: %w", err)
		}
		if s == nil {
			return nil, false, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
		}
		return s, false, nil
	}

	a := m.assigner.Assign(ctx, firstMessage)
	s := &domain.Session{
		Topic:           a.Topic,
		Category:        a.Category,
		Position:        a.Position,
		OriginalMessage: firstMessage,
		Language:        string(a.Language),
	}
	id, err := m.repo.CreateSession(ctx, s)
	if err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}

	now := time.Now()
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	m.logger.Info("session created", "session_id", id, "topic", s.Topic, "category", s.Category, "language", s.Language)
	return s, true, nil
}

// NextTurn returns the highest persisted turn plus one. It is read from
// storage every time so partial writes are accounted for.
func (m *Manager) NextTurn(ctx context.Context, s *domain.Session) (int, error) {
	maxTurn, err := m.repo.MaxTurn(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("next turn: %w", err)
	}
	return maxTurn + 1, nil
}

// RecordTurn appends the user message and then the bot message for turn,
// and only then raises the session's turn count. If turn was taken by a
// concurrent request it is recomputed and the recorded turn is returned.
func (m *Manager) RecordTurn(ctx context.Context, s *domain.Session, turn int, userText, botText string) (int, error) {
	unlock := m.locks.Lock(s.ID)
	defer unlock()

	for conflicts := 0; ; conflicts++ {
		recorded, err := m.appendTurn(ctx, s, turn, userText, botText)
		if err == nil {
			metrics.TurnsRecorded.WithLabelValues("ok").Inc()
			return recorded, nil
		}
		if !errors.Is(err, domain.ErrTurnConflict) || conflicts >= maxTurnConflicts {
			metrics.TurnsRecorded.WithLabelValues("error").Inc()
			return 0, err
		}

		metrics.TurnsRecorded.WithLabelValues("conflict_retry").Inc()
		next, nerr := m.NextTurn(ctx, s)
		if nerr != nil {
			return 0, nerr
		}
		m.logger.Warn("turn already recorded, recomputing", "session_id", s.ID, "turn", turn, "next_turn", next)
		turn = next
	}
}

func (m *Manager) appendTurn(ctx context.Context, s *domain.Session, turn int, userText, botText string) (int, error) {
	maxTurn, err := m.repo.MaxTurn(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("record turn: %w", err)
	}
	if turn <= maxTurn {
		return 0, fmt.Errorf("turn %d <= persisted %d: %w", turn, maxTurn, domain.ErrTurnConflict)
	}

	now := time.Now()
	if err := m.repo.AppendMessage(ctx, domain.Message{
		SessionID: s.ID, Turn: turn, Role: domain.RoleUser, Content: userText, CreatedAt: now,
	}); err != nil {
		return 0, fmt.Errorf("record user message: %w", err)
	}
	if err := m.repo.AppendMessage(ctx, domain.Message{
		SessionID: s.ID, Turn: turn, Role: domain.RoleBot, Content: botText, CreatedAt: now.Add(time.Microsecond),
	}); err != nil {
		// The user message stays; the next turn index skips past it.
		return 0, fmt.Errorf("record bot message: %w", err)
	}

	if err := m.repo.UpdateTurnCount(ctx, s.ID, turn); err != nil {
		return 0, fmt.Errorf("update turn count: %w", err)
	}
	if turn > s.TurnCount {
		s.TurnCount = turn
	}
	s.UpdatedAt = now
	return turn, nil
}

// History returns the transcript. Sequence anomalies are logged, not fatal.
func (m *Manager) History(ctx context.Context, s *domain.Session) ([]domain.Message, error) {
	history, err := m.repo.GetHistory(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	if issues := validator.CheckTurnSequence(history); len(issues) > 0 {
		m.logger.Warn("turn sequence anomalies", "session_id", s.ID, "issues", issues)
	}
	if issues := validator.CheckStanceHistory(history); len(issues) > 0 {
		m.logger.Warn("stance contradictions in history", "session_id", s.ID, "issues", issues)
	}
	return history, nil
}

// MessagesForTurn returns the messages of one turn.
func (m *Manager) MessagesForTurn(ctx context.Context, s *domain.Session, turn int) ([]domain.Message, error) {
	msgs, err := m.repo.GetMessagesForTurn(ctx, s.ID, turn)
	if err != nil {
		return nil, fmt.Errorf("get messages for turn %d: %w", turn, err)
	}
	return msgs, nil
}

// keyedMutex serialises writers per key and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
