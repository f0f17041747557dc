// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/debatebot/internal/domain"
)

// Repository defines the interface for persisting debate sessions and their messages.
type Repository interface {
	// CreateSession persists a new session and returns its generated ID.
	CreateSession(ctx context.Context, session *domain.Session) (string, error)

	// GetSession retrieves a session by ID. Returns nil, nil when it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// AppendMessage records one message. Returns domain.ErrTurnConflict if a
	// message with the same session, turn and role already exists.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// GetHistory returns all messages of a session ordered by turn, then creation.
	GetHistory(ctx context.Context, sessionID string) ([]domain.Message, error)

	// GetMessagesForTurn returns the messages recorded for a single turn.
	GetMessagesForTurn(ctx context.Context, sessionID string, turn int) ([]domain.Message, error)

	// MaxTurn returns the highest turn with any persisted message, or 0.
	MaxTurn(ctx context.Context, sessionID string) (int, error)

	// UpdateTurnCount raises the session's turn counter to turn.
	// The counter never decreases.
	UpdateTurnCount(ctx context.Context, sessionID string, turn int) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
