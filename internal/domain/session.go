// Package domain contains core domain types for the debate service.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTurnConflict is returned when a message for the same session, turn
	// and role has already been recorded.
	ErrTurnConflict = errors.New("turn already recorded")
)

// Session is a persisted debate bound to one topic and one position.
type Session struct {
	ID              string    `json:"id"`
	Topic           string    `json:"topic"`
	Category        string    `json:"category"`
	Position        string    `json:"position"`
	OriginalMessage string    `json:"original_message"`
	// Language is the name detected for OriginalMessage, such as "English".
	Language        string    `json:"language"`
	TurnCount       int       `json:"turn_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsNew reports whether no turn has completed yet.
func (s *Session) IsNew() bool {
	return s.TurnCount == 0
}
