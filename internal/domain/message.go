package domain

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message written by the client.
	RoleUser Role = "user"
	// RoleBot marks a reply produced by the service.
	RoleBot Role = "bot"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// Message is one immutable entry in a session transcript.
type Message struct {
	SessionID string    `json:"-"`
	Turn      int       `json:"turn"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}

// Validate checks the invariants a message must satisfy before it is persisted.
func (m Message) Validate() error {
	if m.Turn < 1 {
		return fmt.Errorf("invalid turn %d: must be >= 1", m.Turn)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	return nil
}

// RecentMessages returns the last n messages.
func RecentMessages(history []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}
