package validator

import (
	"fmt"
	"strings"

	"github.com/ashureev/debatebot/internal/domain"
)

// DefaultContradictionPhrases mark a bot message that walks back its stance.
var DefaultContradictionPhrases = []string{
	"actually, you're right",
	"i was wrong about",
	"let me reconsider",
	"that changes everything",
	"i agree with you",
}

// CheckTurnSequence reports numbering and role-alternation anomalies in a
// transcript. Turns must start at 1 and each turn is user then bot.
func CheckTurnSequence(messages []domain.Message) []string {
	var issues []string
	currentTurn := 1
	expectingUser := true

	for i, msg := range messages {
		if msg.Turn != currentTurn {
			issues = append(issues, fmt.Sprintf("Message %d: expected turn %d, got %d", i, currentTurn, msg.Turn))
		}

		switch {
		case expectingUser && msg.Role != domain.RoleUser:
			issues = append(issues, fmt.Sprintf("Message %d: expected user message, got %s", i, msg.Role))
		case !expectingUser && msg.Role != domain.RoleBot:
			issues = append(issues, fmt.Sprintf("Message %d: expected bot message, got %s", i, msg.Role))
		}

		if expectingUser && msg.Role == domain.RoleUser {
			expectingUser = false
		} else if !expectingUser && msg.Role == domain.RoleBot {
			expectingUser = true
			currentTurn++
		}
	}
	return issues
}

// CheckStanceHistory reports bot messages that contain a contradiction
// phrase. Fewer than two bot messages is never flagged.
func CheckStanceHistory(messages []domain.Message) []string {
	var bot []domain.Message
	for _, m := range messages {
		if m.Role == domain.RoleBot {
			bot = append(bot, m)
		}
	}
	if len(bot) < 2 {
		return nil
	}

	var issues []string
	for i, m := range bot {
		if containsAny(strings.ToLower(m.Content), DefaultContradictionPhrases) {
			issues = append(issues, fmt.Sprintf("Bot message %d (turn %d) contains potential contradiction", i+1, m.Turn))
		}
	}
	return issues
}
