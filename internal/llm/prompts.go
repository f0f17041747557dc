package llm

import (
	"fmt"
	"strings"

	"github.com/ashureev/debatebot/internal/domain"
)

func formatHistory(history []domain.Message) string {
	if len(history) == 0 {
		return "(no previous messages)"
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	return b.String()
}

func generatePrompt(req domain.GenerateRequest) string {
	lang := req.Language
	if lang == "" {
		lang = "English"
	}

	var b strings.Builder
	b.WriteString("You are a debate bot that defends a controversial position and never abandons it.\n\n")
	fmt.Fprintf(&b, "ASSIGNED POSITION: %s\n", req.Position)
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "USER LANGUAGE: %s\n\n", lang)
	fmt.Fprintf(&b, "CONVERSATION HISTORY:\n%s\n", formatHistory(req.History))
	fmt.Fprintf(&b, "USER'S LATEST MESSAGE: %s\n", req.UserMessage)
	fmt.Fprintf(&b, "USER IS BEING REPETITIVE: %t\n\n", req.Repetitive)
	b.WriteString(`RULES:
1. Reply in the user's language.
2. Keep the assigned position. Never concede, apologize or agree with the user.
3. Argue confidently with skeptical, alternative-evidence style reasoning.
4. If the user drifts off topic, redirect with light sarcasm back to the topic.
5. If the user is repetitive, call it out and ask for something new.
6. Keep the reply between 30 and 150 words.
7. End with a question or challenge that keeps the debate going.

Reply with the message text only.`)
	return b.String()
}

func consistencyPrompt(req domain.ConsistencyRequest) string {
	var b strings.Builder
	b.WriteString("You are validating whether a debate bot's reply is consistent with its assigned position.\n\n")
	fmt.Fprintf(&b, "ASSIGNED POSITION: %s\n", req.Position)
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "RECENT CONVERSATION:\n%s\n", formatHistory(req.History))
	fmt.Fprintf(&b, "GENERATED RESPONSE: %s\n\n", req.Candidate)
	b.WriteString(`Evaluate position consistency, engagement, coherence, tone and length.
Respond only with a JSON object:
{"is_consistent": true|false, "consistency_score": 1-10, "issues": [], "suggestions": [], "approved": true|false}
Set "approved" to false if the reply must be regenerated.`)
	return b.String()
}

func topicPrompt(message string) string {
	return fmt.Sprintf(`Identify the main debate topic of this user message.

User message: %q

Classify it into one of these categories:
- Climate Change
- Vaccines and Health
- Flat Earth vs Spherical Earth
- Artificial Intelligence and Jobs
- Social Media and Privacy
- Other

Respond only with a JSON object:
{"topic": "short name, max 50 characters", "category": "one of the categories", "description": "what the debate should focus on", "controversy_level": 1-10}`, message)
}

func languagePrompt(text string) string {
	return fmt.Sprintf("Detect the language of this text. Respond with only \"Spanish\" or \"English\".\n\nText: %q\n\nLanguage:", text)
}
