// Package fallback picks a canned reply that keeps the debate going when
// generation cannot produce an acceptable one.
package fallback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/debatebot/internal/language"
)

// Reason explains why a fallback was needed.
type Reason string

const (
	ReasonValidationExhausted Reason = "validation_exhausted"
	ReasonGenerationFailed    Reason = "generation_failed"
	ReasonAuthFailed          Reason = "auth_failed"
)

// Request carries the context for choosing a fallback.
type Request struct {
	Reason      Reason
	Category    string
	Topic       string
	Position    string
	UserMessage string
	// Language overrides detection from UserMessage when set.
	Language language.Language
}

// Selector chooses fallback replies. It never calls out of process.
type Selector struct {
	mu       sync.Mutex
	rng      *rand.Rand
	detector *language.Heuristic
}

// New creates a Selector. A nil rng is seeded randomly; pass a seeded
// source for deterministic selection.
func New(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng, detector: language.NewHeuristic()}
}

// Select returns a non-empty reply for req.
func (s *Selector) Select(req Request) string {
	lang := s.languageOf(req.Language, req.UserMessage)

	var reply string
	switch {
	case (req.Reason == ReasonGenerationFailed || req.Reason == ReasonAuthFailed) && strings.TrimSpace(req.Position) != "":
		reply = s.positionMaintenance(req.Position, lang)
	case lang == language.Spanish:
		reply = s.pick(spanishGeneric)
		if req.Topic != "" {
			reply = strings.ReplaceAll(reply, "esto", strings.ToLower(req.Topic))
		}
	default:
		if templates, ok := categoryTemplates[req.Category]; ok {
			reply = s.pick(templates)
		} else {
			reply = s.pick(englishGeneric)
			if req.Topic != "" {
				reply = strings.ReplaceAll(reply, "this", strings.ToLower(req.Topic))
			}
		}
	}

	if strings.TrimSpace(reply) == "" {
		return englishGeneric[0]
	}
	return reply
}

// TechnicalReply is used when an internal error prevents normal handling.
func (s *Selector) TechnicalReply(topic, userMessage string) string {
	if strings.TrimSpace(topic) == "" {
		topic = "this topic"
	}
	templates := technicalEnglish
	if s.languageOf("", userMessage) == language.Spanish {
		templates = technicalSpanish
	}
	return fmt.Sprintf(s.pick(templates), topic)
}

func (s *Selector) positionMaintenance(position string, lang language.Language) string {
	templates := maintenanceEnglish
	if lang == language.Spanish {
		templates = maintenanceSpanish
	}
	return fmt.Sprintf(s.pick(templates), asClause(position))
}

func (s *Selector) languageOf(explicit language.Language, userMessage string) language.Language {
	if explicit != "" {
		return explicit
	}
	if strings.TrimSpace(userMessage) == "" {
		return language.English
	}
	return s.detector.Detect(context.Background(), userMessage).Language
}

func (s *Selector) pick(options []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return options[s.rng.IntN(len(options))]
}

// asClause lower-cases the first letter and drops a trailing period so the
// position reads as part of a sentence.
func asClause(position string) string {
	p := strings.TrimRight(strings.TrimSpace(position), ".")
	r, size := utf8.DecodeRuneInString(p)
	if r == utf8.RuneError {
		return p
	}
	return string(unicode.ToLower(r)) + p[size:]
}
