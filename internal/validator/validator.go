// Package validator implements the local, deterministic checks a generated
// reply must pass before it is shown.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Check names, used as metric labels.
const (
	CheckLength       = "length"
	CheckCapitulation = "capitulation"
	CheckHedging      = "hedging"
	CheckEngagement   = "engagement"
)

// Default phrase sets. Matching is case-insensitive substring matching.
var (
	DefaultCapitulationPhrases = []string{
		"i'm sorry",
		"i apologize",
		"you're absolutely right",
		"i agree completely",
		"that's correct",
		"you make a good point",
		"i was wrong",
		"i change my mind",
	}

	DefaultHedgingPhrases = []string{
		"i don't know",
		"maybe",
		"perhaps",
		"it depends",
	}

	DefaultConversationEnders = []string{
		"end of discussion",
		"nothing more to say",
		"that's final",
		"case closed",
		"end of story",
	}
)

// Config holds the bounds and phrase sets.
type Config struct {
	MinChars int
	MaxChars int
	MinWords int
	MaxWords int

	CapitulationPhrases []string
	HedgingPhrases      []string
	ConversationEnders  []string
}

// DefaultConfig returns tolerant bounds well outside what the prompt asks for.
func DefaultConfig() Config {
	return Config{
		MinChars:            10,
		MaxChars:            3000,
		MinWords:            5,
		MaxWords:            200,
		CapitulationPhrases: DefaultCapitulationPhrases,
		HedgingPhrases:      DefaultHedgingPhrases,
		ConversationEnders:  DefaultConversationEnders,
	}
}

// Reason is a single failed check.
type Reason struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

func (r Reason) String() string { return r.Message }

// Verdict is the result of Check.
type Verdict struct {
	Valid     bool     `json:"valid"`
	Reasons   []Reason `json:"reasons,omitempty"`
	WordCount int      `json:"word_count"`
	CharCount int      `json:"char_count"`
}

// Messages returns the reason texts, for logging.
func (v Verdict) Messages() []string {
	out := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		out[i] = r.Message
	}
	return out
}

// Validator checks candidate replies. It holds no mutable state.
type Validator struct {
	cfg Config
}

// New creates a Validator. Phrases are lower-cased once here.
func New(cfg Config) *Validator {
	cfg.CapitulationPhrases = lowerAll(cfg.CapitulationPhrases)
	cfg.HedgingPhrases = lowerAll(cfg.HedgingPhrases)
	cfg.ConversationEnders = lowerAll(cfg.ConversationEnders)
	return &Validator{cfg: cfg}
}

// Check runs every check against candidate. The local checks do not depend
// on the position argument.
func (v *Validator) Check(candidate, _ string) Verdict {
	trimmed := strings.TrimSpace(candidate)
	verdict := Verdict{
		WordCount: len(strings.Fields(candidate)),
		CharCount: utf8.RuneCountInString(trimmed),
	}

	verdict.Reasons = append(verdict.Reasons, v.checkLength(verdict.CharCount, verdict.WordCount)...)

	lower := strings.ToLower(candidate)
	for _, phrase := range v.cfg.CapitulationPhrases {
		if strings.Contains(lower, phrase) {
			verdict.Reasons = append(verdict.Reasons, Reason{
				Check:   CheckCapitulation,
				Message: fmt.Sprintf("Response contains inappropriate agreement: '%s'", phrase),
			})
		}
	}
	if containsAny(lower, v.cfg.HedgingPhrases) {
		verdict.Reasons = append(verdict.Reasons, Reason{
			Check:   CheckHedging,
			Message: "Response is too generic or uncertain",
		})
	}
	if containsAny(lower, v.cfg.ConversationEnders) {
		verdict.Reasons = append(verdict.Reasons, Reason{
			Check:   CheckEngagement,
			Message: "Response contains conversation-ending phrases",
		})
	}

	verdict.Valid = len(verdict.Reasons) == 0
	return verdict
}

func (v *Validator) checkLength(chars, words int) []Reason {
	var reasons []Reason
	if chars < v.cfg.MinChars {
		reasons = append(reasons, Reason{CheckLength, fmt.Sprintf("Response too short (minimum %d characters)", v.cfg.MinChars)})
	}
	if v.cfg.MaxChars > 0 && chars > v.cfg.MaxChars {
		reasons = append(reasons, Reason{CheckLength, fmt.Sprintf("Response too long (maximum %d characters)", v.cfg.MaxChars)})
	}
	if words < v.cfg.MinWords {
		reasons = append(reasons, Reason{CheckLength, fmt.Sprintf("Response has too few words (minimum %d)", v.cfg.MinWords)})
	}
	if v.cfg.MaxWords > 0 && words > v.cfg.MaxWords {
		reasons = append(reasons, Reason{CheckLength, fmt.Sprintf("Response has too many words (maximum %d)", v.cfg.MaxWords)})
	}
	return reasons
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
