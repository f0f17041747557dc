// Package language detects whether a user writes in English or Spanish.
package language

import (
	"context"
	"strings"
	"unicode"
)

// Language is a supported conversation language.
type Language string

const (
	English Language = "English"
	Spanish Language = "Spanish"
)

// Code returns the ISO 639-1 code.
func (l Language) Code() string {
	if l == Spanish {
		return "es"
	}
	return "en"
}

// Parse maps free-form classifier output to a Language.
func Parse(s string) (Language, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "spanish"), strings.Contains(lower, "español"), strings.TrimSpace(lower) == "es":
		return Spanish, true
	case strings.Contains(lower, "english"), strings.TrimSpace(lower) == "en":
		return English, true
	default:
		return English, false
	}
}

// Source tells which strategy produced a Result.
type Source string

const (
	SourceHeuristic  Source = "heuristic"
	SourceClassifier Source = "classifier"
)

// Result is a detection with its confidence in [0,1].
type Result struct {
	Language   Language `json:"language"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
}

// Detector detects the language of a text.
type Detector interface {
	Detect(ctx context.Context, text string) Result
}

var spanishIndicators = []string{
	"qué", "cómo", "por", "para", "con", "sin", "muy", "más", "menos",
	"también", "sí", "no", "es", "son", "está", "están", "el", "la",
	"los", "las", "de", "del", "al", "en", "un", "una", "y", "o",
	"pero", "que", "se", "me", "te", "le", "nos", "os", "les", "mi",
	"tu", "su", "este", "esta", "estos", "estas", "todo", "todos",
	"hacer", "tener", "ser", "estar", "ir", "venir", "ver", "dar",
	"carne", "papa", "comida", "casa", "trabajo", "vida", "tiempo",
	"bueno", "malo", "grande", "pequeño", "nuevo", "viejo", "primero",
}

var englishIndicators = []string{
	"the", "and", "or", "but", "is", "are", "was", "were", "have",
	"has", "had", "do", "does", "did", "will", "would", "could",
	"should", "can", "may", "might", "must", "shall", "this", "that",
	"these", "those", "what", "when", "where", "why", "how", "who",
	"which", "better", "best", "good", "bad", "like", "love", "want",
	"need", "think", "know", "see", "look", "come", "go", "get",
	"make", "take", "give", "work", "time", "life", "home", "food",
	"about", "after", "again", "against", "all", "any", "because",
}

// Heuristic counts indicator words. It is pure and safe for concurrent use.
type Heuristic struct {
	spanish map[string]struct{}
	english map[string]struct{}
}

// NewHeuristic builds the indicator sets.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		spanish: toSet(spanishIndicators),
		english: toSet(englishIndicators),
	}
}

// Detect implements Detector.
func (h *Heuristic) Detect(_ context.Context, text string) Result {
	return h.detect(text)
}

func (h *Heuristic) detect(text string) Result {
	words := tokenize(text)
	if len(words) == 0 {
		return Result{Language: English, Confidence: 0.5, Source: SourceHeuristic}
	}

	var es, en int
	for _, w := range words {
		if _, ok := h.spanish[w]; ok {
			es++
		}
		if _, ok := h.english[w]; ok {
			en++
		}
	}

	total := float64(len(words))
	ratio := float64(es+en) / total
	res := Result{Source: SourceHeuristic}
	switch {
	case es > en:
		res.Language = Spanish
		res.Confidence = min(0.9, 0.5+ratio*0.4+float64(es-en)/total*0.3)
	case en > es:
		res.Language = English
		res.Confidence = min(0.9, 0.5+ratio*0.4+float64(en-es)/total*0.3)
	default:
		res.Language = English
		res.Confidence = 0.3
	}
	return res
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
