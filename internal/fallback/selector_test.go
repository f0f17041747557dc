package fallback

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/debatebot/internal/language"
)

func seeded() *Selector {
	return New(rand.New(rand.NewPCG(1, 2)))
}

func TestSelectCategoryTemplate(t *testing.T) {
	t.Parallel()

	s := seeded()
	for i := 0; i < 20; i++ {
		got := s.Select(Request{
			Reason:      ReasonValidationExhausted,
			Category:    "Climate Change",
			Topic:       "Climate Change",
			UserMessage: "What about the melting glaciers?",
		})
		if !slices.Contains(categoryTemplates["Climate Change"], got) {
			t.Fatalf("reply not from category set: %q", got)
		}
	}
}

func TestSelectGenericSubstitutesTopic(t *testing.T) {
	t.Parallel()

	s := seeded()
	sawTopic := false
	for i := 0; i < 50; i++ {
		got := s.Select(Request{
			Reason:      ReasonValidationExhausted,
			Category:    "Other",
			Topic:       "Pineapple Pizza",
			UserMessage: "Why do you think that?",
		})
		if got == "" {
			t.Fatal("empty reply")
		}
		if strings.Contains(got, " this ") {
			t.Fatalf("topic was not substituted: %q", got)
		}
		if strings.Contains(got, "pineapple pizza") {
			sawTopic = true
		}
	}
	if !sawTopic {
		t.Fatal("expected at least one reply mentioning the topic")
	}
}

func TestSelectSpanishGeneric(t *testing.T) {
	t.Parallel()

	s := seeded()
	for i := 0; i < 20; i++ {
		got := s.Select(Request{
			Reason:      ReasonValidationExhausted,
			Category:    "Climate Change",
			UserMessage: "¿Qué es la vida para todos?",
		})
		if !slices.Contains(spanishGeneric, got) {
			t.Fatalf("expected a Spanish generic reply, got %q", got)
		}
	}
}

func TestSelectPositionMaintenanceOnGenerationFailure(t *testing.T) {
	t.Parallel()

	s := seeded()
	position := "Pineapple belongs on pizza and critics are snobs."
	for _, reason := range []Reason{ReasonGenerationFailed, ReasonAuthFailed} {
		got := s.Select(Request{Reason: reason, Position: position, UserMessage: "No way"})
		if !strings.Contains(got, "pineapple belongs on pizza and critics are snobs.") {
			t.Fatalf("reason %s: expected position clause in reply, got %q", reason, got)
		}
	}

	got := s.Select(Request{Reason: ReasonAuthFailed, Position: position, Language: language.Spanish})
	if !strings.Contains(got, "pineapple belongs on pizza") || strings.HasPrefix(got, "I ") {
		t.Fatalf("expected Spanish maintenance template, got %q", got)
	}
}

func TestSelectGenerationFailureWithoutPositionUsesTemplates(t *testing.T) {
	t.Parallel()

	got := seeded().Select(Request{Reason: ReasonGenerationFailed, Category: "Vaccines and Health"})
	if !slices.Contains(categoryTemplates["Vaccines and Health"], got) {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestSelectIsDeterministicWithSeed(t *testing.T) {
	t.Parallel()

	req := Request{Reason: ReasonValidationExhausted, Category: "Other", Topic: "tea"}
	a, b := seeded(), seeded()
	for i := 0; i < 10; i++ {
		if x, y := a.Select(req), b.Select(req); x != y {
			t.Fatalf("seeded selectors diverged: %q vs %q", x, y)
		}
	}
}

func TestTechnicalReply(t *testing.T) {
	t.Parallel()

	s := seeded()
	if got := s.TechnicalReply("", "hello there"); !strings.Contains(got, "this topic") {
		t.Fatalf("expected default topic, got %q", got)
	}
	if got := s.TechnicalReply("la carne", "¿Qué es la carne para todos?"); !strings.Contains(got, "sobre la carne") {
		t.Fatalf("expected Spanish technical reply, got %q", got)
	}
}

func TestSelectConcurrentNeverEmpty(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := s.Select(Request{Reason: ReasonValidationExhausted}); got == "" {
				t.Error("empty reply")
			}
		}()
	}
	wg.Wait()
}
