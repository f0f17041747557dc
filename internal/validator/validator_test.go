package validator

import (
	"strings"
	"testing"

	"github.com/ashureev/debatebot/internal/domain"
)

const goodReply = "Climate change is driven by solar cycles and ocean currents, " +
	"and the data that supposedly proves otherwise has been adjusted repeatedly. " +
	"What evidence convinces you the adjustments are neutral?"

func hasCheck(v Verdict, check string) int {
	n := 0
	for _, r := range v.Reasons {
		if r.Check == check {
			n++
		}
	}
	return n
}

func TestCheckAcceptsGoodReply(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	got := v.Check(goodReply, "Climate change is natural")
	if !got.Valid {
		t.Fatalf("expected valid, got reasons %v", got.Messages())
	}
	if got.WordCount == 0 || got.CharCount == 0 {
		t.Fatalf("expected counts to be populated: %+v", got)
	}
}

func TestCheckLengthBoundsAreDistinctReasons(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	got := v.Check("Too short", "")
	if got.Valid {
		t.Fatal("expected invalid")
	}
	// 9 chars and 2 words: both the char and the word minimum fail.
	if n := hasCheck(got, CheckLength); n != 2 {
		t.Fatalf("expected 2 length reasons, got %d: %v", n, got.Messages())
	}

	long := strings.Repeat("word ", 201)
	got = v.Check(long, "")
	if n := hasCheck(got, CheckLength); n != 1 {
		t.Fatalf("expected 1 length reason for too many words, got %d: %v", n, got.Messages())
	}
	if !strings.Contains(got.Messages()[0], "too many words") {
		t.Fatalf("unexpected reason: %q", got.Messages()[0])
	}
}

func TestCheckShortAndCapitulationBothReported(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	got := v.Check("I was wrong.", "")
	if got.Valid {
		t.Fatal("expected invalid")
	}
	if hasCheck(got, CheckLength) == 0 {
		t.Errorf("expected a length reason: %v", got.Messages())
	}
	if hasCheck(got, CheckCapitulation) != 1 {
		t.Errorf("expected one capitulation reason: %v", got.Messages())
	}
}

func TestCheckEachCapitulationPhraseIsItsOwnReason(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	got := v.Check("I'm sorry, you're absolutely right about all of this, I CHANGE MY MIND now.", "")
	if n := hasCheck(got, CheckCapitulation); n != 3 {
		t.Fatalf("expected 3 capitulation reasons, got %d: %v", n, got.Messages())
	}
}

func TestCheckHedgingAndEnders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		check string
	}{
		{"maybe", "Maybe the data is wrong, but the trend is still natural.", CheckHedging},
		{"dont know", "I don't know what you mean, the planet warms on its own.", CheckHedging},
		{"depends", "It depends on the year you pick as the baseline for comparison.", CheckHedging},
		{"case closed", "The sun drives the climate, case closed and nothing else matters.", CheckEngagement},
		{"end of story", "Solar cycles explain everything we observe. End of story.", CheckEngagement},
	}

	v := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Check(tt.text, "")
			if got.Valid {
				t.Fatal("expected invalid")
			}
			if hasCheck(got, tt.check) != 1 {
				t.Fatalf("expected one %s reason, got %v", tt.check, got.Messages())
			}
		})
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	text := "Perhaps I apologize too much, end of discussion."
	first := v.Check(text, "p")
	for i := 0; i < 10; i++ {
		again := v.Check(text, "p")
		if strings.Join(again.Messages(), "|") != strings.Join(first.Messages(), "|") {
			t.Fatalf("non-deterministic verdict: %v vs %v", first.Messages(), again.Messages())
		}
	}
}

func TestCheckWhitespaceOnlyIsInvalid(t *testing.T) {
	t.Parallel()

	got := New(DefaultConfig()).Check("   \n\t ", "")
	if got.Valid || got.CharCount != 0 || got.WordCount != 0 {
		t.Fatalf("unexpected verdict: %+v", got)
	}
}

func TestCheckTurnSequence(t *testing.T) {
	t.Parallel()

	ok := []domain.Message{
		{Turn: 1, Role: domain.RoleUser, Content: "a"},
		{Turn: 1, Role: domain.RoleBot, Content: "b"},
		{Turn: 2, Role: domain.RoleUser, Content: "c"},
	}
	if issues := CheckTurnSequence(ok); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}

	broken := []domain.Message{
		{Turn: 1, Role: domain.RoleUser, Content: "a"},
		{Turn: 1, Role: domain.RoleUser, Content: "dup"},
		{Turn: 3, Role: domain.RoleBot, Content: "b"},
	}
	issues := CheckTurnSequence(broken)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
}

func TestCheckStanceHistory(t *testing.T) {
	t.Parallel()

	single := []domain.Message{{Turn: 1, Role: domain.RoleBot, Content: "Let me reconsider."}}
	if issues := CheckStanceHistory(single); issues != nil {
		t.Fatalf("single bot message should not be flagged: %v", issues)
	}

	msgs := []domain.Message{
		{Turn: 1, Role: domain.RoleUser, Content: "x"},
		{Turn: 1, Role: domain.RoleBot, Content: "The sun drives it."},
		{Turn: 2, Role: domain.RoleUser, Content: "y"},
		{Turn: 2, Role: domain.RoleBot, Content: "Actually, you're right about CO2."},
	}
	issues := CheckStanceHistory(msgs)
	if len(issues) != 1 || !strings.Contains(issues[0], "turn 2") {
		t.Fatalf("unexpected issues: %v", issues)
	}
}
