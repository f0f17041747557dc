package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/fallback"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/retry"
)

const goodReply = "The sun drives the climate far more than carbon does, and the adjusted " +
	"temperature records hide that. Why trust numbers that keep changing?"

type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	panics  bool
	lastReq domain.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("generator exploded")
	}
	i := f.calls
	f.calls++
	f.lastReq = req
	var err error
	if len(f.errs) > 0 {
		err = f.errs[min(i, len(f.errs)-1)]
	}
	if err != nil {
		return "", err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	return f.replies[min(i, len(f.replies)-1)], nil
}

type fakeChecker struct {
	mu       sync.Mutex
	verdicts []domain.ConsistencyVerdict
	err      error
	calls    int
	lastReq  domain.ConsistencyRequest
}

func (f *fakeChecker) Check(_ context.Context, req domain.ConsistencyRequest) (domain.ConsistencyVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return domain.ConsistencyVerdict{}, f.err
	}
	if len(f.verdicts) == 0 {
		return domain.ConsistencyVerdict{Approved: true, Consistent: true, Score: 9}, nil
	}
	return f.verdicts[min(i, len(f.verdicts)-1)], nil
}

type fakeFallback struct {
	mu   sync.Mutex
	reqs []fallback.Request
}

func (f *fakeFallback) Select(req fallback.Request) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return "fallback for " + req.Position
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestPipeline(gen Generator, checker ConsistencyChecker, fb Fallback) *Pipeline {
	logger := quiet()
	caller := retry.NewCaller(retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, nil, logger)
	deps := Deps{Generator: gen, Fallback: fb, Caller: caller}
	if checker != nil {
		deps.Checker = checker
	}
	return New(deps, DefaultConfig(), logger)
}

func baseRequest() Request {
	return Request{
		SessionID:   "sess-1",
		Position:    "Climate change is natural.",
		Topic:       "Climate Change",
		Category:    "Climate Change",
		UserMessage: "Hello",
		Language:    language.English,
	}
}

func TestRunAcceptsFirstValidCandidate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{goodReply}}
	checker := &fakeChecker{}
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), baseRequest())

	if !res.Accepted || res.FallbackUsed {
		t.Fatalf("expected accepted reply, got %+v", res)
	}
	if res.Reply != goodReply {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if res.State != StateDone || len(res.Attempts) != 1 || res.ExternalCalls != 2 {
		t.Fatalf("unexpected result shape: state=%s attempts=%d calls=%d", res.State, len(res.Attempts), res.ExternalCalls)
	}
	want := []State{StateStart, StateGenerating, StateValidating, StateAccepted, StateDone}
	if !slices.Equal(res.Trace, want) {
		t.Fatalf("trace = %v, want %v", res.Trace, want)
	}
}

func TestRunTooShortCandidateFallsBackAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{"No."}}
	fb := &fakeFallback{}
	req := baseRequest()
	res := newTestPipeline(gen, &fakeChecker{}, fb).Run(context.Background(), req)

	if res.Accepted || !res.FallbackUsed {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if res.Reply != "fallback for "+req.Position {
		t.Fatalf("reply should be the fallback output, got %q", res.Reply)
	}
	if res.FallbackReason != fallback.ReasonValidationExhausted {
		t.Fatalf("unexpected reason %s", res.FallbackReason)
	}
	if len(res.Attempts) != 3 || gen.calls != 3 {
		t.Fatalf("expected 3 attempts and 3 generator calls, got %d and %d", len(res.Attempts), gen.calls)
	}
	if len(fb.reqs) != 1 || fb.reqs[0].Category != "Climate Change" {
		t.Fatalf("unexpected fallback requests: %+v", fb.reqs)
	}
	if len(res.Attempts[0].Reasons) == 0 {
		t.Fatal("expected attempt reasons to be recorded")
	}
}

func TestRunAlwaysFailingCollaboratorsStillReturnsReply(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{errs: []error{errors.New("503 upstream")}}
	checker := &fakeChecker{err: errors.New("503 upstream")}
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), baseRequest())

	if res.Reply == "" || res.State != StateDone {
		t.Fatalf("expected non-empty reply in DONE, got %+v", res)
	}
	if res.FallbackReason != fallback.ReasonGenerationFailed {
		t.Fatalf("unexpected reason %s", res.FallbackReason)
	}
	if len(res.Attempts) > 3 {
		t.Fatalf("too many attempts: %d", len(res.Attempts))
	}
	if res.ExternalCalls > 3*2 {
		t.Fatalf("too many backoff invocations: %d", res.ExternalCalls)
	}
	if res.UpstreamCalls != 9 {
		t.Fatalf("expected 9 raw generator calls (3 attempts x 3 retries), got %d", res.UpstreamCalls)
	}
}

func TestRunConsistencyAlwaysFailingIsNotApproved(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{goodReply}}
	checker := &fakeChecker{err: errors.New("timeout")}
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), baseRequest())

	if res.Accepted {
		t.Fatal("candidate must not be accepted without consistency approval")
	}
	if res.ExternalCalls != 6 {
		t.Fatalf("expected 6 backoff invocations, got %d", res.ExternalCalls)
	}
	if checker.calls != 9 {
		t.Fatalf("expected 9 raw checker calls, got %d", checker.calls)
	}
}

func TestRunAuthFailureSkipsRetries(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{errs: []error{fmt.Errorf("401: %w", retry.ErrAuthentication)}}
	checker := &fakeChecker{}
	fb := &fakeFallback{}
	res := newTestPipeline(gen, checker, fb).Run(context.Background(), baseRequest())

	if res.FallbackReason != fallback.ReasonAuthFailed {
		t.Fatalf("expected auth_failed, got %s", res.FallbackReason)
	}
	if gen.calls != 1 || res.UpstreamCalls != 1 || len(res.Attempts) != 1 {
		t.Fatalf("auth failure must make exactly one call: gen=%d upstream=%d attempts=%d", gen.calls, res.UpstreamCalls, len(res.Attempts))
	}
	if checker.calls != 0 {
		t.Fatal("consistency check should not run after generation failure")
	}
	if fb.reqs[0].Reason != fallback.ReasonAuthFailed {
		t.Fatalf("fallback should be told about the auth failure: %+v", fb.reqs[0])
	}
}

func TestRunRetriesThenAccepts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{"I'm sorry, you're absolutely right about that one.", goodReply}}
	res := newTestPipeline(gen, &fakeChecker{}, &fakeFallback{}).Run(context.Background(), baseRequest())

	if !res.Accepted || res.Reply != goodReply {
		t.Fatalf("expected second candidate to be accepted, got %+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
	if !slices.Contains(res.Trace, StateRetry) {
		t.Fatalf("trace should include RETRY: %v", res.Trace)
	}
}

func TestRunConsistencyRejectionRetries(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{goodReply}}
	checker := &fakeChecker{verdicts: []domain.ConsistencyVerdict{
		{Approved: false, Issues: []string{"drifts from position"}},
		{Approved: true},
	}}
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), baseRequest())

	if !res.Accepted || len(res.Attempts) != 2 {
		t.Fatalf("expected accept on second attempt, got %+v", res)
	}
	if !slices.Contains(res.Attempts[0].Reasons, "drifts from position") {
		t.Fatalf("expected checker issues in reasons: %v", res.Attempts[0].Reasons)
	}
}

func TestRunEmptyCandidateIsValidationFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{"   "}}
	checker := &fakeChecker{}
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), baseRequest())

	if res.FallbackReason != fallback.ReasonValidationExhausted {
		t.Fatalf("unexpected reason %s", res.FallbackReason)
	}
	if checker.calls != 0 {
		t.Fatal("empty candidates should not reach the consistency check")
	}
}

func TestRunRecoversFromPanickingGenerator(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{panics: true}
	res := newTestPipeline(gen, nil, &fakeFallback{}).Run(context.Background(), baseRequest())
	if res.Reply == "" || !res.FallbackUsed || res.State != StateDone {
		t.Fatalf("expected fallback after panic, got %+v", res)
	}
}

func TestRunPanicUsesTechnicalReply(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{panics: true}
	res := newTestPipeline(gen, nil, fallback.New(nil)).Run(context.Background(), baseRequest())
	if !res.FallbackUsed || res.FallbackReason != fallback.ReasonGenerationFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Reply, "Climate Change") {
		t.Fatalf("expected technical reply mentioning the topic, got %q", res.Reply)
	}
}

func TestRunPassesBoundedHistory(t *testing.T) {
	t.Parallel()

	var history []domain.Message
	for turn := 1; turn <= 5; turn++ {
		history = append(history,
			domain.Message{Turn: turn, Role: domain.RoleUser, Content: fmt.Sprintf("user %d", turn)},
			domain.Message{Turn: turn, Role: domain.RoleBot, Content: fmt.Sprintf("bot %d", turn)},
		)
	}
	req := baseRequest()
	req.History = history

	gen := &fakeGenerator{replies: []string{goodReply}}
	checker := &fakeChecker{}
	newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), req)

	if len(gen.lastReq.History) != 6 || gen.lastReq.History[0].Content != "user 3" {
		t.Fatalf("unexpected generation history: %+v", gen.lastReq.History)
	}
	if len(checker.lastReq.History) != 4 || checker.lastReq.History[0].Content != "user 4" {
		t.Fatalf("unexpected consistency history: %+v", checker.lastReq.History)
	}
}

func TestRunDetectsLanguageWhenMissing(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{goodReply}}
	req := baseRequest()
	req.Language = ""
	req.UserMessage = "¿Qué es la verdad para todos?"
	newTestPipeline(gen, nil, &fakeFallback{}).Run(context.Background(), req)

	if gen.lastReq.Language != string(language.Spanish) {
		t.Fatalf("expected Spanish, got %q", gen.lastReq.Language)
	}
}

func TestRunLanguageDetectionMakesNoExternalCalls(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{replies: []string{goodReply}}
	checker := &fakeChecker{err: errors.New("503 upstream")}
	req := baseRequest()
	req.Language = ""
	res := newTestPipeline(gen, checker, &fakeFallback{}).Run(context.Background(), req)

	if res.ExternalCalls > DefaultConfig().MaxAttempts*2 {
		t.Fatalf("too many backoff invocations: %d", res.ExternalCalls)
	}
	if raw := gen.calls + checker.calls; res.UpstreamCalls != raw {
		t.Fatalf("UpstreamCalls = %d, collaborators saw %d raw calls", res.UpstreamCalls, raw)
	}
	if gen.lastReq.Language != string(language.English) {
		t.Fatalf("expected heuristic English for a tie, got %q", gen.lastReq.Language)
	}
}

func TestIsRepetitive(t *testing.T) {
	t.Parallel()

	history := []domain.Message{
		{Turn: 1, Role: domain.RoleUser, Content: "No way"},
		{Turn: 1, Role: domain.RoleBot, Content: "Yes way"},
		{Turn: 2, Role: domain.RoleUser, Content: "no  WAY"},
		{Turn: 2, Role: domain.RoleBot, Content: "Yes way"},
	}
	if !IsRepetitive(history, "No way ") {
		t.Fatal("expected repetition to be detected")
	}
	if IsRepetitive(history, "Something new") {
		t.Fatal("different message should not be repetitive")
	}
	if IsRepetitive(history[:2], "No way") {
		t.Fatal("two messages are not enough")
	}
}
