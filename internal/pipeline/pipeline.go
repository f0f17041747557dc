// Package pipeline runs the generate, validate, retry and fallback state
// machine that turns a user message into a usable reply.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/fallback"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/ashureev/debatebot/internal/retry"
	"github.com/ashureev/debatebot/internal/validator"
)

// State is a pipeline state.
type State string

const (
	StateStart      State = "START"
	StateGenerating State = "GENERATING"
	StateValidating State = "VALIDATING"
	StateAccepted   State = "ACCEPTED"
	StateRetry      State = "RETRY"
	StateExhausted  State = "EXHAUSTED"
	StateFallback   State = "FALLBACK"
	StateDone       State = "DONE"
)

// Generator produces candidate replies.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
}

// ConsistencyChecker approves or rejects a candidate against the position.
type ConsistencyChecker interface {
	Check(ctx context.Context, req domain.ConsistencyRequest) (domain.ConsistencyVerdict, error)
}

// Validator runs local checks on a candidate.
type Validator interface {
	Check(candidate, position string) validator.Verdict
}

// Fallback yields a reply without calling out of process.
type Fallback interface {
	Select(req fallback.Request) string
}

// Config bounds the pipeline.
type Config struct {
	MaxAttempts       int
	HistoryWindow     int
	ConsistencyWindow int
}

// DefaultConfig returns three attempts with six and four message windows.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, HistoryWindow: 6, ConsistencyWindow: 4}
}

// Request is the input for one run.
type Request struct {
	SessionID   string
	Position    string
	Topic       string
	Category    string
	History     []domain.Message
	UserMessage string
	// Language is the session language. When empty it is detected from
	// UserMessage with the word-list heuristic, without calling out.
	Language language.Language
}

// Attempt records one generation attempt.
type Attempt struct {
	Number    int         `json:"number"`
	Candidate string      `json:"candidate,omitempty"`
	Reasons   []string    `json:"reasons,omitempty"`
	Class     retry.Class `json:"class,omitempty"`
}

// Result is the terminal outcome of Run. Reply is never empty.
type Result struct {
	Reply          string          `json:"reply"`
	State          State           `json:"state"`
	Accepted       bool            `json:"accepted"`
	FallbackUsed   bool            `json:"fallback_used"`
	FallbackReason fallback.Reason `json:"fallback_reason,omitempty"`
	Attempts       []Attempt       `json:"attempts"`
	// ExternalCalls counts backoff-wrapped invocations.
	ExternalCalls int `json:"external_calls"`
	// UpstreamCalls counts raw calls including retries.
	UpstreamCalls int     `json:"upstream_calls"`
	Trace         []State `json:"-"`
}

// Pipeline wires the collaborators together.
type Pipeline struct {
	gen      Generator
	checker  ConsistencyChecker
	local    Validator
	fallback Fallback
	caller   *retry.Caller
	detector *language.Heuristic
	cfg      Config
	logger   *slog.Logger
}

// Deps are the collaborators of a Pipeline. Checker is optional.
type Deps struct {
	Generator Generator
	Checker   ConsistencyChecker
	Validator Validator
	Fallback  Fallback
	Caller    *retry.Caller
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.ConsistencyWindow <= 0 {
		cfg.ConsistencyWindow = 4
	}
	if deps.Validator == nil {
		deps.Validator = validator.New(validator.DefaultConfig())
	}
	if deps.Fallback == nil {
		deps.Fallback = fallback.New(nil)
	}
	if deps.Caller == nil {
		deps.Caller = retry.NewCaller(retry.DefaultConfig(), nil, logger)
	}
	return &Pipeline{
		gen:      deps.Generator,
		checker:  deps.Checker,
		local:    deps.Validator,
		fallback: deps.Fallback,
		caller:   deps.Caller,
		detector: language.NewHeuristic(),
		cfg:      cfg,
		logger:   logger,
	}
}

// run holds the mutable state of one invocation.
type run struct {
	req    Request
	res    Result
	state  State
	reason fallback.Reason
	log    *slog.Logger
}

func (r *run) enter(s State) {
	r.state = s
	r.res.Trace = append(r.res.Trace, s)
	r.log.Debug("pipeline transition", "state", s)
}

// Run drives the state machine to DONE. It always returns a non-empty reply
// and never panics on collaborator failures.
func (p *Pipeline) Run(ctx context.Context, req Request) (result Result) {
	if req.Language == "" {
		req.Language = p.detector.Detect(ctx, req.UserMessage).Language
	}
	r := &run{
		req: req,
		log: p.logger.With("session_id", req.SessionID),
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panic recovered", "panic", rec)
			if r.reason == "" {
				r.reason = fallback.ReasonGenerationFailed
			}
			result = p.finishTechnical(r)
		}
	}()

	r.enter(StateStart)
	for attempt := 1; ; attempt++ {
		r.enter(StateGenerating)
		a := Attempt{Number: attempt}
		candidate, ok := p.generate(ctx, r, &a)

		if ok {
			r.enter(StateValidating)
			if p.validate(ctx, r, &a, candidate) {
				r.res.Attempts = append(r.res.Attempts, a)
				r.enter(StateAccepted)
				return p.finishAccepted(r, candidate)
			}
		}
		r.res.Attempts = append(r.res.Attempts, a)

		if r.reason == fallback.ReasonAuthFailed || attempt >= p.cfg.MaxAttempts || ctx.Err() != nil {
			r.enter(StateExhausted)
			return p.finishWithFallback(r)
		}
		r.log.Info("retrying generation", "attempt", attempt, "max_attempts", p.cfg.MaxAttempts, "reasons", a.Reasons)
		r.enter(StateRetry)
	}
}

func (p *Pipeline) generate(ctx context.Context, r *run, a *Attempt) (string, bool) {
	req := domain.GenerateRequest{
		Position:    r.req.Position,
		Topic:       r.req.Topic,
		History:     domain.RecentMessages(r.req.History, p.cfg.HistoryWindow),
		UserMessage: r.req.UserMessage,
		Language:    string(r.req.Language),
		Repetitive:  IsRepetitive(r.req.History, r.req.UserMessage),
	}

	out := retry.Invoke(ctx, p.caller, "generate", func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, req)
	})
	r.res.ExternalCalls++
	r.res.UpstreamCalls += out.Calls

	if !out.OK {
		a.Class = out.Class
		a.Reasons = append(a.Reasons, "generation failed: "+errString(out.Err))
		if out.Class == retry.ClassAuth {
			r.reason = fallback.ReasonAuthFailed
		} else {
			r.reason = fallback.ReasonGenerationFailed
		}
		r.log.Warn("generation attempt failed", "attempt", a.Number, "class", out.Class, "error", out.Err)
		return "", false
	}
	a.Candidate = out.Value
	return out.Value, true
}

func (p *Pipeline) validate(ctx context.Context, r *run, a *Attempt, candidate string) bool {
	r.reason = fallback.ReasonValidationExhausted

	if strings.TrimSpace(candidate) == "" {
		a.Reasons = append(a.Reasons, "empty candidate")
		metrics.ValidationFailures.WithLabelValues("empty").Inc()
		r.log.Warn("validation failed", "attempt", a.Number, "reasons", a.Reasons)
		return false
	}

	approved := true
	if p.checker != nil {
		creq := domain.ConsistencyRequest{
			Candidate: candidate,
			Position:  r.req.Position,
			Topic:     r.req.Topic,
			History:   domain.RecentMessages(r.req.History, p.cfg.ConsistencyWindow),
		}
		out := retry.Invoke(ctx, p.caller, "consistency", func(ctx context.Context) (domain.ConsistencyVerdict, error) {
			return p.checker.Check(ctx, creq)
		})
		r.res.ExternalCalls++
		r.res.UpstreamCalls += out.Calls

		switch {
		case !out.OK:
			approved = false
			a.Reasons = append(a.Reasons, "consistency check unavailable: "+errString(out.Err))
			if out.Class == retry.ClassAuth {
				r.reason = fallback.ReasonAuthFailed
			}
		case !out.Value.Approved:
			approved = false
			a.Reasons = append(a.Reasons, "consistency check rejected candidate")
			a.Reasons = append(a.Reasons, out.Value.Issues...)
		}
		if !approved {
			metrics.ValidationFailures.WithLabelValues("consistency").Inc()
		}
	}

	verdict := p.local.Check(candidate, r.req.Position)
	for _, reason := range verdict.Reasons {
		a.Reasons = append(a.Reasons, reason.Message)
		metrics.ValidationFailures.WithLabelValues(reason.Check).Inc()
	}

	if approved && verdict.Valid {
		return true
	}
	r.log.Warn("validation failed", "attempt", a.Number, "reasons", a.Reasons)
	return false
}

func (p *Pipeline) finishAccepted(r *run, reply string) Result {
	r.res.Reply = strings.TrimSpace(reply)
	r.res.Accepted = true
	r.enter(StateDone)
	r.res.State = StateDone

	metrics.PipelineOutcomes.WithLabelValues("accepted", "none").Inc()
	metrics.PipelineAttempts.Observe(float64(len(r.res.Attempts)))
	return r.res
}

func (p *Pipeline) finishWithFallback(r *run) Result {
	r.enter(StateFallback)
	reply := p.fallback.Select(fallback.Request{
		Reason:      r.reason,
		Category:    r.req.Category,
		Topic:       r.req.Topic,
		Position:    r.req.Position,
		UserMessage: r.req.UserMessage,
		Language:    r.req.Language,
	})
	if strings.TrimSpace(reply) == "" {
		reply = fallback.New(nil).Select(fallback.Request{Reason: fallback.ReasonValidationExhausted})
	}

	r.res.Reply = reply
	r.res.FallbackUsed = true
	r.res.FallbackReason = r.reason
	r.enter(StateDone)
	r.res.State = StateDone

	logArgs := []any{"reason", r.reason, "attempts", len(r.res.Attempts)}
	if r.reason == fallback.ReasonAuthFailed {
		r.log.Error("using fallback reply after authentication failure", append(logArgs, "critical", true)...)
	} else {
		r.log.Warn("using fallback reply", logArgs...)
	}
	metrics.PipelineOutcomes.WithLabelValues("fallback", string(r.reason)).Inc()
	metrics.PipelineAttempts.Observe(float64(len(r.res.Attempts)))
	return r.res
}

// technicalReplier is implemented by fallbacks that have a reply for
// internal errors.
type technicalReplier interface {
	TechnicalReply(topic, userMessage string) string
}

// finishTechnical ends a run that hit an internal error.
func (p *Pipeline) finishTechnical(r *run) Result {
	tr, ok := p.fallback.(technicalReplier)
	if !ok {
		return p.finishWithFallback(r)
	}
	reply := tr.TechnicalReply(r.req.Topic, r.req.UserMessage)
	if strings.TrimSpace(reply) == "" {
		return p.finishWithFallback(r)
	}

	r.enter(StateFallback)
	r.res.Reply = reply
	r.res.FallbackUsed = true
	r.res.FallbackReason = r.reason
	r.enter(StateDone)
	r.res.State = StateDone

	r.log.Error("using technical reply after internal error", "attempts", len(r.res.Attempts))
	metrics.PipelineOutcomes.WithLabelValues("fallback", "internal_error").Inc()
	metrics.PipelineAttempts.Observe(float64(len(r.res.Attempts)))
	return r.res
}

// IsRepetitive reports whether the current message and the two previous
// user messages are the same after normalisation.
func IsRepetitive(history []domain.Message, current string) bool {
	msgs := []string{normalise(current)}
	for i := len(history) - 1; i >= 0 && len(msgs) < 3; i-- {
		if history[i].Role == domain.RoleUser {
			msgs = append(msgs, normalise(history[i].Content))
		}
	}
	if len(msgs) < 3 || msgs[0] == "" {
		return false
	}
	return msgs[0] == msgs[1] && msgs[1] == msgs[2]
}

func normalise(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
