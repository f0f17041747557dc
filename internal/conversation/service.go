// Package conversation runs one chat turn end to end: session resolution,
// reply generation and persistence.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/debatebot/internal/convlog"
	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/pipeline"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message cannot be empty")

// persistTimeout bounds the writes after a reply exists. They run detached
// from the request context so a late cancellation cannot drop the reply.
const persistTimeout = 10 * time.Second

// Sessions resolves sessions and records their turns.
type Sessions interface {
	ResolveOrCreate(ctx context.Context, sessionID, firstMessage string) (*domain.Session, bool, error)
	NextTurn(ctx context.Context, s *domain.Session) (int, error)
	RecordTurn(ctx context.Context, s *domain.Session, turn int, userText, botText string) (int, error)
	History(ctx context.Context, s *domain.Session) ([]domain.Message, error)
	MessagesForTurn(ctx context.Context, s *domain.Session, turn int) ([]domain.Message, error)
}

// Runner produces the bot reply for one turn.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Request is one inbound chat message. An empty SessionID starts a session.
type Request struct {
	SessionID string
	Message   string
	// Channel tags conversation log entries; defaults to convlog.ChannelHTTP.
	Channel string
}

// Response is the outcome of one turn.
type Response struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
	History   []domain.Message `json:"history"`
}

// Service handles chat turns.
type Service struct {
	sessions Sessions
	runner   Runner
	convLog  convlog.Logger
	logger   *slog.Logger
}

// NewService creates a Service. A nil conversation logger discards events.
func NewService(sessions Sessions, runner Runner, convLog convlog.Logger, logger *slog.Logger) *Service {
	if convLog == nil {
		convLog = convlog.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		runner:   runner,
		convLog:  convLog,
		logger:   logger,
	}
}

// Chat handles one turn. Generation problems end in a fallback reply, so
// the only errors are domain.ErrSessionNotFound, ErrEmptyMessage and
// persistence failures.
func (s *Service) Chat(ctx context.Context, req Request) (Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}
	channel := req.Channel
	if channel == "" {
		channel = convlog.ChannelHTTP
	}

	sess, created, err := s.sessions.ResolveOrCreate(ctx, req.SessionID, message)
	if err != nil {
		return Response{}, err
	}
	log := s.logger.With("session_id", sess.ID)

	turn, err := s.sessions.NextTurn(ctx, sess)
	if err != nil {
		return Response{}, err
	}
	history, err := s.sessions.History(ctx, sess)
	if err != nil {
		return Response{}, err
	}

	s.convLog.Log(convlog.Event{
		SessionID:  sess.ID,
		Channel:    channel,
		Direction:  convlog.DirectionInbound,
		EventType:  convlog.EventUserMessage,
		Turn:       turn,
		ContentRaw: message,
		Meta:       map[string]any{"new_session": created, "topic": sess.Topic},
	})

	result := s.runner.Run(ctx, pipeline.Request{
		SessionID:   sess.ID,
		Position:    sess.Position,
		Topic:       sess.Topic,
		Category:    sess.Category,
		History:     history,
		UserMessage: message,
		Language:    sessionLanguage(sess),
	})

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	recorded, err := s.sessions.RecordTurn(persistCtx, sess, turn, message, result.Reply)
	if err != nil {
		log.Error("failed to record turn", "turn", turn, "error", err)
		return Response{}, err
	}

	s.convLog.Log(convlog.Event{
		SessionID:  sess.ID,
		Channel:    channel,
		Direction:  convlog.DirectionOutbound,
		EventType:  convlog.EventBotMessage,
		Turn:       recorded,
		ContentRaw: result.Reply,
		Meta: map[string]any{
			"fallback_used":   result.FallbackUsed,
			"fallback_reason": string(result.FallbackReason),
			"attempts":        len(result.Attempts),
			"external_calls":  result.ExternalCalls,
			"upstream_calls":  result.UpstreamCalls,
		},
	})

	msgs, err := s.sessions.MessagesForTurn(persistCtx, sess, recorded)
	if err != nil {
		return Response{}, err
	}
	full, err := s.sessions.History(persistCtx, sess)
	if err != nil {
		return Response{}, err
	}

	log.Info("turn completed",
		"turn", recorded,
		"fallback_used", result.FallbackUsed,
		"attempts", len(result.Attempts),
	)
	return Response{SessionID: sess.ID, Messages: msgs, History: full}, nil
}

// sessionLanguage returns the language stored on the session, or "" for
// sessions created before it was recorded.
func sessionLanguage(sess *domain.Session) language.Language {
	if l, ok := language.Parse(sess.Language); ok {
		return l
	}
	return ""
}
