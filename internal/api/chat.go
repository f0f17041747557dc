package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ashureev/debatebot/internal/conversation"
	"github.com/ashureev/debatebot/internal/convlog"
	"github.com/ashureev/debatebot/internal/domain"
)

// DefaultMaxMessageLength is the message limit in characters.
const DefaultMaxMessageLength = 5000

const maxBodyBytes = 1 << 20

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req conversation.Request) (conversation.Response, error)
}

// ChatRequest is the body of POST /chat. Only these two fields are accepted.
type ChatRequest struct {
	SessionID *string `json:"session_id"`
	Message   string  `json:"message" validate:"required,maxchars"`
}

// Normalize trims the message and maps "", "null" and a missing id to a
// new session.
func (r *ChatRequest) Normalize() string {
	r.Message = strings.TrimSpace(r.Message)
	if r.SessionID == nil {
		return ""
	}
	id := strings.TrimSpace(*r.SessionID)
	if id == "null" {
		return ""
	}
	return id
}

// RequestError is a client error produced while reading a chat request.
type RequestError struct {
	Title   string
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// ChatHandler serves POST /chat.
type ChatHandler struct {
	chat       Chatter
	validate   *validator.Validate
	maxLength  int
	production bool
	logger     *slog.Logger
}

// NewChatHandler creates a ChatHandler. production hides internal error text.
func NewChatHandler(chat Chatter, maxLength int, production bool, logger *slog.Logger) *ChatHandler {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &ChatHandler{
		chat:       chat,
		validate:   validator.New(),
		maxLength:  maxLength,
		production: production,
		logger:     logger,
	}
	_ = h.validate.RegisterValidation("maxchars", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= h.maxLength
	})
	return h
}

// RegisterRoutes registers the chat route.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
}

// Chat handles one chat turn.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	status, body := h.Handle(r.Context(), io.LimitReader(r.Body, maxBodyBytes), convlog.ChannelHTTP)
	JSON(w, status, body)
}

// Handle decodes one chat request from body and runs it. The returned body
// is either a conversation.Response or an ErrorResponse.
func (h *ChatHandler) Handle(ctx context.Context, body io.Reader, channel string) (int, interface{}) {
	req, err := h.decode(body)
	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			reqErr = &RequestError{Title: "Invalid request format", Message: err.Error()}
		}
		h.logger.Warn("invalid chat request", "channel", channel, "error", reqErr.Message)
		return http.StatusBadRequest, ErrorResponse{Error: reqErr.Title, Message: reqErr.Message}
	}
	req.Channel = channel

	resp, err := h.chat.Chat(ctx, req)
	if err != nil {
		return h.mapError(err, req.SessionID)
	}
	return http.StatusOK, resp
}

// decode parses and validates one chat request.
func (h *ChatHandler) decode(body io.Reader) (conversation.Request, error) {
	var req ChatRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return conversation.Request{}, &RequestError{
				Title:   "Invalid request format",
				Message: "Only 'session_id' and 'message' attributes are allowed",
			}
		}
		return conversation.Request{}, &RequestError{
			Title:   "Invalid request format",
			Message: "Request body must be valid JSON",
		}
	}

	sessionID := req.Normalize()
	if err := h.validate.Struct(req); err != nil {
		return conversation.Request{}, h.validationError(err)
	}
	return conversation.Request{SessionID: sessionID, Message: req.Message}, nil
}

func (h *ChatHandler) validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &RequestError{Title: "Validation error", Message: "Invalid input format"}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, "Message cannot be empty")
		case "maxchars":
			msgs = append(msgs, fmt.Sprintf("Message exceeds maximum length of %d characters", h.maxLength))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: invalid value", strings.ToLower(fe.Field())))
		}
	}
	return &RequestError{Title: "Validation error", Message: strings.Join(msgs, "; ")}
}

// mapError converts a chat error into a status code and body.
func (h *ChatHandler) mapError(err error, sessionID string) (int, interface{}) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		h.logger.Warn("session not found", "session_id", sessionID)
		return http.StatusNotFound, ErrorResponse{
			Error:   "Not found",
			Message: fmt.Sprintf("Session %s not found", sessionID),
		}
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest, ErrorResponse{Error: "Validation error", Message: "Message cannot be empty"}
	default:
		h.logger.Error("chat failed", "session_id", sessionID, "error", err)
		msg := err.Error()
		if h.production {
			msg = "AI service temporarily unavailable"
		}
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "AI service temporarily unavailable",
			Message: msg,
		}
	}
}
