// Package llm implements the debate collaborators on top of an
// OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/retry"
	"github.com/sashabaranov/go-openai"
)

// Sampling temperatures per task.
const (
	generateTemperature    = 0.8
	consistencyTemperature = 0.2
	topicTemperature       = 0.3
	languageTemperature    = 0.1
)

// ErrMalformedResponse is returned when the model output cannot be parsed.
var ErrMalformedResponse = errors.New("malformed model response")

// Config configures the OpenAI client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client talks to the chat completions API.
type Client struct {
	api    *openai.Client
	model  string
	hasKey bool
	logger *slog.Logger
}

// New creates a Client. A missing API key is not an error here; every call
// then fails with an authentication error so the pipeline falls back.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
		logger.Warn("OPENAI_MODEL not set, using default", "model", cfg.Model)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger.Info("Initializing OpenAI client", "model", cfg.Model, "base_url", oc.BaseURL)
	return &Client{
		api:    openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		hasKey: cfg.APIKey != "",
		logger: logger,
	}
}

// Generate produces a persuasive reply that defends the assigned position.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	content, err := c.complete(ctx, generatePrompt(req), generateTemperature, false)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.Trim(strings.TrimSpace(content), `"'`), nil
}

type consistencyPayload struct {
	Consistent  *bool    `json:"is_consistent"`
	Score       *int     `json:"consistency_score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Approved    *bool    `json:"approved"`
}

// Check asks the model whether a candidate reply holds the position.
func (c *Client) Check(ctx context.Context, req domain.ConsistencyRequest) (domain.ConsistencyVerdict, error) {
	content, err := c.complete(ctx, consistencyPrompt(req), consistencyTemperature, true)
	if err != nil {
		return domain.ConsistencyVerdict{}, fmt.Errorf("consistency check: %w", err)
	}

	var p consistencyPayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &p); err != nil {
		return domain.ConsistencyVerdict{}, fmt.Errorf("consistency check: %w: %v", ErrMalformedResponse, err)
	}

	// Absent fields default to a passing verdict.
	v := domain.ConsistencyVerdict{
		Approved:    boolOr(p.Approved, true),
		Consistent:  boolOr(p.Consistent, true),
		Score:       8,
		Issues:      p.Issues,
		Suggestions: p.Suggestions,
	}
	if p.Score != nil {
		v.Score = *p.Score
	}
	return v, nil
}

type topicPayload struct {
	Topic            string `json:"topic"`
	Category         string `json:"category"`
	Description      string `json:"description"`
	ControversyLevel *int   `json:"controversy_level"`
}

// AnalyzeTopic classifies the opening message of a debate.
func (c *Client) AnalyzeTopic(ctx context.Context, message string) (domain.Topic, error) {
	content, err := c.complete(ctx, topicPrompt(message), topicTemperature, true)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("analyze topic: %w", err)
	}

	var p topicPayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &p); err != nil {
		return domain.Topic{}, fmt.Errorf("analyze topic: %w: %v", ErrMalformedResponse, err)
	}

	t := domain.Topic{
		Name:             p.Topic,
		Category:         p.Category,
		Description:      p.Description,
		ControversyLevel: 5,
	}
	if t.Name == "" {
		t.Name = domain.DefaultTopicName
	}
	if t.Category == "" {
		t.Category = domain.DefaultCategory
	}
	if t.Description == "" {
		t.Description = "General debate topic"
	}
	if p.ControversyLevel != nil {
		t.ControversyLevel = *p.ControversyLevel
	}
	return t, nil
}

// ClassifyLanguage implements language.Classifier.
func (c *Client) ClassifyLanguage(ctx context.Context, text string) (language.Language, error) {
	content, err := c.complete(ctx, languagePrompt(text), languageTemperature, false)
	if err != nil {
		return "", fmt.Errorf("classify language: %w", err)
	}
	lang, ok := language.Parse(content)
	if !ok {
		c.logger.Warn("unexpected language classification", "response", content)
	}
	return lang, nil
}

// Ping lists models to verify credentials and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if !c.hasKey {
		return fmt.Errorf("%w: OPENAI_API_KEY missing", retry.ErrAuthentication)
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32, jsonMode bool) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", retry.ErrAuthentication)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	c.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
