package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/retry"
	"github.com/sashabaranov/go-openai"
)

// fakeOpenAI serves canned chat completions and records request bodies.
type fakeOpenAI struct {
	mu       sync.Mutex
	status   int
	content  string
	requests []openai.ChatCompletionRequest
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		status, content := f.status, f.content
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"error":{"message":"upstream said %d","type":"invalid_request_error","code":"err"}}`, status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-4o","object":"model","owned_by":"openai"}]}`)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeOpenAI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateTrimsQuotes(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{content: "  \"The sun drives the climate. Why ignore it?\"  "}
	c := newTestClient(t, f)

	got, err := c.Generate(context.Background(), domain.GenerateRequest{
		Position:    "Climate change is natural.",
		Topic:       "Climate Change",
		UserMessage: "CO2 is rising",
		Language:    "English",
		History: []domain.Message{
			{Turn: 1, Role: domain.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "The sun drives the climate. Why ignore it?" {
		t.Fatalf("unexpected reply %q", got)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(f.requests))
	}
	prompt := f.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "Climate change is natural.") || !strings.Contains(prompt, "USER: hi") {
		t.Fatalf("prompt missing context: %s", prompt)
	}
	if f.requests[0].Temperature != generateTemperature {
		t.Fatalf("unexpected temperature %v", f.requests[0].Temperature)
	}
}

func TestCheckParsesFencedJSON(t *testing.T) {
	t.Parallel()

	f := &fakeOpenAI{content: "```json\n{\"is_consistent\": false, \"consistency_score\": 3, \"issues\": [\"concedes\"], \"approved\": false}\n```"}
	c := newTestClient(t, f)

	v, err := c.Check(context.Background(), domain.ConsistencyRequest{Candidate: "ok", Position: "p"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Approved || v.Consistent || v.Score != 3 || len(v.Issues) != 1 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestCheckDefaultsMissingFields(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeOpenAI{content: `{"issues": []}`})
	v, err := c.Check(context.Background(), domain.ConsistencyRequest{Candidate: "ok"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Approved || !v.Consistent || v.Score != 8 {
		t.Fatalf("unexpected defaults: %+v", v)
	}
}

func TestCheckMalformedJSON(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeOpenAI{content: "looks fine to me"})
	_, err := c.Check(context.Background(), domain.ConsistencyRequest{Candidate: "ok"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if ClassifyError(err) != retry.ClassTransient {
		t.Fatalf("malformed output should be transient, got %s", ClassifyError(err))
	}
}

func TestAnalyzeTopic(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeOpenAI{content: `{"topic":"Pineapple pizza","category":"Other","description":"Food debate","controversy_level":6}`})
	topic, err := c.AnalyzeTopic(context.Background(), "Is pineapple on pizza ok?")
	if err != nil {
		t.Fatalf("AnalyzeTopic failed: %v", err)
	}
	if topic.Name != "Pineapple pizza" || topic.Category != "Other" || topic.ControversyLevel != 6 {
		t.Fatalf("unexpected topic: %+v", topic)
	}
}

func TestClassifyLanguage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeOpenAI{content: "Spanish"})
	lang, err := c.ClassifyLanguage(context.Background(), "hola")
	if err != nil {
		t.Fatalf("ClassifyLanguage failed: %v", err)
	}
	if lang != language.Spanish {
		t.Fatalf("expected Spanish, got %s", lang)
	}
}

func TestUpstreamErrorsAreClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   retry.Class
	}{
		{http.StatusUnauthorized, retry.ClassAuth},
		{http.StatusForbidden, retry.ClassAuth},
		{http.StatusTooManyRequests, retry.ClassTransient},
		{http.StatusServiceUnavailable, retry.ClassTransient},
		{http.StatusBadRequest, retry.ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, &fakeOpenAI{status: tt.status})
			_, err := c.Generate(context.Background(), domain.GenerateRequest{UserMessage: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ClassifyError(err); got != tt.want {
				t.Fatalf("ClassifyError(%d) = %s, want %s (err=%v)", tt.status, got, tt.want, err)
			}
		})
	}
}

func TestMissingAPIKeyIsAuthFailure(t *testing.T) {
	t.Parallel()

	c := New(Config{Model: "gpt-4o"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Generate(context.Background(), domain.GenerateRequest{})
	if ClassifyError(err) != retry.ClassAuth {
		t.Fatalf("expected auth class, got %s (%v)", ClassifyError(err), err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, retry.ErrAuthentication) {
		t.Fatalf("expected auth error from Ping, got %v", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeOpenAI{})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"{\"a\":1}":               "{\"a\":1}",
		"```json\n{\"a\":1}\n```": "{\"a\":1}",
		"```\n{\"a\":1}\n```":     "{\"a\":1}",
		"  {\"a\":1}  ":           "{\"a\":1}",
	}
	for in, want := range tests {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
