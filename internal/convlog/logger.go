// Package convlog writes chat transcripts as NDJSON files, one per session.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is one logged conversation event.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Turn       int            `json:"turn,omitempty"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Channels and directions used by the chat transports.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	EventUserMessage = "chat_user_message"
	EventBotMessage  = "chat_bot_message"
)

// Logger records conversation events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// New returns a file-backed Logger, or a no-op Logger when disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("conversation log dir is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
	}
	go l.loop()
	return l, nil
}

type fileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("conversation log queue full, dropping event", "session_id", ev.SessionID, "event_type", ev.EventType)
	}
}

func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *fileLogger) loop() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := appendLine(l.sessionPath(ev), line); err != nil {
			l.logger.Warn("failed to write conversation log", "session_id", ev.SessionID, "error", err)
		}
		if l.cfg.GlobalEnabled && l.cfg.GlobalPath != "" {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) sessionPath(ev Event) string {
	session := sanitizeName(ev.SessionID)
	if session == "" {
		session = "unknown"
	}
	return filepath.Join(l.cfg.Dir, session+".ndjson")
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeName(s string) string {
	s = unsafeName.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, ".")
}

var (
	ansiEscape   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

// Noop returns a Logger that discards events.
func Noop() Logger { return noopLogger{} }
