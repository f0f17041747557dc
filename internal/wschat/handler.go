// Package wschat serves chat turns over a websocket. Every text frame is one
// chat request and gets exactly one reply frame.
package wschat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/debatebot/internal/convlog"
	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/ashureev/debatebot/internal/middleware"
	"github.com/ashureev/debatebot/internal/ratelimit"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
)

// TurnHandler runs one chat request and returns a status and reply body.
type TurnHandler interface {
	Handle(ctx context.Context, body io.Reader, channel string) (int, interface{})
}

// Handler upgrades /ws/chat connections.
type Handler struct {
	turns          TurnHandler
	limiter        *ratelimit.Limiter
	conns          *Registry
	originPatterns []string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewHandler creates a websocket chat handler. allowedOrigins uses the same
// values as the CORS middleware.
func NewHandler(turns TurnHandler, limiter *ratelimit.Limiter, conns *Registry, allowedOrigins []string, requestTimeout time.Duration, logger *slog.Logger) *Handler {
	if conns == nil {
		conns = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		turns:          turns,
		limiter:        limiter,
		conns:          conns,
		originPatterns: originPatterns(allowedOrigins),
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.ClientIP(r)
	connID := uuid.NewString()
	log := h.logger.With("client_ip", clientIP, "conn_id", connID)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(readLimit)

	h.conns.Register(clientIP, connID, ws)
	defer h.conns.Unregister(clientIP, connID, ws)

	log.Info("Chat websocket connected")
	h.readLoop(r.Context(), ws, clientIP, log)
	log.Info("Chat websocket disconnected")
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, clientIP string, log *slog.Logger) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			h.writeJSON(ctx, ws, log, map[string]string{
				"error":   "Invalid request format",
				"message": "Only text frames are accepted",
			})
			continue
		}

		if h.limiter != nil {
			ok, retryAfter := h.limiter.Allow(clientIP)
			if !ok {
				metrics.AdmissionDecisions.WithLabelValues("denied").Inc()
				log.Warn("rate limit exceeded", "retry_after", retryAfter)
				h.writeJSON(ctx, ws, log, middleware.NewRateLimitError(h.limiter.Limit(), retryAfter))
				continue
			}
			metrics.AdmissionDecisions.WithLabelValues("allowed").Inc()
		}

		turnCtx, cancel := h.turnContext(ctx)
		_, body := h.turns.Handle(turnCtx, bytes.NewReader(data), convlog.ChannelWebSocket)
		cancel()
		h.writeJSON(ctx, ws, log, body)
	}
}

func (h *Handler) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.requestTimeout)
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, log *slog.Logger, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to encode websocket reply", "error", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := ws.Write(wctx, websocket.MessageText, data); err != nil {
		log.Debug("WebSocket write error", "error", err)
	}
}

// originPatterns converts CORS origins into host patterns.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
