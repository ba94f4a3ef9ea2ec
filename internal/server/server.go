// Package server exposes the bot over HTTP: the chat webhook, the
// externally triggered cleanup and the health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aixgo-dev/nutrilog/internal/bot"
	"github.com/aixgo-dev/nutrilog/pkg/line"
	"github.com/aixgo-dev/nutrilog/pkg/observability"
	"github.com/aixgo-dev/nutrilog/pkg/retention"
	"github.com/sirupsen/logrus"
)

// MaxWebhookBytes caps the webhook request body.
const MaxWebhookBytes = 1 << 20

const (
	aliveText        = "I'm alive! 機器人醒著喵！"
	cleanupDoneText  = "大掃除完成！已刪除 %d 天前的紀錄。"
	cleanupErrorText = "大掃除發生錯誤"
)

// Enqueuer accepts chat events for asynchronous handling.
type Enqueuer interface {
	Enqueue(ev bot.Event) bool
}

// Sweeper runs the retention sweep.
type Sweeper interface {
	Run(ctx context.Context) (retention.Report, error)
	Days() int
}

// Config wires a Server.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string
	// ChannelSecret verifies webhook signatures. When empty, signatures
	// are not checked.
	ChannelSecret string
	Events        Enqueuer
	Sweeper       Sweeper
	Health        *observability.HealthChecker
	// WriteTimeout must cover a synchronous cleanup run.
	WriteTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Server is the HTTP front of the bot.
type Server struct {
	cfg        Config
	log        logrus.FieldLogger
	handler    http.Handler
	httpServer *http.Server
}

// New builds the routes.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.cfg.Health == nil {
		s.cfg.Health = observability.NewHealthChecker("")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleAlive)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /cleanup", s.handleCleanup)
	observability.Mount(mux, s.cfg.Health)

	s.handler = observability.Middleware(mux)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until the server
// stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.WithField("addr", s.cfg.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, aliveText)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeText(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.cfg.ChannelSecret != "" {
		if err := line.VerifySignature(s.cfg.ChannelSecret, body, r.Header.Get(line.SignatureHeader)); err != nil {
			s.log.WithField("remote", r.RemoteAddr).Warn("Webhook signature rejected")
			writeText(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	events, err := line.ParseEvents(body)
	if err != nil {
		s.log.WithError(err).Warn("Malformed webhook body")
		writeText(w, http.StatusBadRequest, "malformed body")
		return
	}

	for _, ev := range events {
		if out, ok := toBotEvent(ev); ok && s.cfg.Events != nil {
			s.cfg.Events.Enqueue(out)
		}
	}
	writeText(w, http.StatusOK, "OK")
}

func toBotEvent(ev line.Event) (bot.Event, bool) {
	out := bot.Event{
		UserID:     ev.UserID,
		ReplyToken: ev.ReplyToken,
		Text:       ev.Text,
		MessageID:  ev.MessageID,
		Timestamp:  ev.Timestamp,
	}
	switch ev.Kind {
	case line.MessageText:
		out.Kind = bot.EventText
	case line.MessageImage:
		out.Kind = bot.EventImage
	default:
		return bot.Event{}, false
	}
	return out, true
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sweeper == nil {
		writeText(w, http.StatusInternalServerError, cleanupErrorText)
		return
	}

	report, err := s.cfg.Sweeper.Run(r.Context())
	if err != nil {
		s.log.WithError(err).Error("[RETENTION] Cleanup request failed")
		writeText(w, http.StatusInternalServerError, cleanupErrorText)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, cleanupDoneText, s.cfg.Sweeper.Days())
	for _, res := range report.Results {
		fmt.Fprintf(&b, "\n[%s] 清除了 %d 筆舊資料", res.Label, res.Archived)
		if res.Failed > 0 {
			fmt.Fprintf(&b, " (%d 筆失敗)", res.Failed)
		}
	}
	writeText(w, http.StatusOK, b.String())
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, text)
}
