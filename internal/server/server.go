// Package server is the HTTP surface of the bot: a health probe and the
// Telegram webhook receiver.
package server

import (
	"context"
	"net/http"
	"sync"

	"gift-circle/internal/logging"
	"gift-circle/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Pinger reports whether the database answers; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	// DB is nil when games are kept in memory.
	DB     Pinger
	Logger *zap.Logger
	// Updates receives webhook updates. When nil no webhook route is served.
	Updates       chan<- tgbotapi.Update
	WebhookSecret string
}

type Server struct {
	db      Pinger
	logger  *zap.Logger
	updates chan<- tgbotapi.Update
	secret  string

	mu       sync.Mutex
	closed   bool
	stopping chan struct{}
	inflight sync.WaitGroup
}

func New(opts Options) *Server {
	return &Server{
		db:       opts.DB,
		logger:   opts.Logger,
		updates:  opts.Updates,
		secret:   opts.WebhookSecret,
		stopping: make(chan struct{}),
	}
}

// CloseUpdates stops accepting webhook updates, waits for the handlers still
// forwarding one and then closes the update channel, so its consumer can
// drain what was accepted and return. Later webhook calls get 503 and are
// redelivered by Telegram after restart.
func (s *Server) CloseUpdates() {
	s.mu.Lock()
	if s.closed || s.updates == nil {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopping)
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.updates)
}

// admit registers a webhook call unless the update channel is closing.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(s.logger))
	router.GET("/healthz", s.handleHealth)
	if s.updates != nil {
		router.POST(telegram.WebhookPath+":secret", s.handleWebhook)
	}
	return router
}
