package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "none"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}

type webhookURI struct {
	Secret string `uri:"secret" binding:"required"`
}

// handleWebhook queues the update for the update loop. Telegram retries
// anything but a 2xx, so the handler only acknowledges once the update is
// queued.
func (s *Server) handleWebhook(c *gin.Context) {
	if !s.admit() {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	defer s.inflight.Done()

	var uri webhookURI
	if !bindURI(c, &uri) {
		return
	}
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(uri.Secret), []byte(s.secret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}
	var update tgbotapi.Update
	if !bindJSON(c, &update) {
		return
	}
	select {
	case s.updates <- update:
		c.Status(http.StatusOK)
	case <-c.Request.Context().Done():
		c.Status(http.StatusServiceUnavailable)
	case <-s.stopping:
		c.Status(http.StatusServiceUnavailable)
	}
}
