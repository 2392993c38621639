package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewParsesLevel(t *testing.T) {
	req := require.New(t)
	logger, err := New("warn", false)
	req.NoError(err)
	req.False(logger.Core().Enabled(zapcore.InfoLevel))
	req.True(logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New("debug", true)
	req.NoError(err)
	req.True(logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New("chatty", false)
	req.Error(err)
}

func TestRequestLoggerHidesPathParams(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.POST("/hook/:secret", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook/top-secret", nil))
	req.Equal(http.StatusNoContent, rec.Code)

	entries := logs.All()
	req.Len(entries, 1)
	fields := entries[0].ContextMap()
	req.Equal("/hook/:secret", fields["route"])
	req.EqualValues(http.StatusNoContent, fields["status"])
	req.NotContains(entries[0].Message+fields["route"].(string), "top-secret")
}
