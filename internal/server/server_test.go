package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(context.Context) error {
	return f.err
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name   string
		db     Pinger
		status int
		body   string
	}{
		{"memory", nil, http.StatusOK, `"database":"none"`},
		{"database up", fakePinger{}, http.StatusOK, `"database":"up"`},
		{"database down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, `"database":"down"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(Options{DB: tc.db, Logger: zap.NewNop()})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

const sampleUpdate = `{
	"update_id": 77,
	"message": {
		"message_id": 5,
		"from": {"id": 4242, "is_bot": false, "first_name": "Bob"},
		"chat": {"id": 4242, "type": "private"},
		"date": 1733076000,
		"text": "ABCD1234"
	}
}`

func TestWebhookQueuesUpdate(t *testing.T) {
	req := require.New(t)
	updates := make(chan tgbotapi.Update, 1)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)))
	req.Equal(http.StatusOK, rec.Code)

	select {
	case update := <-updates:
		req.Equal(77, update.UpdateID)
		req.Equal(int64(4242), update.Message.From.ID)
		req.Equal("ABCD1234", update.Message.Text)
	case <-time.After(time.Second):
		t.Fatal("update was not queued")
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/guess", strings.NewReader(sampleUpdate)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, updates)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, updates)
}

func TestWebhookRouteAbsentWhenPolling(t *testing.T) {
	srv := New(Options{Logger: zap.NewNop()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookGivesUpWhenQueueStaysFull(t *testing.T) {
	updates := make(chan tgbotapi.Update)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	request := httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, request)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCloseUpdatesRejectsLateWebhookAndClosesChannel(t *testing.T) {
	req := require.New(t)
	updates := make(chan tgbotapi.Update, 1)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)))
	req.Equal(http.StatusOK, rec.Code)

	srv.CloseUpdates()
	srv.CloseUpdates()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)))
	req.Equal(http.StatusServiceUnavailable, rec.Code)

	update, ok := <-updates
	req.True(ok)
	req.Equal(77, update.UpdateID)
	_, ok = <-updates
	req.False(ok)
}

func TestCloseUpdatesReleasesBlockedWebhook(t *testing.T) {
	req := require.New(t)
	updates := make(chan tgbotapi.Update)
	srv := New(Options{Logger: zap.NewNop(), Updates: updates, WebhookSecret: "s3cret"})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	served := make(chan struct{})
	go func() {
		defer close(served)
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(sampleUpdate)))
	}()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		srv.CloseUpdates()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("CloseUpdates did not return")
	}
	<-served
	req.Equal(http.StatusServiceUnavailable, rec.Code)
	_, ok := <-updates
	req.False(ok)
}
