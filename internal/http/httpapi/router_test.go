package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chatgate/internal/http/handlers"
	"chatgate/internal/middleware"
)

type countingSubmitter struct{ n int }

func (c *countingSubmitter) Submit(ctx context.Context, u tgbotapi.Update, requestID string) (bool, error) {
	c.n++
	return true, nil
}

func TestRouter(t *testing.T) {
	sub := &countingSubmitter{}
	h := NewRouter(handlers.NewApp(sub, nil, zerolog.Nop()), RouterOptions{WebhookSecret: "s", RateLimitPerMin: 100, Logger: zerolog.Nop()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("healthz status=%d request id=%q", rr.Code, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/telegram/webhook", strings.NewReader(`{"update_id":1}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/telegram/webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(middleware.TelegramSecretHeader, "s")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || sub.n != 1 {
		t.Fatalf("signed webhook status=%d submits=%d", rr.Code, sub.n)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/telegram/webhook", nil)
	req.Header.Set(middleware.TelegramSecretHeader, "s")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET webhook status = %d", rr.Code)
	}
}
