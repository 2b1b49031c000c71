package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chatgate/internal/http/handlers"
	"chatgate/internal/middleware"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	WebhookSecret   string
	RateLimitPerMin int
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)

	r.Route("/v1/telegram", func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.WebhookSecret(opts.WebhookSecret),
		)
		r.Post("/webhook", app.TelegramWebhook)
	})

	return r
}
