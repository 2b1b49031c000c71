package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// UpdateSubmitter accepts Telegram updates for background handling.
type UpdateSubmitter interface {
	Submit(ctx context.Context, u tgbotapi.Update, requestID string) (bool, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Updates UpdateSubmitter
	Store   any
	Logger  zerolog.Logger
}

func NewApp(updates UpdateSubmitter, store any, logger zerolog.Logger) *App {
	return &App{Updates: updates, Store: store, Logger: logger.With().Str("component", "http").Logger()}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": errCode, "message": msg})
}
