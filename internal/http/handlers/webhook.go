package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatgate/internal/middleware"
	"chatgate/internal/transport/telegram"
)

const maxUpdateBytes = 1 << 20

// TelegramWebhook accepts one update and acknowledges it before the reply
// is generated. A busy dispatcher answers 503 so Telegram redelivers.
func (a *App) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid update payload")
		return
	}
	rid := middleware.RequestIDFromContext(r.Context())
	accepted, err := a.Updates.Submit(r.Context(), update, rid)
	if errors.Is(err, telegram.ErrBusy) || errors.Is(err, telegram.ErrClosed) {
		a.error(w, http.StatusServiceUnavailable, "busy", "try again later")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("request_id", rid).Int("update_id", update.UpdateID).Msg("submit update failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to accept update")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "accepted": accepted})
}
