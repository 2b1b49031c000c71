package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret rejects requests whose secret header does not match. An
// empty secret disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(TelegramSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError mirrors handlers.App.error for middleware that answers
// before a handler runs.
func writeJSONError(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errCode, "message": msg})
}
