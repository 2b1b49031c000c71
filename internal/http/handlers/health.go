package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the user store answers.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	p, ok := a.Store.(Pinger)
	if !ok {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("readiness check failed")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "store not reachable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
