package infra

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer serves the webhook and probe routes.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the server from cfg. Errors net/http logs on its own
// (TLS handshakes, panics it recovers) go to logger at error level.
func NewHTTPServer(cfg *Config, handler http.Handler, logger zerolog.Logger) *HTTPServer {
	errLog := Component(logger, "http_server").Level(zerolog.ErrorLevel)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    64 << 10,
		ErrorLog:          log.New(errorWriter{errLog}, "", 0),
	}
	return &HTTPServer{server: srv}
}

type errorWriter struct{ logger zerolog.Logger }

func (w errorWriter) Write(p []byte) (int, error) {
	w.logger.Error().Msg(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}

// Addr reports the listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start blocks serving requests. A graceful shutdown is not an error.
func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting webhook calls and waits for handlers in flight.
// Messages already handed to the dispatcher are drained separately.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
