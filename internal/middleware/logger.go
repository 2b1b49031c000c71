package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Logger writes one line per request. Rejected webhook calls (bad secret,
// rate limit) log at warn, server errors at error.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			var ev *zerolog.Event
			switch {
			case rw.status >= http.StatusInternalServerError:
				ev = l.Error()
			case rw.status >= http.StatusBadRequest:
				ev = l.Warn()
			default:
				ev = l.Info()
			}
			ev.Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", remoteHost(r.RemoteAddr)).
				Int("status", rw.status).
				Int("bytes", rw.bytes).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}
