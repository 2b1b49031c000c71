package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimit allows limit requests per client IP in each window of length
// per. A non-positive limit disables it. It reads r.RemoteAddr, so it must
// run after chi's RealIP when the gateway sits behind a proxy.
//
// Telegram delivers every update from a small pool of addresses, so limit
// must cover the bot's whole inbound traffic, not one chat's.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return newWindowLimiter(limit, per, time.Now).middleware
}

type window struct {
	count int
	until time.Time
}

type windowLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

func newWindowLimiter(limit int, per time.Duration, now func() time.Time) *windowLimiter {
	return &windowLimiter{limit: limit, per: per, now: now, windows: map[string]*window{}}
}

func (l *windowLimiter) middleware(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := l.allow(remoteHost(r.RemoteAddr)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)+1))
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow counts one request for key and reports how long to wait when the
// window is already full.
func (l *windowLimiter) allow(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.per {
		for k, win := range l.windows {
			if now.After(win.until) {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}
	win, ok := l.windows[key]
	if !ok || now.After(win.until) {
		win = &window{until: now.Add(l.per)}
		l.windows[key] = win
	}
	if win.count >= l.limit {
		return win.until.Sub(now), false
	}
	win.count++
	return 0, true
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
