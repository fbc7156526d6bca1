package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is per-IP fixed-window rate limiting middleware.
type RateLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	limit      int
	windowLen  time.Duration
	maxWindows int // max tracked IPs (prevents memory exhaustion)
}

type window struct {
	count    int
	start    time.Time
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per windowLen
// for each client IP.
func NewRateLimiter(limit int, windowLen time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:    make(map[string]*window),
		limit:      limit,
		windowLen:  windowLen,
		maxWindows: 100000,
	}
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := realIP(r)

		remaining, retryAfter, allowed := rl.allow(ip)

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records a request from ip and reports whether it fits in the
// current window.
func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter time.Duration, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	win, exists := rl.windows[ip]
	if !exists {
		if len(rl.windows) >= rl.maxWindows {
			return 0, rl.windowLen, false // reject when at capacity
		}
		rl.windows[ip] = &window{count: 1, start: now, lastSeen: now}
		return rl.limit - 1, 0, true
	}

	win.lastSeen = now
	if now.Sub(win.start) >= rl.windowLen {
		win.count = 0
		win.start = now
	}

	if win.count >= rl.limit {
		return 0, win.start.Add(rl.windowLen).Sub(now), false
	}

	win.count++
	return rl.limit - win.count, 0, true
}

// StartCleanup spawns a goroutine that removes stale windows every
// interval. Returns a cancel function.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, win := range rl.windows {
		if win.lastSeen.Before(cutoff) {
			delete(rl.windows, ip)
		}
	}
}

// Len returns the number of tracked IP windows (for metrics and testing).
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// realIP extracts the client IP from RemoteAddr. Proxy headers are NOT
// trusted because they can be spoofed to bypass rate limiting.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
