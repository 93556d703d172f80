package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiterConfig holds configuration for the sliding window rate limiter.
type RateLimiterConfig struct {
	// MaxRequests is the maximum number of requests allowed within the window.
	MaxRequests int
	// Window is the sliding window duration.
	Window time.Duration
	// CleanupInterval is how often stale entries are purged. Defaults to 5 minutes.
	CleanupInterval time.Duration
}

// clientWindow tracks request timestamps for a single client.
type clientWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// RateLimiter implements a per-client sliding window rate limiter. Clients
// are identified by remote IP; verification is expensive enough that a
// modest per-IP budget is the right knob.
type RateLimiter struct {
	config  RateLimiterConfig
	windows sync.Map // map[string]*clientWindow
	nowFunc func() time.Time
	stopCh  chan struct{}
}

// NewRateLimiter creates a rate limiter and starts a background cleanup
// goroutine.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:  config,
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

// Stop halts the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow records a request for the client and reports whether it fits in the
// window.
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.nowFunc()
	cutoff := now.Add(-rl.config.Window)

	v, _ := rl.windows.LoadOrStore(client, &clientWindow{})
	w := v.(*clientWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= rl.config.MaxRequests {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Middleware enforces the limit, answering 429 with a JSON envelope when
// exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !rl.Allow(client) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanup periodically removes clients whose timestamps have all expired.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := rl.nowFunc().Add(-rl.config.Window)
			rl.windows.Range(func(key, value any) bool {
				w := value.(*clientWindow)
				w.mu.Lock()
				stale := true
				for _, ts := range w.timestamps {
					if ts.After(cutoff) {
						stale = false
						break
					}
				}
				w.mu.Unlock()
				if stale {
					rl.windows.Delete(key)
				}
				return true
			})
		case <-rl.stopCh:
			return
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
