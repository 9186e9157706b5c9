// Package ratelimit throttles clients with a fixed window per address.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter counts requests per client within a fixed window.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	now     func() time.Time

	limit           int
	window          time.Duration
	cleanupInterval time.Duration

	hits         atomic.Int64
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type window struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	// Requests allowed per client in each Window.
	Requests        int
	Window          time.Duration
	CleanupInterval time.Duration
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	// TotalHits counts rejected requests.
	TotalHits   int64
	ClientCount int64
}

// DefaultConfig allows a handful of publish requests per minute.
func DefaultConfig() Config {
	return Config{
		Requests:        10,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop to
// release it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.Requests <= 0 {
		config.Requests = def.Requests
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &Limiter{
		clients:         make(map[string]*window),
		now:             time.Now,
		limit:           config.Requests,
		window:          config.Window,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go rl.runCleanup()
	return rl
}

// Allow records a request from client and reports whether it is within
// the limit.
func (rl *Limiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[client]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.clients[client] = &window{start: now, requests: 1}
		return true
	}
	w.requests++
	if w.requests > rl.limit {
		rl.hits.Add(1)
		return false
	}
	return true
}

// RetryAfter returns how long client must wait for a new window.
func (rl *Limiter) RetryAfter(client string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w, ok := rl.clients[client]
	if !ok {
		return 0
	}
	if d := w.start.Add(rl.window).Sub(rl.now()); d > 0 {
		return d
	}
	return 0
}

func (rl *Limiter) runCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupExpired()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupExpired forgets clients whose window has ended.
func (rl *Limiter) cleanupExpired() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for client, w := range rl.clients {
		if now.Sub(w.start) >= rl.window {
			delete(rl.clients, client)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of tracked clients.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// GetMetrics returns current rate limiting metrics
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   rl.hits.Load(),
		ClientCount: int64(rl.ActiveClients()),
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. onLimit, when set, writes the response body instead of the
// default plain text.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := extractIP(r)
			if rl.Allow(client) {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(rl.RetryAfter(client).Seconds() + 0.999)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
