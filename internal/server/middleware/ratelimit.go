package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iudanet/taskhub/pkg/api"
)

// Limiter decides whether another request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiter is an in-process fixed-window limiter
type RateLimiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	cleanupC chan struct{}
	rate     int
	window   time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
}

// bucket представляет bucket для конкретного IP/ключа
type bucket struct {
	lastRefill time.Time
	tokens     int
	mu         sync.Mutex
}

// NewRateLimiter создает новый rate limiter
// rate - максимальное количество запросов в окно window
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные buckets
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets()
		case <-rl.cleanupC:
			return
		}
	}
}

func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) > rl.window*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Stop останавливает cleanup goroutine; safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.cleanupC)
	})
}

// Allow implements Limiter; it never fails
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.rate,
			lastRefill: time.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

// RateLimitMiddleware limits requests per client IP.
// Limiter failures let the request through: credentials are still checked downstream.
func RateLimitMiddleware(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(limiter, logger, r) {
				writeError(w, http.StatusTooManyRequests, api.CodeRateLimited, "rate limit exceeded, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PathRateLimit binds a limiter to an exact request path
type PathRateLimit struct {
	Limiter Limiter
	Path    string
}

// RateLimitByPathMiddleware applies per-path limiters and falls back to defaultLimiter.
// A nil defaultLimiter leaves other paths unlimited.
func RateLimitByPathMiddleware(limits []PathRateLimit, defaultLimiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	limiters := make(map[string]Limiter, len(limits))
	for _, limit := range limits {
		limiters[limit.Path] = limit.Limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, exists := limiters[r.URL.Path]
			if !exists {
				limiter = defaultLimiter
			}

			if limiter != nil && !allow(limiter, logger, r) {
				writeError(w, http.StatusTooManyRequests, api.CodeRateLimited, "rate limit exceeded, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(limiter Limiter, logger *slog.Logger, r *http.Request) bool {
	ctx := r.Context()
	key := ClientIP(r)

	ok, err := limiter.Allow(ctx, key)
	if err != nil {
		logger.ErrorContext(ctx, "Rate limiter unavailable", slog.Any("error", err))
		return true
	}
	if !ok {
		logger.WarnContext(ctx, "Rate limit exceeded",
			slog.String("ip", key),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	return ok
}

// ClientIP возвращает адрес клиента из RemoteAddr.
// Заголовки прокси учитывает только RealIPMiddleware для доверенных пиров
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
