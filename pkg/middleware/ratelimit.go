package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimitConfig configures the per-client token bucket.
type ClientLimitConfig struct {
	// RPS is the sustained request rate per client. Zero disables limiting.
	RPS float64
	// Burst is the bucket size.
	Burst int
	// IdleTTL is how long an idle client's bucket is remembered.
	IdleTTL time.Duration
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter throttles requests per client IP with an in-process token
// bucket. It is a coarse first line in front of the per-account limits.
type ClientLimiter struct {
	cfg    ClientLimitConfig
	logger *slog.Logger

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
	now       func() time.Time
}

// NewClientLimiter creates a limiter. Stale buckets are swept during Allow,
// so no background goroutine is started.
func NewClientLimiter(cfg ClientLimitConfig, logger *slog.Logger) *ClientLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Max(1, math.Ceil(cfg.RPS)))
	}
	return &ClientLimiter{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether the client identified by ip may proceed now.
func (l *ClientLimiter) Allow(ip string) bool {
	if l.cfg.RPS <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.cfg.IdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *ClientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware answers throttled requests with 429 and a Retry-After header.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := "1"
	if l.cfg.RPS > 0 && l.cfg.RPS < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / l.cfg.RPS)))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, l.cfg.TrustProxy)
		if !l.Allow(ip) {
			l.logger.WarnContext(r.Context(), "client rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfter)
			writeEnvelopeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", w.Header().Get(CorrelationHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
