package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/metrics"
	"github.com/technosupport/ts-console/internal/ratelimit"
)

// Config holds the per-scope limits applied to client IPs.
type Config struct {
	GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
	Upload   ratelimit.LimitConfig `yaml:"upload"`
	Search   ratelimit.LimitConfig `yaml:"search"`
}

func (c Config) For(scope ratelimit.Scope) ratelimit.LimitConfig {
	switch scope {
	case ratelimit.ScopeUpload:
		return c.Upload
	case ratelimit.ScopeSearch:
		return c.Search
	default:
		return c.GlobalIP
	}
}

// RateLimitMiddleware enforces Config. A nil limiter disables limiting.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	config  Config
	log     *zap.Logger
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, c Config, log *zap.Logger) *RateLimitMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimitMiddleware{limiter: l, config: c, log: log}
}

// Limit returns middleware counting requests against scope. Redis failures
// let the request through.
func (m *RateLimitMiddleware) Limit(scope ratelimit.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.limiter == nil {
			return next
		}
		cfg := m.config.For(scope)
		if !cfg.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := m.limiter.Key(scope, ClientIP(r))
			decision, err := m.limiter.Check(r.Context(), scope, key, cfg)
			if err != nil {
				if !errors.Is(err, ratelimit.ErrRedisUnavailable) {
					m.log.Error("rate limit check failed", zap.String("scope", string(scope)), zap.Error(err))
				} else {
					m.log.Warn("rate limiter unavailable, failing open", zap.String("scope", string(scope)), zap.Error(err))
				}
				metrics.RecordRateLimit(string(scope), "fail_open")
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				metrics.RecordRateLimit(string(scope), "blocked")
				respondLimited(w)
				return
			}
			metrics.RecordRateLimit(string(scope), "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}

func respondLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"` + ratelimit.ErrRateLimitExceeded.Error() + `"}`))
}
