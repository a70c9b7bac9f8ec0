package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Scope string

const (
	ScopeGlobalIP Scope = "ip"
	ScopeUpload   Scope = "upload"
	ScopeSearch   Scope = "search"
)

type Decision struct {
	Scope      Scope
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int // seconds
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

// Enabled reports whether the config imposes a limit at all.
func (c LimitConfig) Enabled() bool {
	return c.Rate > 0 && c.Window > 0
}

// Fixed window: the first hit in a window sets its expiry; PTTL tells the
// caller when it reopens.
var fixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

type Limiter struct {
	client redis.Scripter
	salt   string
	now    func() time.Time
}

func NewLimiter(client redis.Scripter, salt string) *Limiter {
	if salt == "" {
		salt = "ts-console"
	}
	return &Limiter{client: client, salt: salt, now: time.Now}
}

// HashIP keeps raw client addresses out of Redis keys.
func (l *Limiter) HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + l.salt))
	return hex.EncodeToString(hash[:])
}

// Key builds the counter key for one client in one scope.
func (l *Limiter) Key(scope Scope, ip string) string {
	return fmt.Sprintf("rl:%s:%s", scope, l.HashIP(ip))
}

// Check counts one hit against key. Redis failures are reported as
// ErrRedisUnavailable; callers decide whether to fail open.
func (l *Limiter) Check(ctx context.Context, scope Scope, key string, cfg LimitConfig) (*Decision, error) {
	vals, err := fixedWindow.Run(ctx, l.client, []string{key}, cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, vals)
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = cfg.Window
	}

	remaining := cfg.Rate - count
	if remaining < 0 {
		remaining = 0
	}
	retry := int((ttl + time.Second - 1) / time.Second)
	if retry < 1 {
		retry = 1
	}

	return &Decision{
		Scope:      scope,
		Limit:      cfg.Rate,
		Remaining:  remaining,
		Reset:      l.now().Add(ttl),
		RetryAfter: retry,
		Allowed:    count <= cfg.Rate,
	}, nil
}
