// Package middleware holds HTTP middlewares shared by the discovery API.
package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateConfig is a token-bucket configuration: sustained requests per second
// plus burst capacity.
type RateConfig struct {
	Rate  float64
	Burst float64
}

// RateLimiter throttles callers with a Redis-scripted token bucket. Reads
// (listing cafes, polling session state) and inputs (keystrokes, locate
// requests) are limited independently because a typing user legitimately
// produces far more input calls than list fetches.
type RateLimiter struct {
	client    *redis.Client
	readCfg   RateConfig
	inputCfg  RateConfig
	luaScript *redis.Script
}

// NewRateLimiter builds a limiter; a nil client disables limiting entirely.
func NewRateLimiter(client *redis.Client, read, input RateConfig) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{
		client:    client,
		readCfg:   read,
		inputCfg:  input,
		luaScript: redis.NewScript(tokenBucketLua),
	}
}

// Middleware enforces the limits. Callers are identified by session id when
// present, falling back to the forwarded or remote address.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || (l.readCfg.Rate <= 0 && l.inputCfg.Rate <= 0) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, scope := l.inputCfg, "input"
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			cfg, scope = l.readCfg, "read"
		}
		if cfg.Rate <= 0 || cfg.Burst <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter, err := l.allow(r.Context(), scope, callerIdentity(r), cfg)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			if retryAfter > 0 {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, scope, identity string, cfg RateConfig) (bool, time.Duration, error) {
	key := strings.Join([]string{"rl", scope, identity}, ":")
	result, err := l.luaScript.Run(ctx, l.client, []string{key},
		time.Now().UnixMilli(), cfg.Rate, cfg.Burst, 1).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, errors.New("invalid redis response")
	}
	allowed, err := asFloat(values[0])
	if err != nil {
		return false, 0, err
	}
	wait, err := asFloat(values[2])
	if err != nil {
		return false, 0, err
	}
	if allowed != 1 {
		return false, time.Duration(wait * float64(time.Second)), nil
	}
	return true, 0, nil
}

// callerIdentity picks the most specific stable identifier available.
func callerIdentity(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Session-ID")); id != "" {
		return id
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "anonymous"
	}
	return r.RemoteAddr
}

func asFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, errors.New("unsupported redis value type")
	}
}

const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 then
  return {1, capacity, 0}
end

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now_ms
end

local delta = now_ms - last
if delta < 0 then
  delta = 0
end
local refill = delta * rate / 1000
if refill > 0 then
  tokens = math.min(capacity, tokens + refill)
  last = now_ms
end

local allowed = tokens >= requested
local wait = 0
if allowed then
  tokens = tokens - requested
else
  wait = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'timestamp', last)
local ttl = math.ceil((capacity / rate) * 1000)
redis.call('PEXPIRE', key, ttl)

if allowed then
  return {1, tokens, 0}
else
  return {0, tokens, wait}
end
`
