package mw

import (
	"context"
	"math"
	"net"
	"net/http"
	"oraclehub/internal/config"
	"oraclehub/internal/security"
	"oraclehub/internal/stores/redis"
	"oraclehub/pkg/httputil"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "oracle:rl:"

type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *redis.Client
	Verifier *security.RS256Verifier // optional, limits by token subject on public routes
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *redis.Client, v *security.RS256Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("redis client cannot be nil")
	}

	c := *cfg
	// sane defaults
	if c.ByJWT.TTL == 0 {
		c.ByJWT.TTL = 2 * time.Minute
	}
	if c.ByIP.TTL == 0 {
		c.ByIP.TTL = 2 * time.Minute
	}
	return &RateLimitMiddleware{Cfg: &c, Rdb: rdb, Verifier: v}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		ip := extractClientIP(r, m.Cfg.TrustedProxiesList)
		okIP, leftIP := m.allow(ctx, keyPrefix+"ip:"+ip, now, m.Cfg.ByIP)
		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.Cfg.ByIP.Burst))
		w.Header().Set("X-RateLimit-Remaining-IP", strconv.Itoa(leftIP))

		okJWT := true
		sub := subjectFromContext(r)
		if sub == "" && m.Verifier != nil && r.Header.Get("Authorization") != "" {
			if caller, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				sub = string(caller)
			}
		}
		if sub != "" {
			var leftJWT int
			okJWT, leftJWT = m.allow(ctx, keyPrefix+"jwt:"+sub, now, m.Cfg.ByJWT)
			w.Header().Set("X-RateLimit-Limit-JWT", strconv.Itoa(m.Cfg.ByJWT.Burst))
			w.Header().Set("X-RateLimit-Remaining-JWT", strconv.Itoa(leftJWT))
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", strconv.Itoa(m.calculateRetryAfter(okIP, okJWT)))
			_ = httputil.Error(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// calculateRetryAfter returns the seconds until the slowest exhausted bucket refills one token.
func (m *RateLimitMiddleware) calculateRetryAfter(okIP, okJWT bool) int {
	wait := func(b config.RateBucket) int {
		if b.RefillPerSec <= 0 {
			return 1
		}
		return int(math.Ceil(1 / float64(b.RefillPerSec)))
	}

	retry := 1
	if !okIP {
		retry = max(retry, wait(m.Cfg.ByIP))
	}
	if !okJWT {
		retry = max(retry, wait(m.Cfg.ByJWT))
	}
	return retry
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, math.floor(tokens)}
`)

// allow fails open: a redis error lets the request through.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, int) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64Slice()
	if err != nil || len(res) < 2 {
		return true, 0
	}

	return res[0] == 1, int(res[1])
}

// extractClientIP honors proxy headers only when the peer is a trusted proxy,
// or when no proxies are configured at all.
func extractClientIP(r *http.Request, trusted []string) string {
	peer := remoteAddrIP(r.RemoteAddr)
	if len(trusted) > 0 && !isTrusted(peer, trusted) {
		return peer
	}

	if xff := parseXFF(r.Header.Get("X-Forwarded-For")); len(xff) > 0 {
		for _, ip := range xff {
			if isPublicIP(ip) {
				return ip
			}
		}
		return xff[0]
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xrip) != nil {
		return xrip
	}
	return peer
}

func parseXFF(h string) []string {
	out := []string{}
	for _, part := range strings.Split(h, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			out = append(out, ip)
		}
	}
	return out
}

func remoteAddrIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if net.ParseIP(addr) != nil {
		return addr
	}
	return "unknown"
}

func isTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range trusted {
		if strings.Contains(t, "/") {
			if _, cidr, err := net.ParseCIDR(t); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if other := net.ParseIP(t); other != nil && other.Equal(parsed) {
			return true
		}
	}
	return false
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsUnspecified() || parsed.IsMulticast())
}
