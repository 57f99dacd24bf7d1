package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an IP's limiter survives without requests
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements token bucket rate limiting per IP
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a limiter allowing limit requests per second per IP
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     limit,
		burst:     burst,
		idleTTL:   limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// GetLimiter gets or creates a limiter for an IP address. Limiters idle for
// longer than idleTTL are dropped.
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweep(now)
	}

	if entry, exists := rl.limiters[ip]; exists {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *RateLimiter) sweep(now time.Time) {
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.limiters, ip)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware enforces rate limiting per IP
func RateLimitMiddleware(limiter *RateLimiter, security *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			security.LogRateLimited(ip, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// CORSMiddleware allows the listed origins. An empty list allows none.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		if origin != "" && (wildcard || allowed[origin]) {
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// IPAllowlist restricts access to loopback plus the listed IPs
type IPAllowlist struct {
	ips map[string]bool
}

// NewIPAllowlist creates an allowlist from ips
func NewIPAllowlist(ips []string) *IPAllowlist {
	wl := &IPAllowlist{ips: make(map[string]bool, len(ips))}
	for _, ip := range ips {
		wl.ips[strings.TrimSpace(ip)] = true
	}
	return wl
}

// IsAllowed reports whether ip may reach the API. Loopback is always allowed.
func (wl *IPAllowlist) IsAllowed(ip string) bool {
	host, _, err := net.SplitHostPort(ip)
	if err != nil {
		host = ip
	}
	if host == "localhost" {
		return true
	}
	if parsed := net.ParseIP(host); parsed != nil && parsed.IsLoopback() {
		return true
	}
	return wl.ips[host]
}

// IPAllowlistMiddleware rejects requests from IPs outside the allowlist
func IPAllowlistMiddleware(allowlist *IPAllowlist, security *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !allowlist.IsAllowed(ip) {
			security.LogDenied(ip)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// SecurityLogger records security-relevant events
type SecurityLogger struct {
	logger *zap.Logger
}

// NewSecurityLogger creates a security logger. A nil logger discards output.
func NewSecurityLogger(logger *zap.Logger) *SecurityLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityLogger{logger: logger}
}

// LogFailedAuth logs failed authentication attempts
func (sl *SecurityLogger) LogFailedAuth(ip, reason string) {
	sl.logger.Warn("failed authentication", zap.String("ip", ip), zap.String("reason", reason))
}

// LogStreamConnected logs successful websocket connections
func (sl *SecurityLogger) LogStreamConnected(ip, client string) {
	sl.logger.Info("stream connected", zap.String("ip", ip), zap.String("client", client))
}

// LogDenied logs requests rejected by the allowlist
func (sl *SecurityLogger) LogDenied(ip string) {
	sl.logger.Warn("access denied for non-allowlisted IP", zap.String("ip", ip))
}

// LogRateLimited logs rate-limited requests
func (sl *SecurityLogger) LogRateLimited(ip, path string) {
	sl.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", path))
}

// InputValidator validates user input
type InputValidator struct{}

// NewInputValidator creates a new input validator
func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

// ValidateToken checks that token looks like a JWT (header.payload.signature)
func (iv *InputValidator) ValidateToken(token string) bool {
	if len(token) < 20 || len(token) > 4096 {
		return false
	}
	return strings.Count(token, ".") == 2
}

// ValidateClientName allows 1-255 alphanumerics, hyphens, underscores and dots
func (iv *InputValidator) ValidateClientName(name string) bool {
	if len(name) < 1 || len(name) > 255 {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}
