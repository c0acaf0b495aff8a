package webserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/doguser/NickWatchBot/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// limiterStore keeps one token bucket per client IP. Idle buckets are
// dropped lazily once they have not been hit for ttl.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	r        rate.Limit
	b        int
	ttl      time.Duration
}

type clientLimiter struct {
	lim     *rate.Limiter
	lastHit time.Time
}

func newLimiterStore(r rate.Limit, burst int, ttl time.Duration) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*clientLimiter),
		r:        r,
		b:        burst,
		ttl:      ttl,
	}
}

func (s *limiterStore) allow(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.limiters {
		if now.Sub(v.lastHit) > s.ttl {
			delete(s.limiters, k)
		}
	}

	cl, ok := s.limiters[ip]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(s.r, s.b)}
		s.limiters[ip] = cl
	}
	cl.lastHit = now
	return cl.lim.Allow()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		entry := logger.Log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
		} else {
			entry.Info("HTTP request")
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if !s.limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}
		c.Next()
	}
}

// apiKeyAuth guards admin routes. With no key configured every request passes.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.AdminAPIKey == "" {
			c.Next()
			return
		}

		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKey == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "API key required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.opts.AdminAPIKey)) != 1 {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Invalid API key")
			return
		}
		c.Next()
	}
}
