package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/metrics"
	"courtbook/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "x-request-id"
	userIDHeader    = "x-user-id"

	ctxKeyClient = "api_client"

	permAdmin = "admin"
)

// RequestLogger проставляет request_id и пишет строку access-лога
// после обработки запроса.
func RequestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()
		dur := time.Since(start)

		metrics.IncHTTP(c.FullPath())

		base.Info().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("remote", clientAddr(c.Request)).
			Int("status", c.Writer.Status()).
			Dur("duration", dur).
			Msg("http request")
	}
}

// APIKeyAuth проверяет ключ из заголовка constant-time сравнением.
// При выключенной аутентификации пропускает всех как anonymous-клиента.
func APIKeyAuth(cfg config.APIAuthConfig) gin.HandlerFunc {
	clients := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		clients[k.Key] = k
	}

	header := strings.TrimSpace(strings.ToLower(cfg.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		apiKey := strings.TrimSpace(c.GetHeader(header))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		client, ok := clients[apiKey]
		if !ok || subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Set(ctxKeyClient, client)
		c.Next()
	}
}

// AdminOnly требует у клиента право admin. Пустой список прав не дает
// административного доступа.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin permission required"})
			return
		}
		c.Next()
	}
}

func isAdmin(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyClient)
	if !ok {
		// Аутентификация выключена: считаем вызов доверенным.
		return true
	}
	client, ok := v.(config.APIClientKey)
	if !ok {
		return false
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permAdmin {
			return true
		}
	}
	return false
}

// RateLimit лимитирует запросы по ключу клиента: локальный токен-бакет
// гасит всплески, хранилище счетчиков (память либо redis с failover-ом)
// держит общий лимит за окно.
func RateLimit(repo repository.RateLimitRepository, cfg config.APIRateLimitConfig, logger *zerolog.Logger) gin.HandlerFunc {
	window := time.Minute
	limit := int(cfg.RPS * window.Seconds())

	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RPS)
	}
	if burst <= 0 {
		burst = 1
	}
	var limiters sync.Map

	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		key := rateLimitKey(c)

		v, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(cfg.RPS), burst))
		if !v.(*rate.Limiter).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		if repo == nil {
			c.Next()
			return
		}

		allowed, err := repo.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			// Недоступность хранилища не должна ронять трафик
			if logger != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
			}
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyClient); ok {
		if client, ok := v.(config.APIClientKey); ok && client.Name != "" {
			return "client:" + client.Name
		}
	}
	return "ip:" + clientAddr(c.Request)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
