package middleware

import (
	"net/http"
	"sync"
	"time"

	"order_payment_service/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 存储每个IP的限流器
type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	r        rate.Limit
	b        int
	ttl      time.Duration
}

// NewIPRateLimiter 创建一个新的IP限流器
// r: 每秒允许的请求数 (QPS)
// b: 桶的大小 (Burst)
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		r:        r,
		b:        b,
		ttl:      10 * time.Minute,
	}
}

// GetLimiter 获取指定IP的限流器，顺带清理长时间未访问的IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	v, exists := i.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.visitors[ip] = v
	}
	v.lastSeen = now

	if len(i.visitors) > 10000 {
		for key, old := range i.visitors {
			if now.Sub(old.lastSeen) > i.ttl {
				delete(i.visitors, key)
			}
		}
	}
	return v.limiter
}

// RateLimitMiddleware 限流中间件
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			response.AbortWithError(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
