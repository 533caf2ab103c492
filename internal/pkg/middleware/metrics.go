package middleware

import (
	"time"

	"order_payment_service/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware 记录请求次数与耗时
// endpoint 使用路由模板 (FullPath)，避免 id 造成标签爆炸
func MetricsMiddleware(collector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
