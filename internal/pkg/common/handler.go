package handler

import (
	"context"
	"net/http"
	"time"

	"order_payment_service/pkg/response"

	"github.com/gin-gonic/gin"
)

// Pinger 依赖的健康探测
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把普通函数适配成 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler 存活与依赖检查
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Health 健康检查
// @Summary 健康检查
// @Tags Common
// @Produce json
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		status["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Success: false,
			Data:    status,
			Error:   &response.ErrorBody{Code: response.CodeServerInternal, Message: "dependency check failed"},
		})
		return
	}
	response.Success(c, status)
}
