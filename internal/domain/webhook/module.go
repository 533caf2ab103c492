package webhook

import (
	"order_payment_service/internal/domain/payment"
	"order_payment_service/internal/domain/refund"
	"order_payment_service/internal/domain/webhook/handler"
	"order_payment_service/internal/domain/webhook/service"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// WebhookModule 网关回调
type WebhookModule struct{}

func init() {
	registry.Register(&WebhookModule{})
}

func (m *WebhookModule) Name() string {
	return "webhook"
}

func (m *WebhookModule) Priority() int {
	return 50
}

func (m *WebhookModule) Init(ctx *registry.ModuleContext) error {
	wService := service.NewWebhookService(
		ctx.Gateway,
		payment.NewReconciler(ctx),
		refund.NewService(ctx),
		ctx.Metrics,
	)
	h := handler.NewWebhookHandler(wService)

	// 不挂 /v1 的限流，网关重试不能被 429 挡掉
	setupRoutes(ctx.Router.Group("/v1/webhooks"), h)
	return nil
}

func setupRoutes(r *gin.RouterGroup, h *handler.WebhookHandler) {
	r.POST("/stripe", h.Stripe)
}
