package refund

import (
	"order_payment_service/internal/domain/order"
	paymentRepo "order_payment_service/internal/domain/payment/repository"
	"order_payment_service/internal/domain/refund/handler"
	"order_payment_service/internal/domain/refund/repository"
	"order_payment_service/internal/domain/refund/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// RefundModule 退款模块
type RefundModule struct{}

func init() {
	registry.Register(&RefundModule{})
}

func (m *RefundModule) Name() string {
	return "refund"
}

func (m *RefundModule) Priority() int {
	return 30
}

func (m *RefundModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewRefundHandler(NewService(ctx))
	setupRoutes(ctx.API, h)
	return nil
}

// NewService webhook 模块也通过它处理退款回调
func NewService(ctx *registry.ModuleContext) service.RefundService {
	return service.NewRefundService(
		repository.NewRefundRepository(ctx.DB),
		paymentRepo.NewPaymentRepository(ctx.DB),
		order.NewStateMachine(ctx),
		ctx.Gateway,
		ctx.Tx,
		ctx.Bus,
		ctx.Metrics,
	)
}

func setupRoutes(r *gin.RouterGroup, h *handler.RefundHandler) {
	g := r.Group("/refunds")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("", middleware.AdminMiddleware(), h.CreateRefund)
		g.GET("", h.ListRefunds)
		g.GET("/payment/:paymentId", h.ListByPayment)
		g.GET("/:id", h.GetRefund)
	}
}
