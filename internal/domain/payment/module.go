package payment

import (
	"order_payment_service/internal/domain/order"
	orderRepo "order_payment_service/internal/domain/order/repository"
	"order_payment_service/internal/domain/payment/handler"
	"order_payment_service/internal/domain/payment/repository"
	"order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// PaymentModule 支付模块
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	// 依赖订单状态机，晚于订单模块
	return 30
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	pHandler := handler.NewPaymentHandler(NewService(ctx))

	setupRoutes(ctx.API, pHandler)
	return nil
}

// NewService 结账流程在下单事务内复用 StartAttempt
func NewService(ctx *registry.ModuleContext) service.PaymentService {
	return service.NewPaymentService(
		repository.NewPaymentRepository(ctx.DB),
		orderRepo.NewOrderRepository(ctx.DB),
		order.NewStateMachine(ctx),
		ctx.Gateway,
		ctx.Tx,
		ctx.Bus,
	)
}

// NewReconciler webhook 与结账确认共用
func NewReconciler(ctx *registry.ModuleContext) *service.Reconciler {
	return service.NewReconciler(
		repository.NewPaymentRepository(ctx.DB),
		orderRepo.NewOrderRepository(ctx.DB),
		order.NewStateMachine(ctx),
		ctx.Gateway,
		ctx.Tx,
		ctx.Bus,
		ctx.Metrics,
	)
}

func setupRoutes(r *gin.RouterGroup, h *handler.PaymentHandler) {
	g := r.Group("/payments")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("/create-intent", h.CreateIntent)
		g.GET("", h.ListPayments)
		g.GET("/order/:orderId", h.ListByOrder)
		g.GET("/:id", h.GetPayment)
	}
}
