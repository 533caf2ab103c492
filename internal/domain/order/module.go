package order

import (
	"order_payment_service/internal/domain/coupon"
	"order_payment_service/internal/domain/invoice"
	"order_payment_service/internal/domain/order/handler"
	"order_payment_service/internal/domain/order/repository"
	"order_payment_service/internal/domain/order/service"
	paymentRepo "order_payment_service/internal/domain/payment/repository"
	paymentService "order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/domain/shipping"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 依赖发票、发货、优惠券的钩子
	return 20
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	orders := repository.NewOrderRepository(ctx.DB)
	machine := NewStateMachine(ctx)
	payments := paymentService.NewPaymentService(
		paymentRepo.NewPaymentRepository(ctx.DB), orders, machine, ctx.Gateway, ctx.Tx, ctx.Bus)

	oService := service.NewOrderService(orders, machine, payments, ctx.Tx, ctx.Bus)
	oHandler := handler.NewOrderHandler(oService)

	setupRoutes(ctx.API, oHandler)
	return nil
}

// NewStateMachine 组装订单状态机
// 确认时开票并创建发货单，取消时释放优惠券，都在调用方的事务内执行
func NewStateMachine(ctx *registry.ModuleContext) *service.StateMachine {
	return service.NewStateMachine(
		repository.NewOrderRepository(ctx.DB),
		[]service.ConfirmationHook{invoice.NewService(ctx), shipping.NewShipmentService(ctx)},
		[]service.CancellationHook{coupon.NewService(ctx)},
	)
}

func setupRoutes(r *gin.RouterGroup, h *handler.OrderHandler) {
	g := r.Group("/orders")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("", h.ListOrders)
		g.GET("/:id", h.GetOrder)
		g.PATCH("/:id", h.UpdateOrder)
		g.DELETE("/:id", h.CancelOrder)
	}
}
