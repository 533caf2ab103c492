package checkout

import (
	"order_payment_service/internal/domain/checkout/handler"
	"order_payment_service/internal/domain/checkout/service"
	"order_payment_service/internal/domain/coupon"
	orderRepo "order_payment_service/internal/domain/order/repository"
	"order_payment_service/internal/domain/payment"
	"order_payment_service/internal/domain/shipping"
	"order_payment_service/internal/domain/tax"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CheckoutModule 结账模块
type CheckoutModule struct{}

func init() {
	registry.Register(&CheckoutModule{})
}

func (m *CheckoutModule) Name() string {
	return "checkout"
}

func (m *CheckoutModule) Priority() int {
	return 40
}

func (m *CheckoutModule) Init(ctx *registry.ModuleContext) error {
	coupons := coupon.NewService(ctx)
	pricing := service.NewPricingEngine(
		tax.NewService(ctx),
		shipping.NewRateService(ctx),
		coupons,
		ctx.Config.Stripe.Currency,
	)

	cService := service.NewCheckoutService(service.Deps{
		Pricing:   pricing,
		Coupons:   coupons,
		Redeemer:  coupons,
		Orders:    orderRepo.NewOrderRepository(ctx.DB),
		Payments:  payment.NewService(ctx),
		Confirmer: payment.NewReconciler(ctx),
		Tx:        ctx.Tx,
		Bus:       ctx.Bus,
		Metrics:   ctx.Metrics,
	})
	h := handler.NewCheckoutHandler(cService)

	setupRoutes(ctx.API, h)
	return nil
}

func setupRoutes(r *gin.RouterGroup, h *handler.CheckoutHandler) {
	g := r.Group("/checkout")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("/summary", h.Summary)
		g.POST("/apply-coupon", h.ApplyCoupon)
		g.POST("/initiate", h.Initiate)
		g.POST("/confirm", h.Confirm)
	}

	// 订单的读写接口在订单模块，创建订单依赖计价所以挂在这里
	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware())
	orders.POST("", h.CreateOrder)
}
