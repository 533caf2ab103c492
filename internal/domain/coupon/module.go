package coupon

import (
	"order_payment_service/internal/domain/coupon/handler"
	"order_payment_service/internal/domain/coupon/repository"
	"order_payment_service/internal/domain/coupon/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CouponModule 优惠券模块
type CouponModule struct{}

func init() {
	registry.Register(&CouponModule{})
}

func (m *CouponModule) Name() string {
	return "coupon"
}

func (m *CouponModule) Priority() int {
	return 10
}

func (m *CouponModule) Init(ctx *registry.ModuleContext) error {
	cHandler := handler.NewCouponHandler(NewService(ctx))

	setupRoutes(ctx.API, cHandler)
	return nil
}

// NewService 结账和订单取消时使用
func NewService(ctx *registry.ModuleContext) service.CouponService {
	return service.NewCouponService(repository.NewCouponRepository(ctx.DB))
}

func setupRoutes(r *gin.RouterGroup, h *handler.CouponHandler) {
	// 优惠券管理只对管理员开放，用户侧通过 /checkout/apply-coupon 使用
	g := r.Group("/coupons")
	g.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		g.POST("", h.CreateCoupon)
		g.GET("", h.ListCoupons)
		g.GET("/:id", h.GetCoupon)
		g.PATCH("/:id", h.UpdateCoupon)
		g.DELETE("/:id", h.DeleteCoupon)
	}
}
