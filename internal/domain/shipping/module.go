package shipping

import (
	"order_payment_service/internal/domain/shipping/handler"
	"order_payment_service/internal/domain/shipping/repository"
	"order_payment_service/internal/domain/shipping/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// ShippingModule 运费与发货模块
type ShippingModule struct{}

func init() {
	registry.Register(&ShippingModule{})
}

func (m *ShippingModule) Name() string {
	return "shipping"
}

func (m *ShippingModule) Priority() int {
	return 10
}

func (m *ShippingModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewShippingHandler(NewRateService(ctx), NewShipmentService(ctx))

	setupRoutes(ctx.API, h)
	return nil
}

// NewRateService 结账计价使用
func NewRateService(ctx *registry.ModuleContext) service.RateService {
	return service.NewRateService(repository.NewRateRepository(ctx.DB), ctx.Cache, ctx.Config.Cache.TTL)
}

// NewShipmentService 订单确认时创建发货单
func NewShipmentService(ctx *registry.ModuleContext) service.ShipmentService {
	return service.NewShipmentService(repository.NewShipmentRepository(ctx.DB), NewRateService(ctx), ctx.Bus)
}

func setupRoutes(r *gin.RouterGroup, h *handler.ShippingHandler) {
	g := r.Group("/shipping")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("/rates", h.ListRates)
		g.GET("/rates/:id", h.GetRate)
		g.GET("/order/:orderId", h.GetShipmentByOrder)
		g.GET("/:id", h.GetShipment)

		admin := g.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("/rates", h.CreateRate)
			admin.PATCH("/rates/:id", h.UpdateRate)
			admin.DELETE("/rates/:id", h.DeleteRate)
			admin.GET("", h.ListShipments)
			admin.PATCH("/:id", h.UpdateShipment)
		}
	}
}
