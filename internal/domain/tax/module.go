package tax

import (
	"order_payment_service/internal/domain/tax/handler"
	"order_payment_service/internal/domain/tax/repository"
	"order_payment_service/internal/domain/tax/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// TaxModule 税率模块
type TaxModule struct{}

func init() {
	registry.Register(&TaxModule{})
}

func (m *TaxModule) Name() string {
	return "tax"
}

func (m *TaxModule) Priority() int {
	return 10
}

func (m *TaxModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewTaxHandler(NewService(ctx))

	setupRoutes(ctx.API, h)
	return nil
}

// NewService 结账计价使用
func NewService(ctx *registry.ModuleContext) service.TaxService {
	return service.NewTaxService(repository.NewTaxRuleRepository(ctx.DB), ctx.Cache, ctx.Config.Cache.TTL)
}

func setupRoutes(r *gin.RouterGroup, h *handler.TaxHandler) {
	g := r.Group("/tax-rules")
	g.Use(middleware.AuthMiddleware())
	{
		// 试算对登录用户开放
		g.POST("/calculate", h.Calculate)

		admin := g.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("", h.CreateRule)
			admin.GET("", h.ListRules)
			admin.GET("/:id", h.GetRule)
			admin.PATCH("/:id", h.UpdateRule)
			admin.DELETE("/:id", h.DeleteRule)
		}
	}
}
