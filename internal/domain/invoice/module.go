package invoice

import (
	"order_payment_service/internal/domain/invoice/handler"
	"order_payment_service/internal/domain/invoice/repository"
	"order_payment_service/internal/domain/invoice/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// InvoiceModule 发票模块
type InvoiceModule struct{}

func init() {
	registry.Register(&InvoiceModule{})
}

func (m *InvoiceModule) Name() string {
	return "invoice"
}

func (m *InvoiceModule) Priority() int {
	return 10
}

func (m *InvoiceModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewInvoiceHandler(NewService(ctx))
	setupRoutes(ctx.API, h)
	return nil
}

// NewService 供订单状态机作为确认钩子使用
func NewService(ctx *registry.ModuleContext) service.InvoiceService {
	return service.NewInvoiceService(
		repository.NewInvoiceRepository(ctx.DB),
		ctx.Tx,
		ctx.Bus,
		ctx.Config.Invoice,
		ctx.Metrics,
	)
}

func setupRoutes(r *gin.RouterGroup, h *handler.InvoiceHandler) {
	g := r.Group("/invoices")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("", h.ListInvoices)
		g.GET("/order/:orderId", h.GetByOrder)
		g.GET("/:id", h.GetInvoice)
		g.GET("/:id/download", h.Download)
		g.PATCH("/:id/void", middleware.AdminMiddleware(), h.VoidInvoice)
	}
}
