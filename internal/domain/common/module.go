package common

import (
	"context"

	_ "order_payment_service/docs"
	commonHandler "order_payment_service/internal/pkg/common"
	"order_payment_service/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	checks := map[string]commonHandler.Pinger{}
	if ctx.DB != nil {
		checks["database"] = commonHandler.PingFunc(func(c context.Context) error {
			sqlDB, err := ctx.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c)
		})
	}
	if ctx.Redis != nil {
		checks["redis"] = commonHandler.PingFunc(func(c context.Context) error {
			return ctx.Redis.Ping(c).Err()
		})
	}

	setupRoutes(ctx.Router, commonHandler.NewHealthHandler(checks))
	return nil
}

func setupRoutes(r *gin.Engine, h *commonHandler.HealthHandler) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
