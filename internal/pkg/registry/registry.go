package registry

import (
	"fmt"
	"sort"

	"order_payment_service/internal/domain/payment/gateway"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/cache"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB      *gorm.DB
	Redis   *redis.Client // 未配置时为 nil
	Router  *gin.Engine
	API     *gin.RouterGroup // /v1，已挂限流
	Config  *config.Config
	Tx      database.Transactor
	Gateway gateway.PaymentGateway
	Bus     *events.Bus
	Cache   cache.CacheService
	Metrics *metrics.MetricsCollector
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块，重名直接 panic，属于编码错误
func Register(module Module) {
	if _, exists := moduleRegistry[module.Name()]; exists {
		panic(fmt.Sprintf("module %q registered twice", module.Name()))
	}
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// Ordered 按优先级排序，优先级相同按名称
func Ordered() []Module {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})
	return modules
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	for _, module := range Ordered() {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
	}
	return nil
}
