package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 基础模型，使用 UUID 作为主键
// 账本类数据 (订单、支付、退款、发票) 不做删除，因此这里不带 DeletedAt
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 钩子：生成 UUID
func (b *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

// SoftDelete 管理类数据的软删除字段
// 仓储层显式过滤 deleted_at IS NULL，不依赖 gorm 的自动作用域
type SoftDelete struct {
	DeletedAt *time.Time `gorm:"index" json:"deletedAt,omitempty"`
}

// NotDeleted 查询条件
const NotDeleted = "deleted_at IS NULL"
