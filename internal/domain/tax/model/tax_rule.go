package model

import (
	baseModel "order_payment_service/pkg/model"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	TypePercentage RuleType = "PERCENTAGE"
	TypeFixed      RuleType = "FIXED"
)

// DefaultCategory 未指定品类的商品按 standard 计税
const DefaultCategory = "standard"

// TaxRule 税率规则
// PERCENTAGE 时 Rate 为百分比，FIXED 时 Rate 为固定税额 (最小货币单位)
type TaxRule struct {
	baseModel.BaseModel
	baseModel.SoftDelete
	Name      string          `gorm:"type:varchar(100);not null" json:"name"`
	Type      RuleType        `gorm:"type:varchar(20);not null" json:"type"`
	Rate      decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"rate"`
	Country   string          `gorm:"type:char(2);not null;index:idx_tax_lookup" json:"country"`
	Region    *string         `gorm:"type:varchar(64);index:idx_tax_lookup" json:"region"`
	Category  string          `gorm:"type:varchar(64);not null;index:idx_tax_lookup" json:"category"`
	IsDefault bool            `gorm:"not null;default:false" json:"isDefault"`
	IsActive  bool            `gorm:"not null;default:true" json:"isActive"`
}
