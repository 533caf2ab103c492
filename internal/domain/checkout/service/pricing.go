package service

import (
	"context"
	"sort"
	"strings"

	couponService "order_payment_service/internal/domain/coupon/service"
	taxModel "order_payment_service/internal/domain/tax/model"
	"order_payment_service/pkg/apperr"
)

// TaxResolver 按国家/地区/品类选出税率并计算
type TaxResolver interface {
	Resolve(ctx context.Context, country, region, category string) (*taxModel.TaxRule, error)
	Calculate(amount int64, rule *taxModel.TaxRule) int64
}

// ShippingResolver 计算运费，满额包邮
type ShippingResolver interface {
	Resolve(ctx context.Context, rateID, country string, orderAmount int64) (int64, error)
}

// CouponValidator 只读校验优惠券
type CouponValidator interface {
	Validate(ctx context.Context, code string, orderAmount int64) (*couponService.Discount, error)
}

type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// Total quantity * unitPrice
func (l LineItem) Total() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

type PriceRequest struct {
	Items          []LineItem
	ShippingRateID string
	Country        string
	Region         string
	CouponCode     string
}

// CategoryTax 单个品类的税额
type CategoryTax struct {
	Category  string `json:"category"`
	Taxable   int64  `json:"taxable"`
	RuleID    string `json:"ruleId,omitempty"`
	TaxAmount int64  `json:"taxAmount"`
}

// Breakdown 价格明细，金额均为最小货币单位
type Breakdown struct {
	Subtotal       int64                   `json:"subtotal"`
	TaxAmount      int64                   `json:"taxAmount"`
	ShippingAmount int64                   `json:"shippingAmount"`
	DiscountAmount int64                   `json:"discountAmount"`
	TotalAmount    int64                   `json:"totalAmount"`
	Currency       string                  `json:"currency"`
	Taxes          []CategoryTax           `json:"taxes"`
	Coupon         *couponService.Discount `json:"coupon,omitempty"`
}

// PricingEngine 组合税费、运费、优惠计算订单总价
type PricingEngine struct {
	tax      TaxResolver
	shipping ShippingResolver
	coupons  CouponValidator
	currency string
}

func NewPricingEngine(tax TaxResolver, shipping ShippingResolver, coupons CouponValidator, currency string) *PricingEngine {
	return &PricingEngine{tax: tax, shipping: shipping, coupons: coupons, currency: strings.ToLower(currency)}
}

// Price 税费按品类在折扣前的小计上计算，折扣不减少税额
func (e *PricingEngine) Price(ctx context.Context, req PriceRequest) (*Breakdown, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	if req.ShippingRateID == "" {
		return nil, apperr.Validation("shippingRateId is required")
	}
	if strings.TrimSpace(req.Country) == "" {
		return nil, apperr.Validation("country is required")
	}

	bd := &Breakdown{Currency: e.currency}
	byCategory := make(map[string]int64)
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, apperr.Validation("quantity must be greater than 0").With("productId", item.ProductID)
		}
		if item.UnitPrice < 0 {
			return nil, apperr.Validation("unitPrice must not be negative").With("productId", item.ProductID)
		}
		bd.Subtotal += item.Total()
		byCategory[Category(item.Category)] += item.Total()
	}

	if req.CouponCode != "" {
		discount, err := e.coupons.Validate(ctx, req.CouponCode, bd.Subtotal)
		if err != nil {
			return nil, err
		}
		bd.Coupon = discount
		bd.DiscountAmount = discount.DiscountAmount
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, category := range categories {
		rule, err := e.tax.Resolve(ctx, req.Country, req.Region, category)
		if err != nil {
			return nil, err
		}
		ct := CategoryTax{Category: category, Taxable: byCategory[category]}
		if rule != nil {
			ct.RuleID = rule.ID
		}
		ct.TaxAmount = e.tax.Calculate(ct.Taxable, rule)
		bd.TaxAmount += ct.TaxAmount
		bd.Taxes = append(bd.Taxes, ct)
	}

	shipping, err := e.shipping.Resolve(ctx, req.ShippingRateID, req.Country, bd.Subtotal)
	if err != nil {
		return nil, err
	}
	bd.ShippingAmount = shipping

	bd.TotalAmount = bd.Subtotal + bd.TaxAmount + bd.ShippingAmount - bd.DiscountAmount
	return bd, nil
}

// Category 空品类归入默认品类
func Category(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return taxModel.DefaultCategory
	}
	return c
}
