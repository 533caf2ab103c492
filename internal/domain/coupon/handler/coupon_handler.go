package handler

import (
	"net/http"
	"time"

	"order_payment_service/internal/domain/coupon/model"
	"order_payment_service/internal/domain/coupon/service"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CouponHandler struct {
	service service.CouponService
}

func NewCouponHandler(service service.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

type CreateCouponInput struct {
	Code              string             `json:"code" binding:"required,max=64"`
	Type              model.CouponType   `json:"type" binding:"required,oneof=PERCENTAGE FIXED"`
	Value             decimal.Decimal    `json:"value"`
	MinOrderAmount    int64              `json:"minOrderAmount" binding:"min=0"`
	MaxDiscountAmount *int64             `json:"maxDiscountAmount"`
	UsageLimit        *int64             `json:"usageLimit"`
	ExpiresAt         *time.Time         `json:"expiresAt"`
	Status            model.CouponStatus `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
}

type UpdateCouponInput struct {
	Type              *model.CouponType   `json:"type" binding:"omitempty,oneof=PERCENTAGE FIXED"`
	Value             *decimal.Decimal    `json:"value"`
	MinOrderAmount    *int64              `json:"minOrderAmount"`
	MaxDiscountAmount *int64              `json:"maxDiscountAmount"`
	UsageLimit        *int64              `json:"usageLimit"`
	ExpiresAt         *time.Time          `json:"expiresAt"`
	Status            *model.CouponStatus `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
}

// CreateCoupon 创建优惠券
// @Summary 创建优惠券
// @Tags Coupon
// @Accept json
// @Produce json
// @Param body body CreateCouponInput true "Coupon"
// @Success 201 {object} response.Response{data=model.Coupon}
// @Failure 409 {object} response.Response "Duplicate code"
// @Router /v1/coupons [post]
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var input CreateCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	coupon, err := h.service.CreateCoupon(c.Request.Context(), service.CouponInput{
		Code:              input.Code,
		Type:              input.Type,
		Value:             input.Value,
		MinOrderAmount:    input.MinOrderAmount,
		MaxDiscountAmount: input.MaxDiscountAmount,
		UsageLimit:        input.UsageLimit,
		ExpiresAt:         input.ExpiresAt,
		Status:            input.Status,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, coupon)
}

func (h *CouponHandler) ListCoupons(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	offset, limit := p.GetPageOffset()
	list, total, err := h.service.ListCoupons(c.Request.Context(), offset, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, p))
}

func (h *CouponHandler) GetCoupon(c *gin.Context) {
	coupon, err := h.service.GetCoupon(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

func (h *CouponHandler) UpdateCoupon(c *gin.Context) {
	var input UpdateCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	coupon, err := h.service.UpdateCoupon(c.Request.Context(), c.Param("id"), service.CouponUpdate{
		Type:              input.Type,
		Value:             input.Value,
		MinOrderAmount:    input.MinOrderAmount,
		MaxDiscountAmount: input.MaxDiscountAmount,
		UsageLimit:        input.UsageLimit,
		ExpiresAt:         input.ExpiresAt,
		Status:            input.Status,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

func (h *CouponHandler) DeleteCoupon(c *gin.Context) {
	if err := h.service.DeleteCoupon(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
