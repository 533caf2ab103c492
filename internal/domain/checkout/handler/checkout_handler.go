package handler

import (
	"net/http"

	"order_payment_service/internal/domain/checkout/service"
	orderModel "order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	service service.CheckoutService
}

func NewCheckoutHandler(s service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{service: s}
}

type ItemInput struct {
	ProductID string `json:"productId" binding:"required"`
	Name      string `json:"name" binding:"max=255"`
	Category  string `json:"category" binding:"max=64"`
	Quantity  int    `json:"quantity" binding:"required"`
	UnitPrice int64  `json:"unitPrice"`
}

type SummaryInput struct {
	Items          []ItemInput `json:"items" binding:"required,dive"`
	ShippingRateID string      `json:"shippingRateId" binding:"required"`
	Country        string      `json:"country" binding:"required,len=2"`
	Region         string      `json:"region"`
	CouponCode     string      `json:"couponCode"`
}

type OrderInput struct {
	Items           []ItemInput        `json:"items" binding:"required,dive"`
	ShippingAddress orderModel.Address `json:"shippingAddress" binding:"required"`
	ShippingRateID  string             `json:"shippingRateId" binding:"required"`
	CouponCode      string             `json:"couponCode"`
}

type ConfirmInput struct {
	OrderID         string `json:"orderId" binding:"required"`
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

type ApplyCouponInput struct {
	Code        string `json:"code" binding:"required"`
	OrderAmount int64  `json:"orderAmount" binding:"min=0"`
}

func toItems(in []ItemInput) []service.LineItem {
	items := make([]service.LineItem, 0, len(in))
	for _, i := range in {
		items = append(items, service.LineItem{
			ProductID: i.ProductID,
			Name:      i.Name,
			Category:  i.Category,
			Quantity:  i.Quantity,
			UnitPrice: i.UnitPrice,
		})
	}
	return items
}

func (in OrderInput) toService() service.OrderInput {
	return service.OrderInput{
		Items:           toItems(in.Items),
		ShippingAddress: in.ShippingAddress,
		ShippingRateID:  in.ShippingRateID,
		CouponCode:      in.CouponCode,
	}
}

// Summary 计算价格
// @Summary 结账价格预览
// @Description 按品类计算税费，税费基于折扣前小计
// @Tags Checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body SummaryInput true "Cart"
// @Success 200 {object} response.Response{data=service.Breakdown}
// @Failure 400 {object} response.Response
// @Router /v1/checkout/summary [post]
func (h *CheckoutHandler) Summary(c *gin.Context) {
	var input SummaryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	bd, err := h.service.Summary(c.Request.Context(), service.PriceRequest{
		Items:          toItems(input.Items),
		ShippingRateID: input.ShippingRateID,
		Country:        input.Country,
		Region:         input.Region,
		CouponCode:     input.CouponCode,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bd)
}

// ApplyCoupon 校验优惠券
// @Summary 校验优惠券并返回优惠金额
// @Tags Checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body ApplyCouponInput true "Coupon"
// @Success 200 {object} response.Response
// @Router /v1/checkout/apply-coupon [post]
func (h *CheckoutHandler) ApplyCoupon(c *gin.Context) {
	var input ApplyCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	d, err := h.service.ApplyCoupon(c.Request.Context(), input.Code, input.OrderAmount)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, d)
}

// Initiate 下单并创建支付
// @Summary 创建订单和 PaymentIntent
// @Description 网关失败时订单不会落库
// @Tags Checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body OrderInput true "Order"
// @Success 201 {object} response.Response{data=service.InitiateResult}
// @Failure 422 {object} response.Response
// @Router /v1/checkout/initiate [post]
func (h *CheckoutHandler) Initiate(c *gin.Context) {
	var input OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	result, err := h.service.Initiate(c.Request.Context(), p, input.toService())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, result)
}

// Confirm 前端支付完成后确认
// @Summary 确认支付
// @Description 以网关查询结果为准，与 webhook 结果一致
// @Tags Checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body ConfirmInput true "Confirm"
// @Success 200 {object} response.Response{data=orderModel.Order}
// @Failure 422 {object} response.Response
// @Router /v1/checkout/confirm [post]
func (h *CheckoutHandler) Confirm(c *gin.Context) {
	var input ConfirmInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	order, err := h.service.Confirm(c.Request.Context(), p, input.OrderID, input.PaymentIntentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// CreateOrder 只创建订单
// @Summary 创建订单
// @Tags Order
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body OrderInput true "Order"
// @Success 201 {object} response.Response{data=orderModel.Order}
// @Router /v1/orders [post]
func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	var input OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	order, err := h.service.PlaceOrder(c.Request.Context(), p, input.toService())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, order)
}
