package handler

import (
	"net/http"

	"order_payment_service/internal/domain/payment/model"
	"order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service service.PaymentService
}

func NewPaymentHandler(s service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: s}
}

type CreateIntentInput struct {
	OrderID string `json:"orderId" binding:"required"`
}

type ListPaymentsQuery struct {
	utils.Pagination
	Status model.Status `form:"status" binding:"omitempty,oneof=PENDING SUCCEEDED FAILED CANCELED"`
}

// CreateIntent 创建支付
// @Summary 为订单创建 PaymentIntent
// @Description 订单已支付返回 409，网关失败返回 422
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body CreateIntentInput true "Order"
// @Success 201 {object} response.Response{data=service.IntentResult}
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /v1/payments/create-intent [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var input CreateIntentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	result, err := h.service.CreateIntent(c.Request.Context(), p, input.OrderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, result)
}

// ListPayments 支付记录列表
// @Summary 支付记录列表
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /v1/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var query ListPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(c)
	offset, limit := query.GetPageOffset()

	list, total, err := h.service.List(c.Request.Context(), p, service.ListQuery{
		Status: query.Status,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, query.Pagination))
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	payment, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

func (h *PaymentHandler) ListByOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	payments, err := h.service.ListByOrder(c.Request.Context(), p, c.Param("orderId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payments)
}
