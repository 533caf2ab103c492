package handler

import (
	"net/http"

	"order_payment_service/internal/domain/refund/model"
	"order_payment_service/internal/domain/refund/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

type RefundHandler struct {
	service service.RefundService
}

func NewRefundHandler(s service.RefundService) *RefundHandler {
	return &RefundHandler{service: s}
}

type CreateRefundInput struct {
	PaymentID string `json:"paymentId" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

type ListRefundsQuery struct {
	utils.Pagination
	Status model.Status `form:"status" binding:"omitempty,oneof=PENDING SUCCEEDED FAILED"`
}

// CreateRefund 发起退款
// @Summary 发起退款 (管理员)
// @Description 退款总额超过支付金额返回 422，退款到账以网关回调为准
// @Tags Refund
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body CreateRefundInput true "Refund"
// @Success 201 {object} response.Response{data=model.Refund}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /v1/refunds [post]
func (h *RefundHandler) CreateRefund(c *gin.Context) {
	var input CreateRefundInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	refund, err := h.service.Create(c.Request.Context(), p, service.CreateInput{
		PaymentID: input.PaymentID,
		Amount:    input.Amount,
		Reason:    input.Reason,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, refund)
}

func (h *RefundHandler) ListRefunds(c *gin.Context) {
	var query ListRefundsQuery
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

func (h *RefundHandler) GetRefund(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	refund, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, refund)
}

func (h *RefundHandler) ListByPayment(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	refunds, err := h.service.ListByPayment(c.Request.Context(), p, c.Param("paymentId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, refunds)
}
