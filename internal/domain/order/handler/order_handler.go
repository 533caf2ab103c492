package handler

import (
	"net/http"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/domain/order/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(s service.OrderService) *OrderHandler {
	return &OrderHandler{service: s}
}

type ListOrdersQuery struct {
	utils.Pagination
	Status model.Status `form:"status" binding:"omitempty,oneof=PENDING CONFIRMED CANCELLED"`
}

type UpdateOrderInput struct {
	Status model.Status `json:"status" binding:"required,oneof=CONFIRMED CANCELLED"`
}

// ListOrders 订单列表
// @Summary 订单列表
// @Description 普通用户只返回自己的订单，管理员返回全部
// @Tags Order
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Param status query string false "订单状态"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /v1/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var query ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(c)
	offset, limit := query.GetPageOffset()

	orders, total, err := h.service.List(c.Request.Context(), p, service.ListQuery{
		Status: query.Status,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(orders, total, query.Pagination))
}

// GetOrder 订单详情
// @Summary 订单详情
// @Tags Order
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /v1/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	order, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateOrder 订单状态变更
// @Summary 订单状态变更
// @Tags Order
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param body body UpdateOrderInput true "目标状态"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 422 {object} response.Response
// @Router /v1/orders/{id} [patch]
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var input UpdateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(c)
	order, err := h.service.Transition(c.Request.Context(), p, c.Param("id"), input.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// CancelOrder 取消订单
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	order, err := h.service.Cancel(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}
