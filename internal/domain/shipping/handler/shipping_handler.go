package handler

import (
	"net/http"

	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/internal/domain/shipping/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

type ShippingHandler struct {
	rates     service.RateService
	shipments service.ShipmentService
}

func NewShippingHandler(rates service.RateService, shipments service.ShipmentService) *ShippingHandler {
	return &ShippingHandler{rates: rates, shipments: shipments}
}

type CreateRateInput struct {
	Name          string   `json:"name" binding:"required"`
	Method        string   `json:"method" binding:"required"`
	Price         int64    `json:"price" binding:"min=0"`
	FreeThreshold *int64   `json:"freeThreshold"`
	Countries     []string `json:"countries" binding:"required,min=1,dive,len=2"`
	EstimatedDays int      `json:"estimatedDays" binding:"min=0"`
	IsActive      *bool    `json:"isActive"`
}

type UpdateRateInput struct {
	Name          *string  `json:"name"`
	Method        *string  `json:"method"`
	Price         *int64   `json:"price" binding:"omitempty,min=0"`
	FreeThreshold *int64   `json:"freeThreshold"`
	Countries     []string `json:"countries" binding:"omitempty,dive,len=2"`
	EstimatedDays *int     `json:"estimatedDays" binding:"omitempty,min=0"`
	IsActive      *bool    `json:"isActive"`
}

type UpdateShipmentInput struct {
	Status         *model.ShipmentStatus `json:"status" binding:"omitempty,oneof=SHIPPED DELIVERED CANCELLED"`
	Carrier        *string               `json:"carrier"`
	TrackingNumber *string               `json:"trackingNumber"`
}

// ListRates 运费模板列表，非管理员只能看到启用的
func (h *ShippingHandler) ListRates(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	rates, err := h.rates.ListRates(c.Request.Context(), !p.IsAdmin())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rates)
}

func (h *ShippingHandler) GetRate(c *gin.Context) {
	rate, err := h.rates.GetRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rate)
}

// CreateRate 创建运费模板
// @Summary 创建运费模板
// @Tags Shipping
// @Accept json
// @Produce json
// @Param body body CreateRateInput true "Rate"
// @Success 201 {object} response.Response{data=model.ShippingRate}
// @Router /v1/shipping/rates [post]
func (h *ShippingHandler) CreateRate(c *gin.Context) {
	var input CreateRateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	rate, err := h.rates.CreateRate(c.Request.Context(), service.RateInput{
		Name:          input.Name,
		Method:        input.Method,
		Price:         input.Price,
		FreeThreshold: input.FreeThreshold,
		Countries:     input.Countries,
		EstimatedDays: input.EstimatedDays,
		IsActive:      input.IsActive,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, rate)
}

func (h *ShippingHandler) UpdateRate(c *gin.Context) {
	var input UpdateRateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	rate, err := h.rates.UpdateRate(c.Request.Context(), c.Param("id"), service.RateUpdate{
		Name:          input.Name,
		Method:        input.Method,
		Price:         input.Price,
		FreeThreshold: input.FreeThreshold,
		Countries:     input.Countries,
		EstimatedDays: input.EstimatedDays,
		IsActive:      input.IsActive,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rate)
}

func (h *ShippingHandler) DeleteRate(c *gin.Context) {
	if err := h.rates.DeleteRate(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *ShippingHandler) ListShipments(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	offset, limit := p.GetPageOffset()
	list, total, err := h.shipments.List(c.Request.Context(), c.Query("status"), offset, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, p))
}

// GetShipment 查询发货单 (物流跟踪)
// @Summary 查询发货单
// @Tags Shipping
// @Produce json
// @Param id path string true "Shipment ID"
// @Success 200 {object} response.Response{data=model.Shipment}
// @Router /v1/shipping/{id} [get]
func (h *ShippingHandler) GetShipment(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	shipment, err := h.shipments.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, shipment)
}

func (h *ShippingHandler) GetShipmentByOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	shipment, err := h.shipments.GetByOrder(c.Request.Context(), p, c.Param("orderId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, shipment)
}

func (h *ShippingHandler) UpdateShipment(c *gin.Context) {
	var input UpdateShipmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	shipment, err := h.shipments.Update(c.Request.Context(), c.Param("id"), service.ShipmentUpdate{
		Status:         input.Status,
		Carrier:        input.Carrier,
		TrackingNumber: input.TrackingNumber,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, shipment)
}
