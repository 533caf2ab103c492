package handler

import (
	"net/http"

	"order_payment_service/internal/domain/tax/model"
	"order_payment_service/internal/domain/tax/service"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TaxHandler struct {
	service service.TaxService
}

func NewTaxHandler(service service.TaxService) *TaxHandler {
	return &TaxHandler{service: service}
}

type CreateRuleInput struct {
	Name      string          `json:"name" binding:"required"`
	Type      model.RuleType  `json:"type" binding:"required,oneof=PERCENTAGE FIXED"`
	Rate      decimal.Decimal `json:"rate"`
	Country   string          `json:"country" binding:"required,len=2"`
	Region    *string         `json:"region"`
	Category  string          `json:"category"`
	IsDefault bool            `json:"isDefault"`
	IsActive  *bool           `json:"isActive"`
}

type UpdateRuleInput struct {
	Name      *string          `json:"name"`
	Type      *model.RuleType  `json:"type" binding:"omitempty,oneof=PERCENTAGE FIXED"`
	Rate      *decimal.Decimal `json:"rate"`
	Region    *string          `json:"region"`
	Category  *string          `json:"category"`
	IsDefault *bool            `json:"isDefault"`
	IsActive  *bool            `json:"isActive"`
}

type CalculateInput struct {
	Amount   int64  `json:"amount" binding:"min=0"`
	Country  string `json:"country" binding:"required,len=2"`
	Region   string `json:"region"`
	Category string `json:"category"`
}

type CalculateResult struct {
	Rule      *model.TaxRule `json:"rule"`
	TaxAmount int64          `json:"taxAmount"`
}

// CreateRule 创建税率规则
// @Summary 创建税率规则
// @Tags Tax
// @Accept json
// @Produce json
// @Param body body CreateRuleInput true "Rule"
// @Success 201 {object} response.Response{data=model.TaxRule}
// @Router /v1/tax-rules [post]
func (h *TaxHandler) CreateRule(c *gin.Context) {
	var input CreateRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), service.CreateRuleInput{
		Name:      input.Name,
		Type:      input.Type,
		Rate:      input.Rate,
		Country:   input.Country,
		Region:    input.Region,
		Category:  input.Category,
		IsDefault: input.IsDefault,
		IsActive:  input.IsActive,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, rule)
}

func (h *TaxHandler) ListRules(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	offset, limit := p.GetPageOffset()

	rules, total, err := h.service.ListRules(c.Request.Context(), c.Query("country"), offset, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(rules, total, p))
}

func (h *TaxHandler) GetRule(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *TaxHandler) UpdateRule(c *gin.Context) {
	var input UpdateRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), c.Param("id"), service.UpdateRuleInput{
		Name:      input.Name,
		Type:      input.Type,
		Rate:      input.Rate,
		Region:    input.Region,
		Category:  input.Category,
		IsDefault: input.IsDefault,
		IsActive:  input.IsActive,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rule)
}

func (h *TaxHandler) DeleteRule(c *gin.Context) {
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Calculate 税额试算
// @Summary 按国家/地区/品类试算税额
// @Tags Tax
// @Accept json
// @Produce json
// @Param body body CalculateInput true "Amount and location"
// @Success 200 {object} response.Response{data=CalculateResult}
// @Router /v1/tax-rules/calculate [post]
func (h *TaxHandler) Calculate(c *gin.Context) {
	var input CalculateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}

	rule, err := h.service.Resolve(c.Request.Context(), input.Country, input.Region, input.Category)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, CalculateResult{Rule: rule, TaxAmount: h.service.Calculate(input.Amount, rule)})
}
