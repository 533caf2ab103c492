package handler

import (
	"net/http"

	"order_payment_service/internal/domain/invoice/service"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	service service.InvoiceService
}

func NewInvoiceHandler(s service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: s}
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, err.Error())
		return
	}
	p, _ := middleware.PrincipalFrom(c)
	offset, limit := page.GetPageOffset()

	list, total, err := h.service.List(c.Request.Context(), p, offset, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, page))
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	invoice, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

func (h *InvoiceHandler) GetByOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	invoice, err := h.service.GetByOrder(c.Request.Context(), p, c.Param("orderId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

// Download 下载发票
// @Summary 下载纯文本发票
// @Tags Invoice
// @Produce plain
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {string} string "invoice document"
// @Router /v1/invoices/{id}/download [get]
func (h *InvoiceHandler) Download(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	doc, err := h.service.Download(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// VoidInvoice 作废发票
// @Summary 作废发票 (管理员)
// @Description 已作废的发票重复作废直接返回成功
// @Tags Invoice
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Response{data=model.Invoice}
// @Router /v1/invoices/{id}/void [patch]
func (h *InvoiceHandler) VoidInvoice(c *gin.Context) {
	invoice, err := h.service.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}
