package handler

import (
	"net/http"

	"order_payment_service/internal/domain/webhook/service"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/response"

	"github.com/gin-gonic/gin"
)

// SignatureHeader Stripe 的签名头
const SignatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	service service.WebhookService
}

func NewWebhookHandler(s service.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: s}
}

// Stripe 接收网关回调
// @Summary Stripe webhook
// @Description 验签失败返回 400；处理失败返回 500，由网关重试；未处理的事件类型返回 200
// @Tags Webhook
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /v1/webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c *gin.Context) {
	// 验签需要原始请求体，不能先做 JSON 绑定
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, "could not read request body")
		return
	}

	if _, err := h.service.Handle(c.Request.Context(), payload, c.GetHeader(SignatureHeader)); err != nil {
		if apperr.Is(err, apperr.KindBadRequest) {
			response.FromError(c, err)
			return
		}
		// 其余错误一律 500，网关会按退避策略重试
		response.FromError(c, apperr.Internal(err, "webhook processing failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
