package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"order_payment_service/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perform(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", handler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestFromError(t *testing.T) {
	t.Run("Business error keeps message and status", func(t *testing.T) {
		w, body := perform(t, func(c *gin.Context) {
			FromError(c, apperr.Unprocessable("Refund exceeds refundable amount"))
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.False(t, body.Success)
		assert.Equal(t, "UNPROCESSABLE", body.Error.Code)
		assert.Equal(t, "Refund exceeds refundable amount", body.Error.Message)
	})

	t.Run("Gateway cause is preserved on 422", func(t *testing.T) {
		_, body := perform(t, func(c *gin.Context) {
			FromError(c, apperr.Wrap(apperr.KindUnprocessable, errors.New("card_declined"), "payment gateway rejected the request"))
		})

		assert.Equal(t, "payment gateway rejected the request: card_declined", body.Error.Message)
	})

	t.Run("Internal error hides details", func(t *testing.T) {
		ExposeInternalErrors = false
		w, body := perform(t, func(c *gin.Context) {
			FromError(c, errors.New("pq: connection refused"))
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.Equal(t, internalMessage, body.Error.Message)
	})
}

func TestSuccess(t *testing.T) {
	w, body := perform(t, func(c *gin.Context) {
		Success(c, gin.H{"received": true})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
}
