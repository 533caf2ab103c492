package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantState  string
	}{
		{"no dependencies", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]Pinger{"database": ok, "redis": ok}, http.StatusOK, "ok"},
		{"redis down", map[string]Pinger{"database": ok, "redis": down}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(tt.checks).Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			var body struct {
				Data map[string]string `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Data["status"])
			for name := range tt.checks {
				assert.Contains(t, body.Data, name)
			}
		})
	}
}
