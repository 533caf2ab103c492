package middleware

import (
	"net/http"
	"strings"

	"order_payment_service/internal/pkg/auth"
	"order_payment_service/pkg/response"
	"order_payment_service/pkg/utils"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeTokenInvalid, "Authorization header is required")
			return
		}

		// 检查格式 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeTokenInvalid, "Invalid authorization header format")
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil || claims.UserID == "" {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeTokenInvalid, "Invalid or expired token")
			return
		}

		c.Set(principalKey, auth.Principal{UserID: claims.UserID, Role: auth.Role(claims.Role)})
		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，必须放在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeTokenInvalid, "Unauthorized")
			return
		}
		if !p.IsAdmin() {
			response.AbortWithError(c, http.StatusForbidden, response.CodeNoPermission, "Admin permission required")
			return
		}
		c.Next()
	}
}

// PrincipalFrom 取出当前调用方
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	val, exists := c.Get(principalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}

// SetPrincipal 供测试或内部调用注入调用方
func SetPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
}
