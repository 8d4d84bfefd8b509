package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vocalbridge/bridge/pkg/apperrors"
	"github.com/vocalbridge/bridge/pkg/auth"
)

// AuthMiddleware guards the control-plane routes (/v1/sessions,
// /v1/calls/initiate) with a bearer JWT, distinct from the bridge
// endpoint's X-Bridge-Secret check.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperrors.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
			apperrors.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(bearerToken[1], jwtSecret)
		if err != nil {
			apperrors.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("operator_id", claims.OperatorID)
		c.Set("operator_role", claims.Role)
		c.Next()
	}
}

func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("operator_role")
		if !exists {
			apperrors.Forbidden(c, "role not found in token")
			c.Abort()
			return
		}

		for _, allowed := range allowedRoles {
			if role.(string) == allowed {
				c.Next()
				return
			}
		}

		apperrors.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
