package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vocalbridge/bridge/pkg/apperrors"
)

// SecurityHeaders sets a baseline set of response headers for the control
// plane and bridge health/metrics surface. The bridge's own WebSocket
// upgrade bypasses this (gorilla/websocket writes its own handshake
// response) so it only applies to the plain HTTP routes.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestSizeLimit rejects bodies larger than maxBytes before they reach a
// handler, guarding against oversized control-plane payloads.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			apperrors.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "request body exceeds the allowed size")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
