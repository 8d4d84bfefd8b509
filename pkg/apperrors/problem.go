// Package apperrors provides the control-plane's RFC 7807 error envelope
// and the bridge's internal error-kind taxonomy.
package apperrors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProblemDetail represents an RFC 7807 Problem Details response.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ErrorResponse sends a problem+json error response.
func ErrorResponse(c *gin.Context, status int, title, detail string) {
	traceID := c.GetString("trace_id")
	if traceID == "" {
		traceID = c.GetString("request_id")
	}

	problem := ProblemDetail{
		Type:     getProblemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		TraceID:  traceID,
		Instance: c.Request.URL.Path,
	}

	c.Header("Content-Type", "application/problem+json")
	c.JSON(status, problem)
}

// InternalError logs and sends a 500 error.
func InternalError(c *gin.Context, err error, logger *zap.Logger) {
	logger.Error("internal server error",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)

	ErrorResponse(c, http.StatusInternalServerError,
		"Internal Server Error",
		"An unexpected error occurred. Please try again later.",
	)
}

func BadRequest(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusBadRequest, "Bad Request", detail)
}

func Unauthorized(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", detail)
}

func Forbidden(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusForbidden, "Forbidden", detail)
}

func NotFound(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusNotFound, "Not Found", detail)
}

func Conflict(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusConflict, "Conflict", detail)
}

func TooManyRequests(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusTooManyRequests, "Too Many Requests", detail)
}

func getProblemType(status int) string {
	baseURL := "https://bridge.vocalbridge.dev/problems"
	switch status {
	case http.StatusBadRequest:
		return baseURL + "/bad-request"
	case http.StatusUnauthorized:
		return baseURL + "/unauthorized"
	case http.StatusForbidden:
		return baseURL + "/forbidden"
	case http.StatusNotFound:
		return baseURL + "/not-found"
	case http.StatusConflict:
		return baseURL + "/conflict"
	case http.StatusTooManyRequests:
		return baseURL + "/rate-limit-exceeded"
	case http.StatusInternalServerError:
		return baseURL + "/internal-error"
	default:
		return baseURL + "/error"
	}
}

// Kind is the abstract error-kind taxonomy a call session reasons about
// internally, independent of any HTTP status code.
type Kind string

const (
	KindProtocolError        Kind = "protocol_error"
	KindUnauthorized         Kind = "unauthorized"
	KindRateLimited          Kind = "rate_limited"
	KindGatewayNotConnected  Kind = "gateway_not_connected"
	KindTimeout              Kind = "timeout"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindUpstreamProtocolErr  Kind = "upstream_protocol_error"
	KindCancelled            Kind = "cancelled"
	KindDisabled             Kind = "disabled"
	KindInternal             Kind = "internal"
)

// BridgeError wraps an underlying cause with one of the Kind values above
// so session and control-plane code can branch on category without string
// matching.
type BridgeError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *BridgeError {
	return &BridgeError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *BridgeError {
	return &BridgeError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *BridgeError,
// defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var be *BridgeError
	if as(err, &be) {
		return be.Kind
	}
	return KindInternal
}

func as(err error, target **BridgeError) bool {
	for err != nil {
		if be, ok := err.(*BridgeError); ok {
			*target = be
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
