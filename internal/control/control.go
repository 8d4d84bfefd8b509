// Package control implements the bridge's control plane: bearer-JWT
// gated operator endpoints for listing live sessions and initiating
// outbound calls (SPEC_FULL §11, §13). Grounded on the teacher's
// internal/api/handlers/auth.go Login handler for the
// request-validate-respond shape and its pkg/errors problem+json
// conventions, generalized to mint tokens against the bridge secret
// instead of a Mongo-backed user/password table since operators here
// have no separate account store.
package control

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/coordinator"
	"github.com/vocalbridge/bridge/internal/session"
	"github.com/vocalbridge/bridge/internal/wire"
	"github.com/vocalbridge/bridge/pkg/apperrors"
	"github.com/vocalbridge/bridge/pkg/auth"
	"github.com/vocalbridge/bridge/pkg/config"
	"github.com/vocalbridge/bridge/pkg/logger"
	"github.com/vocalbridge/bridge/pkg/middleware"
	"github.com/vocalbridge/bridge/pkg/secret"
)

// Handler holds the dependencies the control-plane routes need.
type Handler struct {
	cfg      *config.Config
	registry *session.Registry
	coord    *coordinator.Coordinator
	logger   *zap.Logger
}

func New(cfg *config.Config, registry *session.Registry, coord *coordinator.Coordinator, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, registry: registry, coord: coord, logger: logger}
}

// Register mounts the control-plane routes under router. /v1/auth/token
// is gated by the bridge secret (the only operator credential this
// system has); the rest require the bearer JWT it mints, plus whatever
// extra middleware (rate limiting, idempotency) the caller supplies.
func (h *Handler) Register(router gin.IRouter, extra ...gin.HandlerFunc) {
	router.POST("/v1/auth/token", h.issueToken)

	protected := router.Group("/v1")
	protected.Use(middleware.AuthMiddleware(h.cfg.JWTSecret))
	for _, mw := range extra {
		protected.Use(mw)
	}
	protected.GET("/sessions", h.listSessions)
	protected.POST("/calls/initiate", h.initiateCall)
}

type tokenRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
	Role       string `json:"role"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) issueToken(c *gin.Context) {
	if !secret.Equal(h.cfg.BridgeSecret, c.GetHeader("X-Bridge-Secret")) {
		apperrors.Unauthorized(c, "invalid or missing X-Bridge-Secret")
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = "operator"
	}

	token, expiresAt, err := auth.GenerateAccessToken(
		req.OperatorID, req.Role,
		h.cfg.JWTSecret, h.cfg.JWTIssuer, h.cfg.JWTAudience, h.cfg.AccessTTLMin,
	)
	if err != nil {
		apperrors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: token, ExpiresAt: expiresAt})
}

type sessionsResponse struct {
	Count    int                `json:"count"`
	Sessions []session.Snapshot `json:"sessions"`
}

func (h *Handler) listSessions(c *gin.Context) {
	snaps := h.registry.Snapshots()
	c.JSON(http.StatusOK, sessionsResponse{Count: len(snaps), Sessions: snaps})
}

type initiateCallRequest struct {
	CallID    string         `json:"call_id"`
	Target    wire.CallTarget `json:"target" binding:"required"`
	Greeting  string         `json:"greeting"`
	TimeoutMs int            `json:"timeout_ms"`
}

type initiateCallResponse struct {
	CallID   string `json:"call_id"`
	Answered bool   `json:"answered"`
}

func (h *Handler) initiateCall(c *gin.Context) {
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err.Error())
		return
	}

	h.logger.Info("control: initiating outbound call",
		zap.String("call_id", req.CallID),
		zap.String("target_type", req.Target.Type),
		logger.MaskPhoneIfPresent("target_number", req.Target.Number),
	)

	timeout := time.Duration(h.cfg.OutboundRingTimeoutMs) * time.Millisecond
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	result, err := h.coord.Initiate(c.Request.Context(), req.CallID, req.Target, req.Greeting, timeout)
	if err != nil {
		h.respondInitiateError(c, err)
		return
	}

	c.JSON(http.StatusOK, initiateCallResponse{CallID: req.CallID, Answered: result.Answered})
}

func (h *Handler) respondInitiateError(c *gin.Context, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindDisabled:
		apperrors.ErrorResponse(c, http.StatusServiceUnavailable, "Outbound Calling Disabled", err.Error())
	case apperrors.KindGatewayNotConnected:
		apperrors.ErrorResponse(c, http.StatusServiceUnavailable, "No Gateway Connection", err.Error())
	case apperrors.KindTimeout:
		apperrors.ErrorResponse(c, http.StatusGatewayTimeout, "Outbound Call Timed Out", err.Error())
	case apperrors.KindUpstreamUnavailable:
		apperrors.ErrorResponse(c, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	default:
		apperrors.InternalError(c, err, h.logger)
	}
}
