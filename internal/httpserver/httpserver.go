// Package httpserver assembles the bridge's Gin engine: health and
// metrics routes, the WebSocket upgrade endpoint, and the control
// plane, wired with the same middleware stack the teacher's
// UnifiedServer.setupRouter builds (cmd/server/main.go) - recovery,
// trace headers, security headers, a request-size cap, CORS, and
// Redis-backed rate limiting/idempotency - generalized from the
// teacher's REST CRM surface down to the bridge's three route groups.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/control"
	"github.com/vocalbridge/bridge/internal/listener"
	"github.com/vocalbridge/bridge/internal/session"
	"github.com/vocalbridge/bridge/pkg/config"
	"github.com/vocalbridge/bridge/pkg/metrics"
	"github.com/vocalbridge/bridge/pkg/middleware"
	"github.com/vocalbridge/bridge/pkg/ratelimit"
	"github.com/vocalbridge/bridge/pkg/telemetry"
)

const maxRequestBytes = 1 << 20 // 1 MB, matches the teacher's REST body cap.
const controlPlaneRPM = 60      // control-plane requests per operator per minute.

// Deps bundles everything the router needs to mount routes.
type Deps struct {
	Cfg         *config.Config
	Logger      *zap.Logger
	Registry    *session.Registry
	Listener    *listener.Listener
	Control     *control.Handler
	RedisClient *redis.Client // optional: nil disables idempotency + control-plane rate limiting
}

// New builds the Gin engine, mirroring the teacher's setupRouter
// middleware ordering: recovery, trace, security headers, size limit,
// access log, CORS, then route groups.
func New(d Deps) *gin.Engine {
	if d.Cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxRequestBytes))
	if d.Cfg.OTELEnabled {
		router.Use(telemetry.GinMiddleware())
	}
	router.Use(gin.LoggerWithFormatter(accessLogFormatter))

	corsConfig := cors.DefaultConfig()
	if d.Cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{d.Cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Bridge-Secret"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", d.healthCheck)
	router.GET("/metrics", d.getMetrics)
	router.GET("/metrics/prometheus", d.getPrometheusMetrics)

	router.GET(d.Cfg.ServePath, d.Listener.ServeBridge)

	if d.Control != nil {
		d.Control.Register(router, d.controlPlaneMiddleware()...)
	}

	return router
}

// controlPlaneMiddleware returns the Redis-backed rate limiting and
// idempotency guards the teacher applies to its protected API group
// (cmd/server/main.go setupRouter); both are skipped when Redis isn't
// configured rather than failing the request.
func (d Deps) controlPlaneMiddleware() []gin.HandlerFunc {
	if d.RedisClient == nil {
		return nil
	}
	limiter := ratelimit.New(d.RedisClient, controlPlaneRPM, 60)
	return []gin.HandlerFunc{
		middleware.IdempotencyMiddleware(d.RedisClient),
		limiter.Middleware(),
	}
}

func accessLogFormatter(p gin.LogFormatterParams) string {
	return p.TimeStamp.Format(time.RFC3339) + " " + p.Method + " " + p.Path + " " +
		http.StatusText(p.StatusCode) + " " + p.Latency.String() + "\n"
}

func (d Deps) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{"bridge": "healthy", "redis": "unknown"}
	if d.RedisClient != nil {
		if err := d.RedisClient.Ping(ctx).Err(); err != nil {
			services["redis"] = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	for _, v := range services {
		if v == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"status":       services,
		"active_calls": d.Registry.Count(),
	})
}

func (d Deps) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.GetMetrics())
}

func (d Deps) getPrometheusMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(metrics.GetPrometheusMetrics()))
}
