package api

import (
	"rollcall/internal/metrics"
	"rollcall/internal/middleware"
	"rollcall/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Handlers struct {
	Attendance *AttendanceHandler
	Pending    *PendingHandler
	Sync       *SyncHandler
	Stream     *StreamHandler
}

type RouterOptions struct {
	Issuer            *service.TokenIssuer
	DevPass           bool
	Redis             *redis.Client
	RequestsPerSecond int
	SyncPerSecond     int
}

func RegisterRoutes(h Handlers, opts RouterOptions) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)
	// group keys carry free-text session types that may contain a slash
	r.UseRawPath = true

	// Public Routes
	r.GET("/health", h.Sync.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(opts.Issuer, opts.DevPass))

	// Rate limiters per caller; a sync run is far heavier than a save
	writeLimiter := middleware.RateLimitMiddleware(opts.Redis, "write", opts.RequestsPerSecond)
	syncLimiter := middleware.RateLimitMiddleware(opts.Redis, "sync", opts.SyncPerSecond)

	{
		protected.POST("/attendance", writeLimiter, h.Attendance.Save)
		protected.GET("/classes/:id/attendance", h.Attendance.ClassAttendance)

		protected.GET("/pending", h.Pending.List)
		protected.DELETE("/pending/:id", writeLimiter, h.Pending.Delete)
		protected.DELETE("/pending/groups/:key", writeLimiter, h.Pending.DeleteGroup)
		protected.POST("/pending/dedupe", writeLimiter, h.Pending.Dedupe)

		protected.POST("/sync", syncLimiter, h.Sync.SyncNow)
		protected.POST("/sync/retry-all", syncLimiter, h.Sync.RetryAll)

		protected.GET("/network", h.Sync.GetNetwork)
		protected.PUT("/network", h.Sync.SetNetwork)

		protected.GET("/stream", h.Stream.Watch)
	}
	return r
}
