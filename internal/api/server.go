// Package api exposes prediction over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/batch"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/cache"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/middleware"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/security"
)

// Version is reported by /health.
const Version = "1.0.0"

// Options configures the HTTP surface.
type Options struct {
	CORSOrigin     string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	HSTS           bool
	// ModelPath is reloaded by POST /model/reload. Empty disables reloads.
	ModelPath string
	// AdminSecret signs the bearer tokens that authorize model reloads.
	// Empty rejects every reload.
	AdminSecret string
}

// Deps are the collaborators the handlers call. Combiner, Batch, Metrics,
// Prom and Logger are required; the rest may be nil.
type Deps struct {
	Combiner    *hybrid.Combiner
	Batch       *batch.Runner
	Tracker     *resilience.DegradationTracker
	Breakers    *resilience.Registry
	Cache       *cache.Cache
	Limiter     *ratelimit.Limiter
	Compression *middleware.Compression
	Metrics     *monitoring.Metrics
	Prom        *monitoring.Prometheus
	Logger      *monitoring.Logger
}

type Server struct {
	opts   Options
	deps   Deps
	router *gin.Engine
	now    func() time.Time

	reloadMu sync.Mutex
}

func NewServer(opts Options, deps Deps) *Server {
	s := &Server{opts: opts, deps: deps, now: time.Now}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	r.Use(requestID())
	r.Use(monitoring.MonitoringMiddleware(s.deps.Metrics, s.deps.Prom, s.deps.Logger))
	if s.deps.Compression != nil {
		r.Use(s.deps.Compression.Handler())
	}
	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(cors.New(corsConfig(s.opts.CORSOrigin)))
	r.Use(security.Headers(s.opts.HSTS))
	if s.opts.RequestTimeout > 0 {
		r.Use(security.RequestTimeout(s.opts.RequestTimeout))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.deps.Prom.Handler()))
	r.GET("/metrics/stats", s.handleStats)
	r.GET("/model", s.handleModel)
	r.GET("/timing/windows", s.handleTimingWindows)
	r.GET("/swagger/*any", security.DocsPolicy(), ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	limited := r.Group("/")
	if s.deps.Limiter != nil {
		limited.Use(s.deps.Limiter.Middleware())
	}
	limited.Use(security.RequireJSON())
	if s.opts.MaxBodyBytes > 0 {
		limited.Use(security.BodyLimit(s.opts.MaxBodyBytes))
	}

	predict := []gin.HandlerFunc{s.handlePredict}
	if s.deps.Cache != nil {
		predict = append([]gin.HandlerFunc{s.deps.Cache.Middleware(s.cacheScope, s.deps.Metrics, s.deps.Prom)}, predict...)
	}
	limited.POST("/predict", predict...)
	limited.POST("/predict/batch", s.handleBatch)
	limited.POST("/model/reload", security.RequireBearer([]byte(s.opts.AdminSecret), security.ScopeModelReload), s.handleReload)

	return r
}

func corsConfig(origin string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range strings.Split(origin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	return cfg
}

// requestID propagates or assigns X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set("X-Request-ID", id)
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// modelVersion identifies the serving snapshot, or rule-based mode.
func (s *Server) modelVersion() string {
	snap := s.deps.Combiner.Model()
	if snap == nil {
		return string(analysis.MethodRuleBased)
	}
	return snap.Architecture().String() + "/" + snap.RunID()
}

// cacheScope keys cached predictions to the serving snapshot. A post without
// current_time is aged against the server clock, so its key also carries the
// minute it arrived in.
func (s *Server) cacheScope(body []byte) string {
	scope := s.modelVersion()
	var stamped struct {
		CurrentTime *time.Time `json:"current_time"`
	}
	if err := json.Unmarshal(body, &stamped); err != nil || stamped.CurrentTime == nil || stamped.CurrentTime.IsZero() {
		scope += "@" + s.now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	}
	return scope
}
