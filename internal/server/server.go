// Package server wires the HTTP surface over the capture pipeline, the
// quota guard, and the enrichment controller.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/halfnote/halfnote/internal/cache"
	"github.com/halfnote/halfnote/internal/config"
	"github.com/halfnote/halfnote/internal/enrichment"
	"github.com/halfnote/halfnote/internal/observability/logger"
	"github.com/halfnote/halfnote/internal/observability/metrics"
	pipelinedomain "github.com/halfnote/halfnote/internal/pipeline/domain"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServerParam struct {
	fx.In

	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	PipelineSvc   pipelinedomain.Service
	QuotaSvc      quotadomain.Service
	EnrichmentSvc *enrichment.Service
	KeyCache      cache.Cache[string, string]
	HTTPMetrics   *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	pipelineSvc   pipelinedomain.Service
	quotaSvc      quotadomain.Service
	enrichmentSvc *enrichment.Service
	keyCache      cache.Cache[string, string]
	httpMetrics   *metrics.HTTPMetrics
	limiter       *rateLimiter
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		pipelineSvc:   p.PipelineSvc,
		quotaSvc:      p.QuotaSvc,
		enrichmentSvc: p.EnrichmentSvc,
		keyCache:      p.KeyCache,
		httpMetrics:   p.HTTPMetrics,
		limiter:       newRateLimiter(p.Cfg.CaptureRateLimit, p.Cfg.CaptureRateWindow),
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{}))
	if s.httpMetrics != nil {
		r.Use(metrics.GinMiddleware(s.httpMetrics))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	capture := r.Group("/capture")
	capture.Use(cors.Default())
	capture.POST("", s.RateLimitByIP(), s.Capture)
	capture.POST("/device", s.DeviceKeyRequired(), s.DeviceCapture)

	admin := r.Group("/enrichment", s.AdminRequired())
	admin.POST("/backfill", s.Backfill)
	admin.POST("/requeue", s.Requeue)
	admin.DELETE("/media/:memoId", s.DeleteMediaItem)

	return r
}

// RateLimitByIP guards the unauthenticated capture route.
func (s *Server) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func runServer(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(cache.NewDeviceKeyCache),
	fx.Provide(NewServer),
	fx.Invoke(runServer),
)
