package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/export"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/importer"
	"github.com/smallbiznis/creatorpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/creatorpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creatorpay/internal/observability/tracing"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/smallbiznis/creatorpay/internal/runlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	importer.Module,
	export.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	rewardSvc  rewarddomain.Service
	policies   *config.RewardPolicyHolder
	history    historydomain.Store
	importer   *importer.Importer
	exporter   *export.Service
	locker     runlock.Locker
	clock      clock.Clock
	lockTTL    time.Duration
	runLimiter *ratelimit.RunSubmissionLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	RewardSvc  rewarddomain.Service
	Policies   *config.RewardPolicyHolder `optional:"true"`
	History    historydomain.Store
	Importer   *importer.Importer
	Exporter   *export.Service
	Locker     runlock.Locker
	Clock      clock.Clock
	RunLimiter *ratelimit.RunSubmissionLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	ttl := time.Duration(p.Cfg.RunLockTTLSecond) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		rewardSvc:  p.RewardSvc,
		policies:   p.Policies,
		history:    p.History,
		importer:   p.Importer,
		exporter:   p.Exporter,
		locker:     p.Locker,
		clock:      p.Clock,
		lockTTL:    ttl,
		runLimiter: p.RunLimiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/policy", s.GetPolicy)

	// -------- Reward runs --------
	runs := api.Group("/reward-runs")
	{
		runs.GET("", s.ListRewardRuns)
		runs.POST("", s.RunSubmissionRateLimit(), s.CreateRewardRun)
		runs.POST("/import", s.RunSubmissionRateLimit(), s.ImportRewardRun)
		runs.GET("/:id", s.GetRewardRun)
		runs.GET("/:id/export", s.ExportRewardRun)
	}

	// -------- History --------
	history := api.Group("/history")
	{
		history.GET("", s.ListHistory)
		history.GET("/export", s.ExportHistory)
		history.POST("/import", s.ImportHistory)
		history.GET("/:key", s.GetHistoryEntry)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) GetPolicy(c *gin.Context) {
	source := "defaults"
	if s.policies != nil {
		source = s.policies.Source()
	}
	c.JSON(http.StatusOK, gin.H{
		"data":   s.rewardSvc.Policy(),
		"source": source,
	})
}
