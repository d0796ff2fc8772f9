package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/studyquota/internal/ai"
	authdomain "github.com/smallbiznis/studyquota/internal/auth/domain"
	"github.com/smallbiznis/studyquota/internal/auth/session"
	"github.com/smallbiznis/studyquota/internal/authorization"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/observability"
	obsmiddleware "github.com/smallbiznis/studyquota/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/studyquota/internal/observability/metrics"
	obstracing "github.com/smallbiznis/studyquota/internal/observability/tracing"
	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.TracingMiddleware()))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	quotaSvc  quotadomain.Service
	verifier  authdomain.Verifier
	sessions  *session.Manager
	authzSvc  authorization.Service
	generator ai.Generator
	limiter   *ratelimit.Limiter
	clock     clock.Clock
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	QuotaSvc  quotadomain.Service
	Verifier  authdomain.Verifier
	Sessions  *session.Manager
	AuthzSvc  authorization.Service
	Generator ai.Generator
	Limiter   *ratelimit.Limiter `optional:"true"`
	Clock     clock.Clock
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.handler"),
		quotaSvc:  p.QuotaSvc,
		verifier:  p.Verifier,
		sessions:  p.Sessions,
		authzSvc:  p.AuthzSvc,
		generator: p.Generator,
		limiter:   p.Limiter,
		clock:     p.Clock,
	}

	svc.registerUsageRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUsageRoutes() {
	usage := s.engine.Group("/usage", s.AuthRequired())
	usage.GET("", s.GetUsage)
	usage.POST("", s.ConsumeUsage)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.GET("/usage", s.GetUsage)
	api.POST("/usage", s.ConsumeUsage)

	generate := api.Group("", s.RateLimited())
	generate.POST("/chat", s.Chat)
	generate.POST("/summarizer", s.Summarize)
	generate.POST("/roadmap", s.Roadmap)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.GET("/limits", s.authorizeAction(authorization.ObjectLimits, authorization.ActionLimitsView), s.ListLimits)
	admin.GET("/users/:id/usage", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUserUsage)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
