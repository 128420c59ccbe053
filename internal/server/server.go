package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wunderling/tutorledger/internal/clock"
	"github.com/wunderling/tutorledger/internal/config"
	"github.com/wunderling/tutorledger/internal/ledger"
	"github.com/wunderling/tutorledger/internal/migration"
	"github.com/wunderling/tutorledger/internal/observability"
	obsmiddleware "github.com/wunderling/tutorledger/internal/observability/logger"
	obsmetrics "github.com/wunderling/tutorledger/internal/observability/metrics"
	"github.com/wunderling/tutorledger/internal/posting"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	"github.com/wunderling/tutorledger/internal/profile"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	"github.com/wunderling/tutorledger/internal/providers"
	"github.com/wunderling/tutorledger/internal/providers/pdf"
	"github.com/wunderling/tutorledger/internal/ratelimit"
	"github.com/wunderling/tutorledger/internal/scheduler"
	"github.com/wunderling/tutorledger/internal/session"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	"github.com/wunderling/tutorledger/internal/settings"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"github.com/wunderling/tutorledger/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	db.Module,
	migration.Module,
	fx.Provide(provideSnowflake),
	fx.Provide(registerGin),
	ledger.Module,
	session.Module,
	profile.Module,
	settings.Module,
	posting.Module,
	ratelimit.Module,
	providers.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func provideSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	sessionSvc  sessiondomain.Service
	profileSvc  profiledomain.Service
	settingsSvc settingsdomain.Service
	postingSvc  postingdomain.Service
	pdfProvider pdf.Provider
	obsMetrics  *obsmetrics.Metrics
	limiter     *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	SessionSvc  sessiondomain.Service
	ProfileSvc  profiledomain.Service
	SettingsSvc settingsdomain.Service
	PostingSvc  postingdomain.Service
	PDFProvider pdf.Provider
	ObsMetrics  *obsmetrics.Metrics      `optional:"true"`
	Limiter     *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		sessionSvc:  p.SessionSvc,
		profileSvc:  p.ProfileSvc,
		settingsSvc: p.SettingsSvc,
		postingSvc:  p.PostingSvc,
		pdfProvider: p.PDFProvider,
		obsMetrics:  p.ObsMetrics,
		limiter:     p.Limiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ingestion --------
	api.POST("/ingest", s.IngestAuthRequired(), s.IngestSession)

	// -------- Sessions --------
	api.GET("/sessions", s.ListSessions)
	api.GET("/sessions/:id", s.GetSessionByID)
	api.POST("/sessions/:id/approve", s.ApproveSession)
	api.POST("/sessions/:id/reject", s.RejectSession)
	api.POST("/sessions/:id/update", s.UpdateSession)

	// -------- Posting --------
	api.POST("/post-approved", s.PostApproved)
	api.GET("/runs", s.ListRuns)
	api.GET("/runs/:id", s.GetRunByID)
	api.GET("/runs/:id/report.pdf", s.GetRunReport)

	// -------- Profiles --------
	api.GET("/profiles", s.ListProfiles)
	api.POST("/profiles/import", s.ImportProfiles)
	api.POST("/profiles/:id", s.UpdateProfile)

	// -------- Settings --------
	api.GET("/settings", s.GetSettings)
	api.POST("/settings", s.UpdateSettings)
}
