package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/internal/agents"
	"github.com/shubh-37/social-autoreply/internal/models"
)

const (
	DefaultLogRetention = 30 * 24 * time.Hour
	shutdownTimeout     = 10 * time.Second
)

type PipelineRunner interface {
	Run(ctx context.Context, accountID string) (*models.RunResult, error)
	Preview(ctx context.Context, accountID string) (*models.RunResult, error)
}

type AutomationStore interface {
	SetAutomation(ctx context.Context, id string, enabled bool) error
}

type LogStore interface {
	Recent(ctx context.Context, accountID string, limit int) ([]*models.LogEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type InteractionStore interface {
	RecentReplied(ctx context.Context, accountID string, limit, offset int) ([]*models.Interaction, error)
	DeleteStaleUnreplied(ctx context.Context, accountID string, cutoff time.Time) (int64, error)
}

type FleetRunner interface {
	RunAll(ctx context.Context) (*agents.Summary, error)
}

// RouteRegistrar mounts extra routes, e.g. the Slack endpoints
type RouteRegistrar interface {
	Register(r gin.IRoutes)
}

type Deps struct {
	Runner       PipelineRunner
	Accounts     AutomationStore
	Logs         LogStore
	Interactions InteractionStore
	Fleet        FleetRunner
	Health       func(ctx context.Context) error
	Extra        []RouteRegistrar
	Logger       *logrus.Logger
}

type Config struct {
	AdminToken   string
	CronSecret   string
	StaleAfter   time.Duration
	LogRetention time.Duration
	Now          func() time.Time
}

type Server struct {
	deps   Deps
	cfg    Config
	router *gin.Engine
}

func New(deps Deps, cfg Config) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = DefaultLogRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{deps: deps, cfg: cfg}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.deps.Logger))

	router.GET("/healthz", s.healthCheck)
	promHandler := promhttp.Handler()
	router.GET("/metrics", func(c *gin.Context) {
		promHandler.ServeHTTP(c.Writer, c.Request)
	})

	accounts := router.Group("/api/accounts/:id")
	accounts.Use(requireCaller(s.cfg.CronSecret, s.cfg.AdminToken, true, true))
	{
		accounts.POST("/run", s.runAccount)
		accounts.POST("/preview", s.previewAccount)
		accounts.POST("/automation", s.setAutomation)
		accounts.GET("/logs", s.accountLogs)
		accounts.GET("/interactions", s.accountInteractions)
	}

	cron := router.Group("/api/cron")
	cron.Use(requireCaller(s.cfg.CronSecret, s.cfg.AdminToken, true, false))
	{
		cron.POST("/run-all", s.runAll)
		cron.POST("/cleanup", s.cleanup)
	}

	for _, r := range s.deps.Extra {
		r.Register(router)
	}

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", addr).Info("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve HTTP API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API: %w", err)
	}
	return nil
}
