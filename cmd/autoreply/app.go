package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/config"
	"github.com/shubh-37/social-autoreply/internal/agents"
	"github.com/shubh-37/social-autoreply/internal/database"
	"github.com/shubh-37/social-autoreply/internal/logging"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/pipeline"
	"github.com/shubh-37/social-autoreply/internal/platform"
	"github.com/shubh-37/social-autoreply/internal/platform/instagram"
	"github.com/shubh-37/social-autoreply/internal/platform/reddit"
	"github.com/shubh-37/social-autoreply/internal/platform/twitter"
	"github.com/shubh-37/social-autoreply/internal/platform/youtube"
	"github.com/shubh-37/social-autoreply/internal/ratelimit"
	slackpkg "github.com/shubh-37/social-autoreply/internal/slack"
)

// app holds the wired dependencies shared by every command
type app struct {
	cfg    *config.Config
	logger *logrus.Logger

	db           *database.DB
	accounts     *database.AccountRepository
	interactions *database.InteractionRepository
	logs         *database.LogRepository

	slack     *slackpkg.Client
	runner    *pipeline.Runner
	scheduler *agents.SchedulerAgent
}

func newApp(ctx context.Context) (*app, error) {
	logger := logging.NewLoggerWithService("autoreply")
	cfg := config.LoadConfig(logger)
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	limits, err := config.LoadRateLimits(cfg.RateLimitsFile)
	if err != nil {
		return nil, err
	}
	registry := ratelimit.NewRegistry(limits)

	db, err := database.NewDB(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		accounts:     database.NewAccountRepository(db),
		interactions: database.NewInteractionRepository(db),
		logs:         database.NewLogRepository(db),
	}

	sink := pipeline.MultiSink{a.logs}
	if cfg.SlackToken != "" {
		a.slack = slackpkg.NewClient(cfg.SlackToken, logger)
		if cfg.SlackChannel != "" {
			sink = append(sink, slackpkg.NewNotifier(a.slack, cfg.SlackChannel))
		}
	}

	clientCfg := func(key string) platform.Config {
		return platform.Config{Limiter: registry.For(key)}
	}
	a.runner = pipeline.NewRunner(pipeline.Deps{
		Store:  a.accounts,
		Ledger: a.interactions,
		Sink:   sink,
		Generator: agents.NewReplyGeneratorAgent(agents.LLMConfig{
			BaseURL: cfg.LLMBaseURL,
			Limiter: registry.For(ratelimit.KeyLLM),
			Timeout: cfg.LLMTimeout,
		}),
		Clients: map[models.Platform]platform.Client{
			models.PlatformTwitter:   twitter.NewClient(clientCfg(ratelimit.KeyTwitter)),
			models.PlatformYouTube:   youtube.NewClient(clientCfg(ratelimit.KeyYouTube)),
			models.PlatformInstagram: instagram.NewClient(clientCfg(ratelimit.KeyInstagram)),
			models.PlatformReddit:    reddit.NewClient(clientCfg(ratelimit.KeyReddit)),
		},
		Logger: logger,
	}, pipeline.Options{
		RetainReplied: cfg.RetainReplied,
		StaleAfter:    cfg.StaleAfter,
		MaxResults:    cfg.MaxResults,
	})

	a.scheduler = agents.NewSchedulerAgent(a.accounts, a.runner, agents.ScheduleConfig{
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Interval:     cfg.FleetInterval,
	}, logger)

	return a, nil
}

func (a *app) Close() {
	a.db.Close()
}
