package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shubh-37/social-autoreply/internal/server"
	slackpkg "github.com/shubh-37/social-autoreply/internal/slack"
	"github.com/shubh-37/social-autoreply/internal/trigger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, Slack commands, NATS triggers and the fleet ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.ValidateServe(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := a.db.CreateTables(ctx); err != nil {
				return err
			}

			deps := server.Deps{
				Runner:       a.runner,
				Accounts:     a.accounts,
				Logs:         a.logs,
				Interactions: a.interactions,
				Fleet:        a.scheduler,
				Health:       a.db.Health,
				Logger:       a.logger,
			}

			var commands *slackpkg.CommandHandler
			if a.slack != nil {
				if err := a.slack.Authenticate(ctx); err != nil {
					return err
				}
				commands = slackpkg.NewCommandHandler(a.slack, a.runner, a.accounts, a.logger)
				mentions := slackpkg.NewMessageHandler(a.slack, commands, a.logger)
				deps.Extra = append(deps.Extra, slackpkg.NewServer(commands, mentions, a.cfg.SlackSigningSecret, a.logger))
			}

			if a.cfg.NATSURL != "" {
				nc, err := trigger.Connect(a.cfg.NATSURL, a.logger)
				if err != nil {
					return err
				}
				defer nc.Close()

				sub := trigger.NewSubscriber(nc, a.runner, a.logger, trigger.Options{Subject: a.cfg.NATSSubject})
				if err := sub.Start(ctx); err != nil {
					return err
				}
				defer sub.Stop()
			}

			srv := server.New(deps, server.Config{
				AdminToken:   a.cfg.AdminToken,
				CronSecret:   a.cfg.CronSecret,
				StaleAfter:   a.cfg.StaleAfter,
				LogRetention: a.cfg.LogRetention,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, a.cfg.HTTPAddr)
			})
			g.Go(func() error {
				a.scheduler.Start(gctx)
				return nil
			})

			a.logger.Info("Auto-reply service running")
			err = g.Wait()
			if commands != nil {
				commands.Wait()
			}
			return err
		},
	}
}
