package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/models"
)

// AccountLister returns the accounts that opted into automation
type AccountLister interface {
	ListAutomated(ctx context.Context) ([]*models.Account, error)
}

// AccountRunner runs the pipeline for one account
type AccountRunner interface {
	Run(ctx context.Context, accountID string) (*models.RunResult, error)
}

type SchedulerAgent struct {
	accounts AccountLister
	runner   AccountRunner
	config   ScheduleConfig
	logger   *logrus.Logger
}

type ScheduleConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	Interval     time.Duration
}

// Summary counts the outcomes of one fleet run
type Summary struct {
	Total    int           `json:"total"`
	Replied  int           `json:"replied"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	TimedOut int           `json:"timedOut"`
	Duration time.Duration `json:"duration"`
}

type runOutcome struct {
	accountID string
	result    *models.RunResult
	err       error
}

func NewSchedulerAgent(accounts AccountLister, runner AccountRunner, config ScheduleConfig, logger *logrus.Logger) *SchedulerAgent {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 5 * time.Minute
	}
	return &SchedulerAgent{
		accounts: accounts,
		runner:   runner,
		config:   config,
		logger:   logger,
	}
}

// RunAll runs every automated account, BatchSize at a time. Each batch is awaited as
// a whole; when BatchTimeout passes the scheduler stops waiting and moves on while the
// stragglers finish on their own.
func (s *SchedulerAgent) RunAll(ctx context.Context) (*Summary, error) {
	started := time.Now()

	accounts, err := s.accounts.ListAutomated(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list automated accounts: %w", err)
	}

	summary := &Summary{Total: len(accounts)}
	for start := 0; start < len(accounts); start += s.config.BatchSize {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(started)
			return summary, err
		}

		end := start + s.config.BatchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		s.runBatch(ctx, accounts[start:end], summary)
	}

	summary.Duration = time.Since(started)
	s.logger.WithFields(logrus.Fields{
		"total":     summary.Total,
		"replied":   summary.Replied,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"timed_out": summary.TimedOut,
		"duration":  summary.Duration.String(),
	}).Info("Fleet run finished")
	return summary, nil
}

func (s *SchedulerAgent) runBatch(ctx context.Context, batch []*models.Account, summary *Summary) {
	outcomes := make(chan runOutcome, len(batch))

	var g errgroup.Group
	for _, account := range batch {
		accountID := account.ID
		g.Go(func() error {
			result, err := s.runner.Run(ctx, accountID)
			outcomes <- runOutcome{accountID: accountID, result: result, err: err}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.config.BatchTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		metrics.FleetBatchTimeouts.Inc()
		s.logger.WithField("batch_size", len(batch)).Warn("Batch timed out, not waiting for remaining runs")
	case <-ctx.Done():
	}

	received := 0
	for {
		select {
		case o := <-outcomes:
			received++
			s.record(o, summary)
			continue
		default:
		}
		break
	}
	summary.TimedOut += len(batch) - received
}

func (s *SchedulerAgent) record(o runOutcome, summary *Summary) {
	log := s.logger.WithField("account_id", o.accountID)
	switch {
	case o.err != nil:
		summary.Failed++
		log.WithError(o.err).Warn("Pipeline run failed")
	case o.result != nil && o.result.Replied:
		summary.Replied++
		log.WithField("replied_to", o.result.RepliedTo).Info("Pipeline run replied")
	default:
		summary.Skipped++
		if o.result != nil {
			log.WithField("message", o.result.Message).Debug("Pipeline run took no action")
		}
	}
}

// Start runs the fleet every Interval until ctx is cancelled
func (s *SchedulerAgent) Start(ctx context.Context) {
	if s.config.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.config.Interval.String()).Info("Fleet scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Fleet scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunAll(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Fleet run failed")
			}
		}
	}
}
