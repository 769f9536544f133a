package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/shubh-37/social-autoreply/internal/models"
)

const (
	DefaultSubject     = "autoreply.run"
	DefaultQueue       = "autoreply-workers"
	DefaultMaxInFlight = 4
	defaultRunTimeout  = 5 * time.Minute
)

// RunRequest asks a worker to run the pipeline for one account
type RunRequest struct {
	AccountID string `json:"accountId"`
	RequestID string `json:"requestId"`
}

// RunReply is sent back when the request carried a reply subject
type RunReply struct {
	AccountID string            `json:"accountId"`
	RequestID string            `json:"requestId"`
	Result    *models.RunResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, accountID string) (*models.RunResult, error)
}

type Options struct {
	Subject     string
	Queue       string
	MaxInFlight int64
	RunTimeout  time.Duration
}

// Subscriber runs the pipeline for every request published on the run
// subject. Workers join a queue group so each request is handled once.
type Subscriber struct {
	conn   *nats.Conn
	runner Runner
	logger *logrus.Logger
	opts   Options

	sem    *semaphore.Weighted
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect dials NATS with reconnect handling logged through logger
func Connect(url string, logger *logrus.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("autoreply"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func NewSubscriber(conn *nats.Conn, runner Runner, logger *logrus.Logger, opts Options) *Subscriber {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Subscriber{
		conn:   conn,
		runner: runner,
		logger: logger,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxInFlight),
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	sub, err := s.conn.QueueSubscribe(s.opts.Subject, s.opts.Queue, func(msg *nats.Msg) {
		s.handleMsg(workerCtx, msg)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", s.opts.Subject, err)
	}
	s.sub = sub

	s.logger.WithFields(logrus.Fields{
		"subject": s.opts.Subject,
		"queue":   s.opts.Queue,
	}).Info("Subscribed to run requests")
	return nil
}

// Stop drains the subscription and waits for in-flight runs
func (s *Subscriber) Stop() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.WithError(err).Warn("Failed to drain NATS subscription")
		}
	}
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}

// handleMsg bounds concurrent runs. NATS delivers one subscription's messages
// serially, so each run continues on its own goroutine once admitted.
func (s *Subscriber) handleMsg(ctx context.Context, msg *nats.Msg) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		reply := s.process(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal run reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.WithError(err).WithField("account_id", reply.AccountID).Warn("Failed to respond to run request")
		}
	}()
}

func (s *Subscriber) process(ctx context.Context, data []byte) RunReply {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.WithError(err).Warn("Failed to unmarshal run request")
		return RunReply{Error: "invalid run request"}
	}
	if req.AccountID == "" {
		return RunReply{RequestID: req.RequestID, Error: "accountId is required"}
	}

	log := s.logger.WithFields(logrus.Fields{
		"account_id": req.AccountID,
		"request_id": req.RequestID,
	})
	log.Info("Processing run request")

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	reply := RunReply{AccountID: req.AccountID, RequestID: req.RequestID}
	result, err := s.runner.Run(runCtx, req.AccountID)
	if err != nil {
		log.WithError(err).Warn("Run request failed")
		reply.Error = err.Error()
		return reply
	}
	reply.Result = result
	log.WithField("replied", result.Replied).Info("Completed run request")
	return reply
}

// RequestRun publishes a run request and waits for the worker's reply
func RequestRun(ctx context.Context, conn *nats.Conn, subject, accountID string) (*RunReply, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	data, err := json.Marshal(RunRequest{AccountID: accountID, RequestID: uuid.NewString()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no workers subscribed to %s: %w", subject, err)
		}
		return nil, fmt.Errorf("failed to request run: %w", err)
	}

	var reply RunReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode run reply: %w", err)
	}
	return &reply, nil
}
