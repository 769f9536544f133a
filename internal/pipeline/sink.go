package pipeline

import (
	"context"
	"errors"

	"github.com/shubh-37/social-autoreply/internal/models"
)

// LogSink receives operator-facing narration of each run
type LogSink interface {
	Log(ctx context.Context, entry models.LogEntry) error
}

// MultiSink fans an entry out to every sink, returning their joined errors
type MultiSink []LogSink

func (m MultiSink) Log(ctx context.Context, entry models.LogEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
