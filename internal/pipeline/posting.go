package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

// PostFunc publishes text as a reply to targetID ("" for a standalone post) and
// returns the new post's id.
type PostFunc func(ctx context.Context, targetID, text string) (string, error)

// BatchItem is one independent reply in a batch
type BatchItem struct {
	TargetID string `json:"targetId"`
	Text     string `json:"text"`
}

// BatchItemResult reports what happened to one batch item
type BatchItemResult struct {
	TargetID string `json:"targetId"`
	ReplyID  string `json:"replyId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult aggregates a batch
type BatchResult struct {
	Posted  int               `json:"posted"`
	Failed  int               `json:"failed"`
	Results []BatchItemResult `json:"results"`
}

// PostThread posts texts as a chain, each replying to the previous one, starting
// from rootID. Posts are strictly sequential with delay between them, and the
// thread stops at the first failure. The ids posted so far are always returned.
func PostThread(ctx context.Context, post PostFunc, rootID string, texts []string, delay time.Duration) ([]string, error) {
	ids := make([]string, 0, len(texts))
	parent := rootID
	for i, text := range texts {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return ids, err
			}
		}

		id, err := post(ctx, parent, text)
		if err != nil {
			return ids, fmt.Errorf("thread post %d of %d: %w", i+1, len(texts), err)
		}
		ids = append(ids, id)

		if id == platform.UnknownReplyID && i < len(texts)-1 {
			return ids, fmt.Errorf("thread post %d of %d: posted but its id is unknown, cannot continue the chain", i+1, len(texts))
		}
		parent = id
	}
	return ids, nil
}

// PostBatch posts independent replies one after another with delay between them.
// A failed item does not stop the batch.
func PostBatch(ctx context.Context, post PostFunc, items []BatchItem, delay time.Duration) BatchResult {
	result := BatchResult{Results: make([]BatchItemResult, 0, len(items))}
	for i, item := range items {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				for _, rest := range items[i:] {
					result.Failed++
					result.Results = append(result.Results, BatchItemResult{TargetID: rest.TargetID, Error: err.Error()})
				}
				return result
			}
		}

		id, err := post(ctx, item.TargetID, item.Text)
		if err != nil {
			result.Failed++
			result.Results = append(result.Results, BatchItemResult{TargetID: item.TargetID, Error: err.Error()})
			continue
		}
		result.Posted++
		result.Results = append(result.Results, BatchItemResult{TargetID: item.TargetID, ReplyID: id})
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PostThread publishes a thread from the account. With a non-empty replyTo the
// thread hangs off that content and the interaction is recorded against it.
func (r *Runner) PostThread(ctx context.Context, accountID, replyTo string, texts []string, delay time.Duration) ([]string, error) {
	if len(texts) == 0 {
		return nil, &ConfigError{Field: "thread text"}
	}
	s, err := r.open(ctx, accountID, false)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}
	if replyTo == "" && s.account.Platform != models.PlatformTwitter {
		return nil, r.fail(ctx, accountID, s, &ConfigError{Field: "reply target (standalone threads are only supported on twitter)"})
	}
	if replyTo != "" {
		replied, err := r.alreadyReplied(ctx, s, []string{replyTo})
		if err != nil {
			return nil, r.fail(ctx, accountID, s, err)
		}
		if replied[replyTo] {
			return nil, r.fail(ctx, accountID, s, fmt.Errorf("%s: %w", replyTo, ErrAlreadyReplied))
		}
	}

	r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Posting thread of %d", len(texts)))
	ids, err := PostThread(ctx, r.threadPostFunc(s), replyTo, texts, delay)
	if len(ids) > 0 && replyTo != "" {
		r.record(ctx, s, models.NewInteraction(s.account.ID, replyTo, "", texts[0], ids[0], r.opts.Now()))
	}
	if err != nil {
		return ids, r.fail(ctx, accountID, s, upstreamError(s, StagePost, err))
	}

	r.narrate(ctx, s, models.LogSuccess, fmt.Sprintf("Posted thread of %d", len(ids)))
	return ids, nil
}

// ReplyBatch replies to several targets in sequence and records each success
func (r *Runner) ReplyBatch(ctx context.Context, accountID string, items []BatchItem, delay time.Duration) (*BatchResult, error) {
	s, err := r.open(ctx, accountID, false)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	targets := make([]string, 0, len(items))
	for _, it := range items {
		targets = append(targets, it.TargetID)
	}
	replied, err := r.alreadyReplied(ctx, s, targets)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Posting %d replies", len(items)))
	post := r.postFunc(s)
	result := PostBatch(ctx, func(ctx context.Context, targetID, text string) (string, error) {
		if replied[targetID] {
			return "", ErrAlreadyReplied
		}
		id, err := post(ctx, targetID, text)
		if err == nil {
			replied[targetID] = true
			r.record(ctx, s, models.NewInteraction(s.account.ID, targetID, "", text, id, r.opts.Now()))
		}
		return id, err
	}, items, delay)

	level := models.LogSuccess
	if result.Failed > 0 {
		level = models.LogWarning
	}
	r.narrate(ctx, s, level, fmt.Sprintf("Batch finished: %d posted, %d failed", result.Posted, result.Failed))
	return &result, nil
}

// alreadyReplied reports which of targets the account already replied to. The result
// is never nil.
func (r *Runner) alreadyReplied(ctx context.Context, s *session, targets []string) (map[string]bool, error) {
	done := r.timeStage(s, StageFilter)
	defer done()

	replied, err := r.Ledger.RepliedContentIDs(ctx, s.account.ID, targets)
	if err != nil {
		return nil, &StageError{Stage: StageFilter, Err: err}
	}
	if replied == nil {
		replied = map[string]bool{}
	}
	return replied, nil
}

func (r *Runner) postFunc(s *session) PostFunc {
	return r.guardPost(s, func(ctx context.Context, targetID, text string) (string, error) {
		return s.client.PostReply(ctx, s.token, targetID, text)
	})
}

// threadPostFunc chains thread posts. On platforms with single-level comment
// replies every post after the first answers the first comment.
func (r *Runner) threadPostFunc(s *session) PostFunc {
	replier, ok := s.client.(platform.CommentReplier)
	if !ok {
		return r.postFunc(s)
	}
	return CommentThread(r.postFunc(s), r.guardPost(s, func(ctx context.Context, commentID, text string) (string, error) {
		return replier.ReplyToComment(ctx, s.token, commentID, text)
	}))
}

// CommentThread posts the first text with first and answers the resulting comment
// with reply for the rest, whatever parent the caller passes.
func CommentThread(first, reply PostFunc) PostFunc {
	var root string
	return func(ctx context.Context, targetID, text string) (string, error) {
		if root == "" {
			id, err := first(ctx, targetID, text)
			if err == nil {
				root = id
			}
			return id, err
		}
		return reply(ctx, root, text)
	}
}

func (r *Runner) guardPost(s *session, send PostFunc) PostFunc {
	return func(ctx context.Context, targetID, text string) (string, error) {
		done := r.timeStage(s, StagePost)
		defer done()

		if limit := s.account.Platform.MaxReplyLength(); len([]rune(text)) > limit {
			return "", fmt.Errorf("text is %d characters, %s allows %d", len([]rune(text)), s.account.Platform, limit)
		}
		id, err := send(ctx, targetID, text)
		if err == nil {
			metrics.RepliesPosted.WithLabelValues(string(s.account.Platform)).Inc()
		}
		return id, err
	}
}
