package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/internal/agents"
	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

const (
	DefaultRetainReplied = 100
	DefaultStaleAfter    = 24 * time.Hour
	DefaultRecency       = 24 * time.Hour

	msgNoContent  = "No new content found"
	msgNoEligible = "No eligible content found"
)

// CredentialStore loads accounts and persists refreshed tokens
type CredentialStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Ledger remembers what each account has replied to
type Ledger interface {
	Upsert(ctx context.Context, interaction *models.Interaction) error
	RepliedContentIDs(ctx context.Context, accountID string, contentIDs []string) (map[string]bool, error)
	RecentReplied(ctx context.Context, accountID string, limit, offset int) ([]*models.Interaction, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteStaleUnreplied(ctx context.Context, accountID string, cutoff time.Time) (int64, error)
}

// Generator drafts replies and describes images
type Generator interface {
	GenerateReply(ctx context.Context, req agents.ReplyRequest) (string, error)
	DescribeImages(ctx context.Context, apiKey, model string, urls []string) (string, error)
}

type Deps struct {
	Store     CredentialStore
	Ledger    Ledger
	Sink      LogSink
	Generator Generator
	Clients   map[models.Platform]platform.Client
	Logger    *logrus.Logger
}

type Options struct {
	RetainReplied int
	StaleAfter    time.Duration
	MaxResults    int
	Now           func() time.Time
}

// Runner executes the reply pipeline for one account at a time. It holds no
// per-run state, so one Runner serves concurrent runs for different accounts.
type Runner struct {
	Deps
	opts Options
}

func NewRunner(deps Deps, opts Options) *Runner {
	if opts.RetainReplied <= 0 {
		opts.RetainReplied = DefaultRetainReplied
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Runner{Deps: deps, opts: opts}
}

// session is an account with a usable platform token
type session struct {
	account *models.Account
	client  platform.Client
	token   string
	log     *logrus.Entry
}

// Run finds the best new content for the account, replies to it and records the
// interaction. "Nothing to do" outcomes are results, not errors.
func (r *Runner) Run(ctx context.Context, accountID string) (*models.RunResult, error) {
	s, err := r.open(ctx, accountID, true)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	target, msg, err := r.pick(ctx, s)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}
	if target == nil {
		return r.noAction(s, msg), nil
	}

	reply, err := r.draft(ctx, s, target)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Posting reply to %s", describe(target)))
	done := r.timeStage(s, StagePost)
	replyID, err := s.client.PostReply(ctx, s.token, target.ExternalID, reply)
	done()
	if err != nil {
		return nil, r.fail(ctx, accountID, s, upstreamError(s, StagePost, err))
	}
	metrics.RepliesPosted.WithLabelValues(string(s.account.Platform)).Inc()

	r.record(ctx, s, models.NewInteraction(s.account.ID, target.ExternalID, target.AuthorHandle, reply, replyID, r.opts.Now()))

	r.narrate(ctx, s, models.LogSuccess, fmt.Sprintf("Replied to %s: %q", describe(target), reply))
	metrics.PipelineRuns.WithLabelValues(string(s.account.Platform), "replied").Inc()

	return &models.RunResult{
		Replied:    true,
		RepliedTo:  repliedTo(target),
		PostedText: reply,
		ReplyID:    replyID,
		Message:    "Reply posted",
	}, nil
}

// Preview runs the pipeline up to generation without posting. The draft is stored
// as an unreplied placeholder, which the stale sweep later removes.
func (r *Runner) Preview(ctx context.Context, accountID string) (*models.RunResult, error) {
	s, err := r.open(ctx, accountID, true)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	target, msg, err := r.pick(ctx, s)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}
	if target == nil {
		return r.noAction(s, msg), nil
	}

	reply, err := r.draft(ctx, s, target)
	if err != nil {
		return nil, r.fail(ctx, accountID, s, err)
	}

	placeholder := &models.Interaction{
		AccountID:         s.account.ID,
		ExternalContentID: target.ExternalID,
		AuthorHandle:      target.AuthorHandle,
		OurReplyText:      reply,
		CreatedAt:         r.opts.Now(),
	}
	if err := r.Ledger.Upsert(ctx, placeholder); err != nil {
		s.log.WithError(err).Warn("Failed to store preview draft")
	}

	r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Drafted reply to %s (not posted)", describe(target)))
	metrics.PipelineRuns.WithLabelValues(string(s.account.Platform), "preview").Inc()

	return &models.RunResult{
		Replied:    false,
		RepliedTo:  repliedTo(target),
		PostedText: reply,
		Message:    "Preview generated",
	}, nil
}

// open loads the account, validates it and obtains a usable token. full also
// requires the search and LLM settings a pipeline run needs.
func (r *Runner) open(ctx context.Context, accountID string, full bool) (*session, error) {
	account, err := r.Store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	s := &session{
		account: account,
		log: r.Logger.WithFields(logrus.Fields{
			"account_id": account.ID,
			"platform":   account.Platform,
		}),
	}

	client, ok := r.Clients[account.Platform]
	if !ok {
		return s, &ConfigError{Field: fmt.Sprintf("platform %q is not supported", account.Platform)}
	}
	s.client = client

	done := r.timeStage(s, StageValidate)
	if full {
		err = ValidateAccount(account)
	} else {
		err = ValidateConnection(account)
	}
	done()
	if err != nil {
		return s, err
	}

	r.narrate(ctx, s, models.LogInfo, "Checking access token")
	done = r.timeStage(s, StageRefresh)
	tok, err := client.RefreshTokenIfNeeded(ctx, account.Credentials)
	done()
	if err != nil {
		return s, &AuthError{Platform: account.Platform, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return s, &AuthError{Platform: account.Platform}
	}

	if current := account.Credentials.AccessToken; current == nil || *current != tok.AccessToken {
		if err := r.Store.UpdateTokens(ctx, account.ID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt); err != nil {
			return s, &StageError{Stage: StageRefresh, Err: fmt.Errorf("failed to persist refreshed token: %w", err)}
		}
		account.Credentials.AccessToken = &tok.AccessToken
		if tok.RefreshToken != "" {
			account.Credentials.RefreshToken = &tok.RefreshToken
		}
		account.Credentials.TokenExpiresAt = tok.ExpiresAt
		r.narrate(ctx, s, models.LogInfo, "Access token refreshed")
	}
	s.token = tok.AccessToken
	return s, nil
}

// pick fetches candidates and returns the best eligible one. When there is
// nothing to reply to it returns nil and the reason.
func (r *Runner) pick(ctx context.Context, s *session) (*models.Candidate, string, error) {
	settings := s.account.Settings

	recency := DefaultRecency
	if settings.RecencyHours > 0 {
		recency = time.Duration(settings.RecencyHours) * time.Hour
	}
	params := platform.SearchParams{
		Keywords:      platform.ParseKeywords(settings.Keywords),
		Subreddits:    platform.ParseKeywords(settings.Subreddits),
		ChannelIDs:    platform.ParseKeywords(settings.ChannelIDs),
		Since:         r.opts.Now().Add(-recency),
		MinEngagement: settings.MinEngagement,
		ExcludeMedia:  settings.ExcludeMedia,
		MaxResults:    r.opts.MaxResults,
		APIKey:        s.account.Credentials.APIKey,
		UserID:        s.account.Credentials.PlatformUserID,
	}

	r.narrate(ctx, s, models.LogInfo, "Searching for content")
	done := r.timeStage(s, StageFetch)
	candidates, err := s.client.FetchCandidates(ctx, s.token, params)
	done()
	if err != nil {
		return nil, "", upstreamError(s, StageFetch, err)
	}
	if len(candidates) == 0 {
		r.narrate(ctx, s, models.LogInfo, msgNoContent)
		return nil, msgNoContent, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ExternalID)
	}
	done = r.timeStage(s, StageFilter)
	replied, err := r.Ledger.RepliedContentIDs(ctx, s.account.ID, ids)
	if err != nil {
		done()
		return nil, "", &StageError{Stage: StageFilter, Err: err}
	}

	target := SelectCandidate(candidates, Filter{
		Replied:       replied,
		SelfID:        s.account.Credentials.PlatformUserID,
		SelfHandle:    s.account.Credentials.Username,
		MinEngagement: settings.MinEngagement,
	}, s.account.Platform.HasSecondarySignal())
	done()

	if target == nil {
		r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Found %d items, none eligible", len(candidates)))
		return nil, msgNoEligible, nil
	}
	r.narrate(ctx, s, models.LogInfo, fmt.Sprintf("Selected %s (engagement %d) from %d items", describe(target), target.EngagementScore, len(candidates)))
	return target, "", nil
}

// draft optionally describes the target's images, then generates the reply
func (r *Runner) draft(ctx context.Context, s *session, target *models.Candidate) (string, error) {
	settings := s.account.Settings

	var visual string
	if settings.VisionModel != "" && len(target.MediaRefs) > 0 {
		done := r.timeStage(s, StageVision)
		desc, err := r.Generator.DescribeImages(ctx, settings.LLMAPIKey, settings.VisionModel, target.MediaRefs)
		done()
		if err != nil {
			r.narrate(ctx, s, models.LogWarning, fmt.Sprintf("Image analysis failed, continuing without it: %v", err))
		} else {
			visual = desc
		}
	}

	r.narrate(ctx, s, models.LogInfo, "Generating reply")
	done := r.timeStage(s, StageGenerate)
	reply, err := r.Generator.GenerateReply(ctx, agents.ReplyRequest{
		APIKey:        settings.LLMAPIKey,
		Model:         settings.Model,
		SystemPrompt:  settings.SystemPrompt,
		TargetTitle:   target.Title,
		TargetText:    target.Text,
		TargetAuthor:  target.AuthorHandle,
		ContextLabel:  s.account.Platform.ContextLabel(),
		Style:         settings.Style,
		MaxLength:     s.account.Platform.MaxReplyLength(),
		VisualContext: visual,
	})
	done()
	if err != nil {
		return "", &StageError{Stage: StageGenerate, Err: err}
	}
	return reply, nil
}

// record writes the interaction and prunes the ledger. Nothing here fails the run
// since the reply is already live.
func (r *Runner) record(ctx context.Context, s *session, interaction *models.Interaction) {
	done := r.timeStage(s, StageRecord)
	defer done()

	if err := r.Ledger.Upsert(ctx, interaction); err != nil {
		r.narrate(ctx, s, models.LogWarning, fmt.Sprintf("Reply posted but could not be recorded: %v", err))
		return
	}

	old, err := r.Ledger.RecentReplied(ctx, s.account.ID, 0, r.opts.RetainReplied)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list interactions for pruning")
	} else if len(old) > 0 {
		ids := make([]string, 0, len(old))
		for _, i := range old {
			ids = append(ids, i.ID)
		}
		if _, err := r.Ledger.DeleteByIDs(ctx, ids); err != nil {
			s.log.WithError(err).Warn("Failed to prune interactions")
		}
	}

	if _, err := r.Ledger.DeleteStaleUnreplied(ctx, s.account.ID, r.opts.Now().Add(-r.opts.StaleAfter)); err != nil {
		s.log.WithError(err).Warn("Failed to delete stale drafts")
	}
}

// upstreamError wraps a platform failure. A rejected token means the account has
// to be reconnected, so it becomes an AuthError.
func upstreamError(s *session, stage Stage, err error) error {
	if platform.IsUnauthorized(err) {
		return &AuthError{Platform: s.account.Platform, Err: err}
	}
	return &StageError{Stage: stage, Err: err}
}

func (r *Runner) noAction(s *session, msg string) *models.RunResult {
	metrics.PipelineRuns.WithLabelValues(string(s.account.Platform), "no_action").Inc()
	return &models.RunResult{Replied: false, Message: msg}
}

// fail narrates err to the account log and counts the outcome. The error is
// returned unchanged.
func (r *Runner) fail(ctx context.Context, accountID string, s *session, err error) error {
	outcome := "failed"
	var cfgErr *ConfigError
	var authErr *AuthError
	switch {
	case errors.As(err, &cfgErr):
		outcome = "config_error"
	case errors.As(err, &authErr):
		outcome = "auth_error"
	}

	if s == nil {
		r.Logger.WithError(err).WithField("account_id", accountID).Warn("Pipeline run failed")
		return err
	}
	metrics.PipelineRuns.WithLabelValues(string(s.account.Platform), outcome).Inc()
	r.narrate(ctx, s, models.LogError, err.Error())
	return err
}

// narrate sends a line to the operator log sink and the process log
func (r *Runner) narrate(ctx context.Context, s *session, level models.LogLevel, msg string) {
	switch level {
	case models.LogError:
		s.log.Error(msg)
	case models.LogWarning:
		s.log.Warn(msg)
	default:
		s.log.Info(msg)
	}

	if r.Sink == nil {
		return
	}
	err := r.Sink.Log(ctx, models.LogEntry{
		AccountID: s.account.ID,
		Level:     level,
		Message:   msg,
		CreatedAt: r.opts.Now(),
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to write pipeline log")
	}
}

func (r *Runner) timeStage(s *session, stage Stage) func() {
	start := time.Now()
	return func() {
		metrics.PipelineStageDuration.WithLabelValues(string(s.account.Platform), string(stage)).Observe(time.Since(start).Seconds())
	}
}

func describe(c *models.Candidate) string {
	if c.AuthorHandle != "" {
		return fmt.Sprintf("%s by %s", c.ExternalID, c.AuthorHandle)
	}
	return c.ExternalID
}

func repliedTo(c *models.Candidate) string {
	if c.URL != "" {
		return c.URL
	}
	return c.ExternalID
}
