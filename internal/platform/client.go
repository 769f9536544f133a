package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/ratelimit"
)

// UnknownReplyID is returned when a post succeeded but the new id could not be located.
const UnknownReplyID = "unknown"

// RefreshSkew is how far ahead of expiry a token is refreshed.
const RefreshSkew = 5 * time.Minute

// DefaultTimeout bounds every outbound platform call.
const DefaultTimeout = 15 * time.Second

// DeletedAuthor is the author handle platforms report for removed accounts.
const DeletedAuthor = "[deleted]"

// Token is the result of a token refresh
type Token struct {
	AccessToken  string
	RefreshToken string // set only when the platform rotated it
	ExpiresAt    *time.Time
}

// SearchParams narrow what FetchCandidates returns
type SearchParams struct {
	Keywords      []string
	Subreddits    []string
	ChannelIDs    []string
	Since         time.Time
	MinEngagement int
	ExcludeMedia  bool
	MaxResults    int
	APIKey        string
	UserID        string
}

// Client is the surface the pipeline needs from a social platform
type Client interface {
	Platform() models.Platform
	RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*Token, error)
	FetchCandidates(ctx context.Context, accessToken string, params SearchParams) ([]models.Candidate, error)
	PostReply(ctx context.Context, accessToken, targetID, text string) (string, error)
}

// CommentReplier is implemented by platforms where answering a comment is a
// different call from commenting on a post. Replies nest one level deep only, so
// commentID must be a top-level comment.
type CommentReplier interface {
	ReplyToComment(ctx context.Context, accessToken, commentID, text string) (string, error)
}

// Config is shared by every platform client constructor.
// Empty URLs fall back to the platform's production endpoints.
type Config struct {
	Limiter    *ratelimit.Limiter
	HTTPClient *http.Client
	BaseURL    string
	TokenURL   string
	Timeout    time.Duration
	UserAgent  string
	Now        func() time.Time
}

// WithDefaults fills unset fields
func (c Config) WithDefaults(baseURL, tokenURL string) Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = tokenURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = "social-autoreply/1.0"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
