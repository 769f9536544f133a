package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	defaultLimit = 25
)

// Client talks to the Reddit OAuth API
type Client struct {
	req *platform.Requester
	cfg platform.Config
}

// NewClient creates a Reddit client
func NewClient(cfg platform.Config) *Client {
	cfg = cfg.WithDefaults(DefaultBaseURL, DefaultTokenURL)
	return &Client{
		req: platform.NewRequester(string(models.PlatformReddit), cfg),
		cfg: cfg,
	}
}

var _ platform.Client = (*Client)(nil)

func (c *Client) Platform() models.Platform {
	return models.PlatformReddit
}

func (c *Client) RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*platform.Token, error) {
	switch platform.EvaluateToken(creds, c.cfg.Now()) {
	case platform.TokenMissing:
		return nil, nil
	case platform.TokenFresh:
		return platform.ExistingToken(creds), nil
	}
	return c.req.RefreshOAuth2(ctx, creds, platform.ClientAuthBasic)
}

// SearchPath returns the listing path for the configured subreddits, or the
// site-wide search when none are set.
func SearchPath(subreddits []string) string {
	names := make([]string, 0, len(subreddits))
	for _, s := range subreddits {
		s = strings.TrimPrefix(strings.TrimSpace(s), "r/")
		if s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return "/search"
	}
	return "/r/" + strings.Join(names, "+") + "/search"
}

// FetchCandidates searches hot posts from the last day
func (c *Client) FetchCandidates(ctx context.Context, accessToken string, params platform.SearchParams) ([]models.Candidate, error) {
	candidates := []models.Candidate{}
	if len(params.Keywords) == 0 {
		return candidates, nil
	}

	limit := params.MaxResults
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}

	path := SearchPath(params.Subreddits)
	q := url.Values{}
	q.Set("q", "("+platform.JoinOr(params.Keywords)+")")
	q.Set("sort", "hot")
	q.Set("t", "day")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if path != "/search" {
		q.Set("restrict_sr", "on")
	}

	var resp listing
	if err := c.req.GetJSON(ctx, "search", c.cfg.BaseURL+path+"?"+q.Encode(), accessToken, &resp); err != nil {
		if platform.IsUnavailable(err) {
			return candidates, nil
		}
		return nil, err
	}

	for _, child := range resp.Data.Children {
		p := child.Data
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		if p.Stickied || p.Over18 || p.Locked {
			continue
		}
		if params.ExcludeMedia && p.IsVideo {
			continue
		}
		created := time.Unix(int64(p.CreatedUTC), 0).UTC()
		if !params.Since.IsZero() && created.Before(params.Since) {
			continue
		}
		candidates = append(candidates, toCandidate(p, created))
	}
	return candidates, nil
}

// PostReply comments on a post or comment identified by its fullname (t3_/t1_)
func (c *Client) PostReply(ctx context.Context, accessToken, thingID, text string) (string, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", thingID)
	form.Set("text", text)

	raw, err := c.req.PostFormBody(ctx, "post comment", c.cfg.BaseURL+"/api/comment", form, platform.BearerAuth(accessToken))
	if err != nil {
		return "", err
	}

	var resp commentResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.JSON.Errors) > 0 {
		return "", fmt.Errorf("reddit rejected comment: %s", joinErrors(resp.JSON.Errors))
	}
	return platform.ExtractID(raw, "json", "data", "things", "0", "data", "name"), nil
}

func toCandidate(p apiPost, created time.Time) models.Candidate {
	var refs []string
	if p.Preview != nil {
		for _, img := range p.Preview.Images {
			if img.Source.URL != "" {
				refs = append(refs, img.Source.URL)
			}
		}
	}
	if len(refs) == 0 && p.PostHint == "image" && p.URL != "" {
		refs = []string{p.URL}
	}

	return models.Candidate{
		ExternalID:      p.Name,
		AuthorID:        p.AuthorID,
		AuthorHandle:    p.Author,
		Title:           p.Title,
		Text:            p.Selftext,
		EngagementScore: p.Score,
		ReplyCount:      p.NumComments,
		CreatedAt:       created,
		MediaRefs:       refs,
		URL:             "https://www.reddit.com" + p.Permalink,
		Context:         "r/" + p.Subreddit,
	}
}

// joinErrors flattens reddit's [[code, message, field], ...] error tuples
func joinErrors(errs []json.RawMessage) string {
	parts := make([]string, 0, len(errs))
	for _, raw := range errs {
		var tuple []string
		if err := json.Unmarshal(raw, &tuple); err == nil && len(tuple) > 0 {
			parts = append(parts, strings.Join(tuple, ": "))
			continue
		}
		parts = append(parts, string(raw))
	}
	return strings.Join(parts, "; ")
}
