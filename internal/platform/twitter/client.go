package twitter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

const (
	DefaultBaseURL  = "https://api.twitter.com"
	DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"
)

// Client talks to the X (Twitter) v2 API
type Client struct {
	req *platform.Requester
	cfg platform.Config
}

// NewClient creates a Twitter client
func NewClient(cfg platform.Config) *Client {
	cfg = cfg.WithDefaults(DefaultBaseURL, DefaultTokenURL)
	return &Client{
		req: platform.NewRequester(string(models.PlatformTwitter), cfg),
		cfg: cfg,
	}
}

var _ platform.Client = (*Client)(nil)

func (c *Client) Platform() models.Platform {
	return models.PlatformTwitter
}

// RefreshTokenIfNeeded exchanges the refresh token with Basic client auth.
// Twitter rotates refresh tokens, so the returned token carries the new one.
func (c *Client) RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*platform.Token, error) {
	switch platform.EvaluateToken(creds, c.cfg.Now()) {
	case platform.TokenMissing:
		return nil, nil
	case platform.TokenFresh:
		return platform.ExistingToken(creds), nil
	}
	return c.req.RefreshOAuth2(ctx, creds, platform.ClientAuthBasic)
}

// BuildQuery turns keywords into a recent-search query, or "" when there are none
func BuildQuery(keywords []string, excludeMedia bool) string {
	if len(keywords) == 0 {
		return ""
	}
	q := "(" + platform.JoinOr(keywords) + ") -is:retweet -is:reply -has:links lang:en"
	if excludeMedia {
		q += " -has:media"
	}
	return q
}

// FetchCandidates runs one recent search over the OR-joined keywords
func (c *Client) FetchCandidates(ctx context.Context, accessToken string, params platform.SearchParams) ([]models.Candidate, error) {
	query := BuildQuery(params.Keywords, params.ExcludeMedia)
	if query == "" {
		return []models.Candidate{}, nil
	}

	maxResults := params.MaxResults
	if maxResults < 10 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "created_at,public_metrics,author_id,attachments")
	q.Set("expansions", "author_id,attachments.media_keys")
	q.Set("user.fields", "username")
	q.Set("media.fields", "type,url,preview_image_url")
	if !params.Since.IsZero() {
		q.Set("start_time", params.Since.UTC().Format(time.RFC3339))
	}

	var resp searchResponse
	if err := c.req.GetJSON(ctx, "search", c.cfg.BaseURL+"/2/tweets/search/recent?"+q.Encode(), accessToken, &resp); err != nil {
		return nil, err
	}
	if resp.Meta.ResultCount == 0 && len(resp.Data) == 0 {
		return []models.Candidate{}, nil
	}

	users := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u.Username
	}
	media := make(map[string]apiMedia, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		media[m.MediaKey] = m
	}

	candidates := make([]models.Candidate, 0, len(resp.Data))
	for _, t := range resp.Data {
		var refs []string
		hasVideo := false
		for _, key := range t.Attachments.MediaKeys {
			m, ok := media[key]
			if !ok {
				continue
			}
			switch m.Type {
			case "photo":
				if m.URL != "" {
					refs = append(refs, m.URL)
				}
			default:
				hasVideo = true
				if m.PreviewImageURL != "" {
					refs = append(refs, m.PreviewImageURL)
				}
			}
		}
		if params.ExcludeMedia && hasVideo {
			continue
		}

		createdAt, _ := time.Parse(time.RFC3339, t.CreatedAt)
		handle := users[t.AuthorID]
		candidates = append(candidates, models.Candidate{
			ExternalID:      t.ID,
			AuthorID:        t.AuthorID,
			AuthorHandle:    handle,
			Text:            t.Text,
			EngagementScore: t.PublicMetrics.LikeCount,
			ReplyCount:      t.PublicMetrics.ReplyCount,
			CreatedAt:       createdAt,
			MediaRefs:       refs,
			URL:             fmt.Sprintf("https://x.com/%s/status/%s", handleOrI(handle), t.ID),
		})
	}
	return candidates, nil
}

// PostReply posts text in reply to targetID; an empty targetID posts a standalone tweet.
func (c *Client) PostReply(ctx context.Context, accessToken, targetID, text string) (string, error) {
	body := createTweetRequest{Text: text}
	if targetID != "" {
		body.Reply = &replyField{InReplyToTweetID: targetID}
	}

	raw, err := c.req.PostJSONBody(ctx, "post reply", c.cfg.BaseURL+"/2/tweets", accessToken, body)
	if err != nil {
		return "", err
	}
	return platform.ExtractID(raw, "data", "id"), nil
}

func handleOrI(handle string) string {
	if handle == "" {
		return "i"
	}
	return handle
}
