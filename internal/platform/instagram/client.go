package instagram

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

const (
	DefaultBaseURL  = "https://graph.facebook.com/v19.0"
	DefaultTokenURL = "https://graph.facebook.com/v19.0/oauth/access_token"

	mediaFields = "id,caption,like_count,comments_count,timestamp,media_type,media_url,permalink"

	// graphTimeLayout is the Graph API timestamp format, e.g. 2026-03-01T10:00:00+0000
	graphTimeLayout = "2006-01-02T15:04:05-0700"
)

// Client talks to the Instagram Graph API on behalf of a business account
type Client struct {
	req *platform.Requester
	cfg platform.Config
}

// NewClient creates an Instagram client
func NewClient(cfg platform.Config) *Client {
	cfg = cfg.WithDefaults(DefaultBaseURL, DefaultTokenURL)
	return &Client{
		req: platform.NewRequester(string(models.PlatformInstagram), cfg),
		cfg: cfg,
	}
}

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.CommentReplier = (*Client)(nil)
)

func (c *Client) Platform() models.Platform {
	return models.PlatformInstagram
}

// RefreshTokenIfNeeded exchanges the long-lived user token kept in RefreshToken
// for a new access token.
func (c *Client) RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*platform.Token, error) {
	switch platform.EvaluateToken(creds, c.cfg.Now()) {
	case platform.TokenMissing:
		return nil, nil
	case platform.TokenFresh:
		return platform.ExistingToken(creds), nil
	}

	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", creds.ClientID)
	q.Set("client_secret", creds.ClientSecret)
	q.Set("fb_exchange_token", *creds.RefreshToken)

	tok, err := c.req.TokenFromGET(ctx, c.cfg.TokenURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		// the exchanged token is itself long-lived and becomes the next exchange input
		tok.RefreshToken = tok.AccessToken
	}
	return tok, nil
}

// FetchCandidates resolves each keyword to a hashtag and collects its top media.
func (c *Client) FetchCandidates(ctx context.Context, accessToken string, params platform.SearchParams) ([]models.Candidate, error) {
	candidates := []models.Candidate{}
	if len(params.Keywords) == 0 {
		return candidates, nil
	}

	seen := make(map[string]bool)
	for _, kw := range params.Keywords {
		tag := hashtag(kw)
		if tag == "" {
			continue
		}

		hashtagID, err := c.hashtagID(ctx, accessToken, params.UserID, tag)
		if err != nil {
			if platform.IsUnavailable(err) {
				continue
			}
			return nil, err
		}
		if hashtagID == "" {
			continue
		}

		q := url.Values{}
		q.Set("user_id", params.UserID)
		q.Set("fields", mediaFields)

		var resp topMediaResponse
		if err := c.req.GetJSON(ctx, "list top media", c.cfg.BaseURL+"/"+url.PathEscape(hashtagID)+"/top_media?"+q.Encode(), accessToken, &resp); err != nil {
			if platform.IsUnavailable(err) {
				continue
			}
			return nil, err
		}

		for _, m := range resp.Data {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true

			if params.ExcludeMedia && isVideo(m.MediaType) {
				continue
			}
			created, _ := time.Parse(graphTimeLayout, m.Timestamp)
			if !params.Since.IsZero() && !created.IsZero() && created.Before(params.Since) {
				continue
			}
			candidates = append(candidates, toCandidate(m, created, tag))
		}
	}
	return candidates, nil
}

func (c *Client) hashtagID(ctx context.Context, accessToken, userID, tag string) (string, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("q", tag)

	var resp hashtagSearchResponse
	if err := c.req.GetJSON(ctx, "hashtag search", c.cfg.BaseURL+"/ig_hashtag_search?"+q.Encode(), accessToken, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].ID, nil
}

// PostReply comments on a media object
func (c *Client) PostReply(ctx context.Context, accessToken, mediaID, text string) (string, error) {
	form := url.Values{}
	form.Set("message", text)

	raw, err := c.req.PostFormBody(ctx, "post comment", c.cfg.BaseURL+"/"+url.PathEscape(mediaID)+"/comments", form, platform.BearerAuth(accessToken))
	if err != nil {
		return "", err
	}
	return platform.ExtractID(raw, "id"), nil
}

// ReplyToComment answers a top-level comment
func (c *Client) ReplyToComment(ctx context.Context, accessToken, commentID, text string) (string, error) {
	form := url.Values{}
	form.Set("message", text)

	raw, err := c.req.PostFormBody(ctx, "reply to comment", c.cfg.BaseURL+"/"+url.PathEscape(commentID)+"/replies", form, platform.BearerAuth(accessToken))
	if err != nil {
		return "", err
	}
	return platform.ExtractID(raw, "id"), nil
}

func toCandidate(m apiMedia, created time.Time, tag string) models.Candidate {
	var refs []string
	if m.MediaURL != "" && !isVideo(m.MediaType) {
		refs = []string{m.MediaURL}
	}
	return models.Candidate{
		ExternalID:      m.ID,
		Text:            m.Caption,
		EngagementScore: m.LikeCount,
		ReplyCount:      m.CommentsCount,
		CreatedAt:       created,
		MediaRefs:       refs,
		URL:             m.Permalink,
		Context:         "#" + tag,
	}
}

func isVideo(mediaType string) bool {
	return mediaType == "VIDEO" || mediaType == "REELS"
}

// hashtag turns a keyword into the form ig_hashtag_search accepts
func hashtag(keyword string) string {
	tag := strings.TrimPrefix(strings.TrimSpace(keyword), "#")
	return strings.ToLower(strings.Join(strings.Fields(tag), ""))
}
