package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

const (
	DefaultBaseURL  = "https://www.googleapis.com/youtube/v3"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	maxPlaylistItems = 10
	// videos.list rejects more ids than this in one call
	maxVideoIDs = 50
)

// Client talks to the YouTube Data API v3
type Client struct {
	req *platform.Requester
	cfg platform.Config
}

// NewClient creates a YouTube client
func NewClient(cfg platform.Config) *Client {
	cfg = cfg.WithDefaults(DefaultBaseURL, DefaultTokenURL)
	return &Client{
		req: platform.NewRequester(string(models.PlatformYouTube), cfg),
		cfg: cfg,
	}
}

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.CommentReplier = (*Client)(nil)
)

func (c *Client) Platform() models.Platform {
	return models.PlatformYouTube
}

// RefreshTokenIfNeeded refreshes through Google's token endpoint, which takes the
// client credentials in the form body.
func (c *Client) RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*platform.Token, error) {
	switch platform.EvaluateToken(creds, c.cfg.Now()) {
	case platform.TokenMissing:
		return nil, nil
	case platform.TokenFresh:
		return platform.ExistingToken(creds), nil
	}
	return c.req.RefreshOAuth2(ctx, creds, platform.ClientAuthForm)
}

// FetchCandidates lists recent uploads of the configured channels, or runs a keyword
// search when no channels are configured, then loads statistics for the videos found.
func (c *Client) FetchCandidates(ctx context.Context, accessToken string, params platform.SearchParams) ([]models.Candidate, error) {
	var ids []string
	var err error

	switch {
	case len(params.ChannelIDs) > 0:
		ids, err = c.recentUploads(ctx, accessToken, params)
	case len(params.Keywords) > 0:
		ids, err = c.searchVideos(ctx, accessToken, params)
	default:
		return []models.Candidate{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Candidate{}, nil
	}

	candidates, err := c.videoDetails(ctx, accessToken, params.APIKey, ids)
	if err != nil {
		return nil, err
	}

	// keywords narrow channel uploads; in search mode the API already matched them
	if len(params.ChannelIDs) > 0 && len(params.Keywords) > 0 {
		candidates = filterByKeywords(candidates, params.Keywords)
	}
	return candidates, nil
}

func (c *Client) recentUploads(ctx context.Context, accessToken string, params platform.SearchParams) ([]string, error) {
	var ids []string
	for _, channelID := range params.ChannelIDs {
		playlistID, err := c.uploadsPlaylist(ctx, accessToken, params.APIKey, channelID)
		if err != nil {
			if platform.IsUnavailable(err) {
				continue
			}
			return nil, err
		}
		if playlistID == "" {
			continue
		}

		q := c.query(params.APIKey)
		q.Set("part", "contentDetails")
		q.Set("playlistId", playlistID)
		q.Set("maxResults", strconv.Itoa(maxPlaylistItems))

		var resp playlistItemsResponse
		if err := c.req.GetJSON(ctx, "list playlist items", c.cfg.BaseURL+"/playlistItems?"+q.Encode(), accessToken, &resp); err != nil {
			if platform.IsUnavailable(err) {
				continue
			}
			return nil, err
		}
		for _, item := range resp.Items {
			if !params.Since.IsZero() {
				published, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt)
				if err == nil && published.Before(params.Since) {
					continue
				}
			}
			if item.ContentDetails.VideoID != "" {
				ids = append(ids, item.ContentDetails.VideoID)
			}
		}
	}
	return ids, nil
}

func (c *Client) uploadsPlaylist(ctx context.Context, accessToken, apiKey, channelID string) (string, error) {
	q := c.query(apiKey)
	q.Set("part", "contentDetails")
	q.Set("id", channelID)

	var resp channelListResponse
	if err := c.req.GetJSON(ctx, "resolve uploads playlist", c.cfg.BaseURL+"/channels?"+q.Encode(), accessToken, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

func (c *Client) searchVideos(ctx context.Context, accessToken string, params platform.SearchParams) ([]string, error) {
	maxResults := params.MaxResults
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 25
	}

	q := c.query(params.APIKey)
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("order", "viewCount")
	q.Set("q", platform.JoinPipe(params.Keywords))
	q.Set("maxResults", strconv.Itoa(maxResults))
	if !params.Since.IsZero() {
		q.Set("publishedAfter", params.Since.UTC().Format(time.RFC3339))
	}

	var resp searchResponse
	if err := c.req.GetJSON(ctx, "search", c.cfg.BaseURL+"/search?"+q.Encode(), accessToken, &resp); err != nil {
		if platform.IsUnavailable(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

func (c *Client) videoDetails(ctx context.Context, accessToken, apiKey string, ids []string) ([]models.Candidate, error) {
	var items []apiVideo
	for _, chunk := range chunkIDs(ids, maxVideoIDs) {
		q := c.query(apiKey)
		q.Set("part", "snippet,statistics")
		q.Set("id", strings.Join(chunk, ","))

		var resp videoListResponse
		if err := c.req.GetJSON(ctx, "list videos", c.cfg.BaseURL+"/videos?"+q.Encode(), accessToken, &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)
	}

	candidates := make([]models.Candidate, 0, len(items))
	for _, v := range items {
		if v.Statistics.CommentCount == nil {
			continue
		}
		if v.Snippet.LiveBroadcastContent != "" && v.Snippet.LiveBroadcastContent != "none" {
			continue
		}
		likes, _ := strconv.Atoi(v.Statistics.LikeCount)
		comments, _ := strconv.Atoi(*v.Statistics.CommentCount)
		published, _ := time.Parse(time.RFC3339, v.Snippet.PublishedAt)

		var refs []string
		if thumb := bestThumbnail(v.Snippet.Thumbnails.High, v.Snippet.Thumbnails.Medium, v.Snippet.Thumbnails.Default); thumb != "" {
			refs = []string{thumb}
		}

		candidates = append(candidates, models.Candidate{
			ExternalID:      v.ID,
			AuthorID:        v.Snippet.ChannelID,
			AuthorHandle:    v.Snippet.ChannelTitle,
			Title:           v.Snippet.Title,
			Text:            v.Snippet.Description,
			EngagementScore: likes,
			ReplyCount:      comments,
			CreatedAt:       published,
			MediaRefs:       refs,
			URL:             fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID),
		})
	}
	return candidates, nil
}

// PostReply leaves a top-level comment on the video
func (c *Client) PostReply(ctx context.Context, accessToken, videoID, text string) (string, error) {
	var body commentThreadRequest
	body.Snippet.VideoID = videoID
	body.Snippet.TopLevelComment.Snippet.TextOriginal = text

	raw, err := c.req.PostJSONBody(ctx, "post comment", c.cfg.BaseURL+"/commentThreads?part=snippet", accessToken, body)
	if err != nil {
		return "", err
	}
	return platform.ExtractID(raw, "id"), nil
}

// ReplyToComment answers a top-level comment
func (c *Client) ReplyToComment(ctx context.Context, accessToken, commentID, text string) (string, error) {
	var body commentRequest
	body.Snippet.ParentID = commentID
	body.Snippet.TextOriginal = text

	raw, err := c.req.PostJSONBody(ctx, "reply to comment", c.cfg.BaseURL+"/comments?part=snippet", accessToken, body)
	if err != nil {
		return "", err
	}
	return platform.ExtractID(raw, "id"), nil
}

func (c *Client) query(apiKey string) url.Values {
	q := url.Values{}
	if apiKey != "" {
		q.Set("key", apiKey)
	}
	return q
}

// chunkIDs drops duplicate ids and splits the rest into groups of at most size
func chunkIDs(ids []string, size int) [][]string {
	seen := make(map[string]bool, len(ids))
	var chunks [][]string
	var current []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		current = append(current, id)
		if len(current) == size {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func bestThumbnail(thumbs ...thumbnail) string {
	for _, t := range thumbs {
		if t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func filterByKeywords(candidates []models.Candidate, keywords []string) []models.Candidate {
	out := candidates[:0]
	for _, cand := range candidates {
		haystack := strings.ToLower(cand.Title + " " + cand.Text)
		for _, kw := range keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				out = append(out, cand)
				break
			}
		}
	}
	return out
}
