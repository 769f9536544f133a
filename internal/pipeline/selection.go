package pipeline

import (
	"sort"
	"strings"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

// Filter describes which candidates may be replied to
type Filter struct {
	Replied       map[string]bool
	SelfID        string
	SelfHandle    string
	MinEngagement int
}

// Eligible drops content already replied to, our own content, deleted authors and
// anything under the engagement threshold.
func Eligible(candidates []models.Candidate, f Filter) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		switch {
		case f.Replied[c.ExternalID]:
		case f.SelfID != "" && c.AuthorID == f.SelfID:
		case f.SelfHandle != "" && strings.EqualFold(strings.TrimPrefix(c.AuthorHandle, "@"), strings.TrimPrefix(f.SelfHandle, "@")):
		case c.AuthorHandle == platform.DeletedAuthor:
		case c.EngagementScore < f.MinEngagement:
		default:
			out = append(out, c)
		}
	}
	return out
}

// Rank orders candidates best first: engagement descending, then (when the platform
// reports it) fewer existing replies, then newest, then id.
func Rank(candidates []models.Candidate, useReplyCount bool) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.EngagementScore != b.EngagementScore {
			return a.EngagementScore > b.EngagementScore
		}
		if useReplyCount && a.ReplyCount != b.ReplyCount {
			return a.ReplyCount < b.ReplyCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ExternalID < b.ExternalID
	})
}

// SelectCandidate filters and ranks, returning the single best candidate or nil
func SelectCandidate(candidates []models.Candidate, f Filter, useReplyCount bool) *models.Candidate {
	eligible := Eligible(candidates, f)
	if len(eligible) == 0 {
		return nil
	}
	Rank(eligible, useReplyCount)
	return &eligible[0]
}
