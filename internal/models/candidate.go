package models

import "time"

// Candidate is a piece of platform content we might reply to.
// It only lives for the duration of one pipeline run.
type Candidate struct {
	ExternalID      string
	AuthorID        string
	AuthorHandle    string
	Title           string
	Text            string
	EngagementScore int
	ReplyCount      int
	CreatedAt       time.Time
	MediaRefs       []string
	URL             string
	Context         string // e.g. "r/golang"
}
