package models

import "time"

// Interaction records a reply we posted (or drafted) to a piece of content
type Interaction struct {
	ID                string     `json:"id"`
	AccountID         string     `json:"account_id"`
	ExternalContentID string     `json:"external_content_id"`
	AuthorHandle      string     `json:"author_handle"`
	OurReplyText      string     `json:"our_reply_text"`
	OurReplyID        string     `json:"our_reply_id"`
	RepliedAt         *time.Time `json:"replied_at,omitempty"` // nil for unreplied placeholders
	CreatedAt         time.Time  `json:"created_at"`
}

// NewInteraction creates a replied interaction stamped at now
func NewInteraction(accountID, contentID, author, text, replyID string, now time.Time) *Interaction {
	return &Interaction{
		AccountID:         accountID,
		ExternalContentID: contentID,
		AuthorHandle:      author,
		OurReplyText:      text,
		OurReplyID:        replyID,
		RepliedAt:         &now,
		CreatedAt:         now,
	}
}

// Replied reports whether the interaction is more than a placeholder
func (i *Interaction) Replied() bool {
	return i.RepliedAt != nil
}
