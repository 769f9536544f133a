package models

import (
	"errors"
	"time"
)

// Credentials holds the OAuth connection of one account on one platform
type Credentials struct {
	ClientID       string     `json:"client_id"`
	ClientSecret   string     `json:"-"`
	AccessToken    *string    `json:"-"`
	RefreshToken   *string    `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	APIKey         string     `json:"-"`                // YouTube data API key
	PlatformUserID string     `json:"platform_user_id"` // IG business id, tweet author id, channel id
	Username       string     `json:"username"`
}

// TokenValid reports whether the access token can be used as-is.
// A token without an expiry never expires.
func (c Credentials) TokenValid(now time.Time) bool {
	if c.AccessToken == nil || *c.AccessToken == "" {
		return false
	}
	if c.TokenExpiresAt == nil {
		return true
	}
	return c.TokenExpiresAt.After(now)
}

// StyleOptions are the user's writing constraints for generated replies
type StyleOptions struct {
	NoHashtags       bool `json:"no_hashtags"`
	NoEmojis         bool `json:"no_emojis"`
	NoCapitalization bool `json:"no_capitalization"`
	BadGrammar       bool `json:"bad_grammar"`
}

// Settings configure what an account searches for and how it replies
type Settings struct {
	Keywords      string       `json:"keywords"`
	Subreddits    string       `json:"subreddits,omitempty"`
	ChannelIDs    string       `json:"channel_ids,omitempty"`
	MinEngagement int          `json:"min_engagement"`
	RecencyHours  int          `json:"recency_hours"`
	ExcludeMedia  bool         `json:"exclude_media"`
	LLMAPIKey     string       `json:"llm_api_key"`
	Model         string       `json:"model"`
	VisionModel   string       `json:"vision_model,omitempty"`
	SystemPrompt  string       `json:"system_prompt,omitempty"`
	Style         StyleOptions `json:"style"`
}

// Account is a user's connection to one platform plus its automation settings
type Account struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Platform          Platform    `json:"platform"`
	Credentials       Credentials `json:"credentials"`
	Settings          Settings    `json:"settings"`
	AutomationEnabled bool        `json:"automation_enabled"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewAccount creates an account with automation off
func NewAccount(userID string, platform Platform) *Account {
	now := time.Now()
	return &Account{
		UserID:    userID,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ErrAccountNotFound is returned by stores when no account has the requested id
var ErrAccountNotFound = errors.New("account not found")
