package pipeline

import (
	"fmt"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

// ValidateConnection checks the platform OAuth connection and any platform-specific
// key. It returns the first missing field as a *ConfigError.
func ValidateConnection(account *models.Account) error {
	creds := account.Credentials

	switch {
	case empty(creds.AccessToken):
		return &ConfigError{Field: fmt.Sprintf("%s account is not connected (no access token)", account.Platform)}
	case empty(creds.RefreshToken):
		return &ConfigError{Field: fmt.Sprintf("%s account is not connected (no refresh token)", account.Platform)}
	case creds.ClientID == "":
		return &ConfigError{Field: fmt.Sprintf("%s client id", account.Platform)}
	}

	switch account.Platform {
	case models.PlatformYouTube:
		if creds.APIKey == "" {
			return &ConfigError{Field: "YouTube API key"}
		}
	case models.PlatformInstagram:
		if creds.PlatformUserID == "" {
			return &ConfigError{Field: "Instagram business account id"}
		}
	}
	return nil
}

// ValidateAccount checks everything a pipeline run needs, in order: connection,
// platform key, search settings, LLM key, LLM model.
func ValidateAccount(account *models.Account) error {
	if err := ValidateConnection(account); err != nil {
		return err
	}

	settings := account.Settings
	keywords := platform.ParseKeywords(settings.Keywords)
	if len(keywords) == 0 {
		channels := platform.ParseKeywords(settings.ChannelIDs)
		if account.Platform != models.PlatformYouTube || len(channels) == 0 {
			return &ConfigError{Field: "keywords"}
		}
	}
	if settings.LLMAPIKey == "" {
		return &ConfigError{Field: "LLM API key"}
	}
	if settings.Model == "" {
		return &ConfigError{Field: "LLM model"}
	}
	return nil
}

func empty(s *string) bool {
	return s == nil || *s == ""
}
