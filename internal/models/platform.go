package models

import "fmt"

// Platform identifies a connected social network
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformReddit    Platform = "reddit"
)

// Platforms lists every supported platform in a stable order
var Platforms = []Platform{PlatformTwitter, PlatformYouTube, PlatformInstagram, PlatformReddit}

// ParsePlatform validates a platform name
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// MaxReplyLength is the longest reply we post on the platform.
func (p Platform) MaxReplyLength() int {
	switch p {
	case PlatformTwitter:
		return 280
	case PlatformInstagram:
		return 300
	default:
		return 500
	}
}

// ContextLabel describes the kind of content a reply targets, used in prompts.
func (p Platform) ContextLabel() string {
	switch p {
	case PlatformTwitter:
		return "tweet"
	case PlatformYouTube:
		return "YouTube video"
	case PlatformInstagram:
		return "Instagram post"
	case PlatformReddit:
		return "Reddit post"
	}
	return "post"
}

// HasSecondarySignal reports whether candidates carry a meaningful reply count
// that ranking can use to break engagement ties.
func (p Platform) HasSecondarySignal() bool {
	return p != PlatformInstagram
}
