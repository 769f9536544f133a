package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/shubh-37/social-autoreply/internal/models"
)

// Notifier forwards pipeline narration to an operator channel. Only the
// levels it was built with are sent; info and warning chatter stays in the
// database log.
type Notifier struct {
	client    *Client
	channelID string
	levels    map[models.LogLevel]bool
}

func NewNotifier(client *Client, channelID string, levels ...models.LogLevel) *Notifier {
	if len(levels) == 0 {
		levels = []models.LogLevel{models.LogSuccess, models.LogError}
	}
	n := &Notifier{
		client:    client,
		channelID: channelID,
		levels:    make(map[models.LogLevel]bool, len(levels)),
	}
	for _, l := range levels {
		n.levels[l] = true
	}
	return n
}

func (n *Notifier) Log(ctx context.Context, entry models.LogEntry) error {
	if !n.levels[entry.Level] {
		return nil
	}

	text := fmt.Sprintf("%s %s", levelEmoji(entry.Level), entry.Message)
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Account `%s`", entry.AccountID), false, false),
		),
	}
	return n.client.SendMessageWithBlocks(ctx, n.channelID, text, blocks...)
}

func levelEmoji(level models.LogLevel) string {
	switch level {
	case models.LogSuccess:
		return "✅"
	case models.LogError:
		return "❌"
	case models.LogWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
