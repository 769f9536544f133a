package slack

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack/slackevents"
)

// MessageHandler lets operators drive commands by mentioning the bot
type MessageHandler struct {
	client   *Client
	commands *CommandHandler
	logger   *logrus.Logger
}

func NewMessageHandler(client *Client, commands *CommandHandler, logger *logrus.Logger) *MessageHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &MessageHandler{
		client:   client,
		commands: commands,
		logger:   logger,
	}
}

func (h *MessageHandler) HandleAppMention(ctx context.Context, event *slackevents.AppMentionEvent) error {
	if event.BotID != "" {
		return nil
	}

	text := stripMention(event.Text, h.client.GetBotID())
	reply := h.commands.Dispatch(ctx, event.Channel, text)
	return h.client.SendMessage(ctx, event.Channel, reply)
}

// stripMention removes the bot's mention; without a known bot id, a leading
// mention of any user is dropped
func stripMention(text, botID string) string {
	text = strings.TrimSpace(text)
	if botID != "" {
		return strings.TrimSpace(strings.Replace(text, "<@"+botID+">", "", 1))
	}
	if strings.HasPrefix(text, "<@") {
		if end := strings.Index(text, ">"); end >= 0 {
			return strings.TrimSpace(text[end+1:])
		}
	}
	return text
}
