package slack

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type Client struct {
	api    *slack.Client
	botID  string
	logger *logrus.Logger
}

// NewClient builds a Slack Web API client. Options are passed through to
// slack-go, e.g. slack.OptionAPIURL for a test server.
func NewClient(token string, logger *logrus.Logger, options ...slack.Option) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		api:    slack.New(token, options...),
		logger: logger,
	}
}

// Authenticate resolves the bot user id so mentions can be recognised
func (c *Client) Authenticate(ctx context.Context) error {
	authTest, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Slack: %w", err)
	}
	c.botID = authTest.UserID
	c.logger.WithFields(logrus.Fields{
		"team":   authTest.Team,
		"bot_id": authTest.UserID,
	}).Info("Authenticated with Slack")
	return nil
}

func (c *Client) GetBotID() string {
	return c.botID
}

func (c *Client) SendMessage(ctx context.Context, channelID, message string) error {
	_, _, err := c.api.PostMessageContext(ctx,
		channelID,
		slack.MsgOptionText(message, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}
	return nil
}

// SendMessageWithBlocks posts blocks with text as the notification fallback
func (c *Client) SendMessageWithBlocks(ctx context.Context, channelID, text string, blocks ...slack.Block) error {
	_, _, err := c.api.PostMessageContext(ctx,
		channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}
	return nil
}
