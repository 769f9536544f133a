package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/internal/models"
)

const defaultRunTimeout = 5 * time.Minute

// PipelineRunner is the part of the pipeline the commands drive
type PipelineRunner interface {
	Run(ctx context.Context, accountID string) (*models.RunResult, error)
	Preview(ctx context.Context, accountID string) (*models.RunResult, error)
}

// AutomationStore toggles the automated flag of an account
type AutomationStore interface {
	SetAutomation(ctx context.Context, id string, enabled bool) error
}

type CommandHandler struct {
	client     *Client
	runner     PipelineRunner
	automation AutomationStore
	logger     *logrus.Logger
	runTimeout time.Duration

	wg sync.WaitGroup
}

func NewCommandHandler(client *Client, runner PipelineRunner, automation AutomationStore, logger *logrus.Logger) *CommandHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CommandHandler{
		client:     client,
		runner:     runner,
		automation: automation,
		logger:     logger,
		runTimeout: defaultRunTimeout,
	}
}

// Dispatch handles one command line and returns the immediate reply. Runs and
// previews take longer than Slack waits for a response, so they continue in
// the background and post their outcome to channelID.
func (h *CommandHandler) Dispatch(ctx context.Context, channelID, text string) string {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return helpMessage
	}

	verb := strings.ToLower(parts[0])
	args := parts[1:]

	h.logger.WithFields(logrus.Fields{
		"command": verb,
		"channel": channelID,
	}).Info("Handling Slack command")

	switch verb {
	case "run":
		if len(args) != 1 {
			return "❌ Usage: `run <account-id>`"
		}
		h.background(channelID, args[0], h.HandleRun)
		return fmt.Sprintf("⏳ Running pipeline for `%s`...", args[0])

	case "preview":
		if len(args) != 1 {
			return "❌ Usage: `preview <account-id>`"
		}
		h.background(channelID, args[0], h.HandlePreview)
		return fmt.Sprintf("✨ Drafting a preview reply for `%s`...", args[0])

	case "automation":
		if len(args) != 2 {
			return "❌ Usage: `automation <account-id> on|off`"
		}
		return h.HandleAutomation(ctx, args[0], args[1])

	case "help":
		return helpMessage
	}

	return fmt.Sprintf("🤷 Unknown command `%s`\n\n%s", verb, helpMessage)
}

// Wait blocks until every background run has posted its outcome
func (h *CommandHandler) Wait() {
	h.wg.Wait()
}

func (h *CommandHandler) background(channelID, accountID string, fn func(ctx context.Context, accountID string) string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
		defer cancel()

		message := fn(ctx, accountID)
		if err := h.client.SendMessage(ctx, channelID, message); err != nil {
			h.logger.WithError(err).WithField("account_id", accountID).Error("Failed to send command result")
		}
	}()
}

// HandleRun executes the pipeline and formats the outcome
func (h *CommandHandler) HandleRun(ctx context.Context, accountID string) string {
	result, err := h.runner.Run(ctx, accountID)
	if err != nil {
		return failureMessage("Run", accountID, err)
	}
	if !result.Replied {
		return fmt.Sprintf("📭 `%s`: %s", accountID, result.Message)
	}
	return fmt.Sprintf("✅ *Replied to* %s\n>%s", result.RepliedTo, quote(result.PostedText))
}

// HandlePreview drafts a reply without posting it
func (h *CommandHandler) HandlePreview(ctx context.Context, accountID string) string {
	result, err := h.runner.Preview(ctx, accountID)
	if err != nil {
		return failureMessage("Preview", accountID, err)
	}
	if result.PostedText == "" {
		return fmt.Sprintf("📭 `%s`: %s", accountID, result.Message)
	}
	return fmt.Sprintf("📝 *Draft for* %s\n>%s\n\n_Not posted. Use `run %s` to reply._",
		result.RepliedTo, quote(result.PostedText), accountID)
}

// HandleAutomation switches the automated flag on or off
func (h *CommandHandler) HandleAutomation(ctx context.Context, accountID, state string) string {
	var enabled bool
	switch strings.ToLower(state) {
	case "on", "enable", "true":
		enabled = true
	case "off", "disable", "false":
		enabled = false
	default:
		return "❌ Automation state must be `on` or `off`"
	}

	if err := h.automation.SetAutomation(ctx, accountID, enabled); err != nil {
		return failureMessage("Automation update", accountID, err)
	}
	if enabled {
		return fmt.Sprintf("🤖 Automation enabled for `%s`", accountID)
	}
	return fmt.Sprintf("⏸️ Automation disabled for `%s`", accountID)
}

func failureMessage(action, accountID string, err error) string {
	if errors.Is(err, models.ErrAccountNotFound) {
		return fmt.Sprintf("❓ Account `%s` not found", accountID)
	}
	return fmt.Sprintf("❌ %s failed for `%s`: %v", action, accountID, err)
}

// quote keeps multi-line replies inside the Slack blockquote
func quote(text string) string {
	return strings.ReplaceAll(text, "\n", "\n>")
}

const helpMessage = `*Auto-reply commands*
• ` + "`run <account-id>`" + ` find content and post one reply now
• ` + "`preview <account-id>`" + ` draft a reply without posting
• ` + "`automation <account-id> on|off`" + ` include or exclude the account from scheduled runs`
