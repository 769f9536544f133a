package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shubh-37/social-autoreply/config"
	"github.com/shubh-37/social-autoreply/internal/logging"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/pipeline"
	"github.com/shubh-37/social-autoreply/internal/trigger"
)

func newRunCmd() *cobra.Command {
	var accountID string
	var viaNATS bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if viaNATS {
				return requestRunViaNATS(cmd, accountID)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.runner.Run(ctx, accountID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, formatRunResult(result))
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().BoolVar(&viaNATS, "via-nats", false, "publish the run request to a worker over NATS instead of running locally")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// requestRunViaNATS needs only the NATS settings, not a database connection
func requestRunViaNATS(cmd *cobra.Command, accountID string) error {
	cfg := config.LoadConfig(logging.NewLogger())
	if cfg.NATSURL == "" {
		return errors.New("NATS_URL is required with --via-nats")
	}
	nc, err := trigger.Connect(cfg.NATSURL, logging.NewLogger())
	if err != nil {
		return err
	}
	defer nc.Close()

	reply, err := trigger.RequestRun(cmd.Context(), nc, cfg.NATSSubject, accountID)
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return printResult(cmd.OutOrStdout(), reply.Result, formatRunResult(reply.Result))
}

func newPreviewCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Draft a reply for an account without posting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.runner.Preview(ctx, accountID)
			if err != nil {
				return err
			}
			text := result.Message
			if result.PostedText != "" {
				text = fmt.Sprintf("Draft for %s:\n%s", result.RepliedTo, result.PostedText)
			}
			return printResult(cmd.OutOrStdout(), result, text)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newAutomationCmd() *cobra.Command {
	var accountID string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "automation",
		Short: "Include or exclude an account from scheduled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.accounts.SetAutomation(ctx, accountID, enabled); err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			return printResult(cmd.OutOrStdout(),
				map[string]any{"id": accountID, "automated": enabled},
				fmt.Sprintf("Automation %s for %s", state, accountID))
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether scheduled runs include the account")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newRunAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run the pipeline for every automated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.scheduler.RunAll(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), summary, fmt.Sprintf(
				"%d accounts: %d replied, %d skipped, %d failed, %d timed out (%s)",
				summary.Total, summary.Replied, summary.Skipped, summary.Failed, summary.TimedOut,
				summary.Duration.Round(time.Second)))
		},
	}
}

// threadFile is the YAML accepted by `thread --file`
type threadFile struct {
	ReplyTo string        `yaml:"reply_to"`
	Delay   time.Duration `yaml:"delay"`
	Posts   []string      `yaml:"posts"`
}

func newThreadCmd() *cobra.Command {
	var accountID, file string

	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Post a thread from a YAML file",
		Example: `  autoreply thread --account <id> --file thread.yaml

  # thread.yaml
  reply_to: "1790000000000000000"   # omit for a standalone thread (twitter only)
  delay: 3s
  posts:
    - First post
    - Second post`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc threadFile
			if err := readYAML(file, &doc); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.runner.PostThread(ctx, accountID, doc.ReplyTo, doc.Posts, doc.Delay)
			if err != nil {
				if len(ids) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "Posted %d of %d before failing: %s\n", len(ids), len(doc.Posts), strings.Join(ids, ", "))
				}
				return err
			}
			return printResult(cmd.OutOrStdout(), map[string]any{"ids": ids},
				fmt.Sprintf("Posted thread: %s", strings.Join(ids, ", ")))
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&file, "file", "", "thread YAML file")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// batchFile is the YAML accepted by `batch --file`
type batchFile struct {
	Delay time.Duration `yaml:"delay"`
	Items []struct {
		TargetID string `yaml:"target_id"`
		Text     string `yaml:"text"`
	} `yaml:"items"`
}

func newBatchCmd() *cobra.Command {
	var accountID, file string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Reply to several targets from a YAML file",
		Example: `  autoreply batch --account <id> --file batch.yaml

  # batch.yaml
  delay: 5s
  items:
    - target_id: t3_abc123
      text: Thanks for sharing this`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc batchFile
			if err := readYAML(file, &doc); err != nil {
				return err
			}
			items := make([]pipeline.BatchItem, 0, len(doc.Items))
			for _, it := range doc.Items {
				items = append(items, pipeline.BatchItem{TargetID: it.TargetID, Text: it.Text})
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.runner.ReplyBatch(ctx, accountID, items, doc.Delay)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result,
				fmt.Sprintf("Batch finished: %d posted, %d failed", result.Posted, result.Failed))
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&file, "file", "", "batch YAML file")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.db.CreateTables(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database tables are up to date")
			return nil
		},
	}
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func formatRunResult(result *models.RunResult) string {
	if result == nil {
		return "No result"
	}
	if !result.Replied {
		return result.Message
	}
	return fmt.Sprintf("Replied to %s (reply %s):\n%s", result.RepliedTo, result.ReplyID, result.PostedText)
}
