package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var outputJSON bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "autoreply",
		Short:         "Social media auto-reply pipeline",
		Long:          "Finds fresh posts on Twitter, YouTube, Instagram and Reddit, drafts a reply with an LLM and posts it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newAutomationCmd())
	rootCmd.AddCommand(newRunAllCmd())
	rootCmd.AddCommand(newThreadCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

// printResult writes v as indented JSON with --json, otherwise the text form
func printResult(w io.Writer, v any, text string) error {
	if !outputJSON {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
