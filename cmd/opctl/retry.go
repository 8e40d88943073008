package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [workspace-id]",
	Short: "Re-spawn a failed workspace's issue against the same agent",
	Long: `Retry looks up a terminal workspace's issue and agent and spawns a
fresh workspace for the same pair. It does not reuse the old workspace's
container, branch, or recipe.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
	}
	ws, err := client().Retry(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(ws)
}
