package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [workspace-id]",
	Short: "Print a workspace's captured stdout/stderr lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().Int64("after", 0, "only show log lines with an id greater than this")
}

func runLogs(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
	}
	afterID, _ := cmd.Flags().GetInt64("after")

	logs, err := client().Logs(context.Background(), id, afterID)
	if err != nil {
		return err
	}
	for _, line := range logs {
		fmt.Printf("[%s] %s\n", line.Stream, line.Line)
	}
	return nil
}
