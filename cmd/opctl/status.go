package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [workspace-id]",
	Short: "Show a workspace's current status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
	}
	ws, err := client().Status(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(ws)
}
