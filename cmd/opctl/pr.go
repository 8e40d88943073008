package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var prCmd = &cobra.Command{
	Use:   "pr [workspace-id]",
	Short: "Resolve a workspace's pull request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPR,
}

func init() {
	rootCmd.AddCommand(prCmd)
}

func runPR(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
	}
	pr, err := client().PR(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(pr)
}
