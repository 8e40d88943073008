package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [workspace-id]",
	Short: "Destroy a running workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
	}
	ws, err := client().Cancel(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(ws)
}
