package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andywolf/agentium/internal/opclient"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn a workspace for an issue",
	Long: `Spawn provisions a containerized sandbox for the given issue and agent,
synthesizes its environment recipe, and starts the agent's exec session.

Example:
  opctl spawn --issue 42 --agent 1 --timeout 60`,
	RunE: runSpawn,
}

func init() {
	rootCmd.AddCommand(spawnCmd)
	spawnCmd.Flags().Int64("issue", 0, "issue id to fix")
	spawnCmd.Flags().Int64("agent", 0, "agent id to run")
	spawnCmd.Flags().Float64("timeout", 0, "timeout in minutes (defaults to orchestratord's configured default)")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	issueID, _ := cmd.Flags().GetInt64("issue")
	agentID, _ := cmd.Flags().GetInt64("agent")
	timeout, _ := cmd.Flags().GetFloat64("timeout")

	if issueID == 0 || agentID == 0 {
		return fmt.Errorf("--issue and --agent are required")
	}

	req := opclient.SpawnRequest{IssueID: issueID, AgentID: agentID}
	if timeout > 0 {
		req.TimeoutMinutes = &timeout
	}

	ws, err := client().Spawn(context.Background(), req)
	if err != nil {
		return err
	}
	return printJSON(ws)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
