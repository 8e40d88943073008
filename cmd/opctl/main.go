// Command opctl is the operator CLI for the workspace orchestrator,
// talking to a running orchestratord over its HTTP control surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/agentium/internal/opclient"
	"github.com/andywolf/agentium/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "opctl",
	Short: "Operate a workspace orchestrator",
	Long: `opctl drives a running orchestratord: spawn a workspace for an
issue, check on it, tail its logs, retrieve its pull request, or tear it
down.

Example:
  opctl spawn --issue 42 --agent 1`,
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .opctl.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "orchestratord base URL")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "opctl:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".opctl")
	}

	viper.SetEnvPrefix("OPCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func client() *opclient.Client {
	return opclient.New(viper.GetString("server"))
}
