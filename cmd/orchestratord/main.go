// Command orchestratord runs the workspace orchestrator's control surface:
// it serves the HTTP API defined in internal/httpapi, reconciles workspace
// state against the container daemon on startup, and accepts inbound
// GitHub webhooks.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/agentium/internal/agent"
	_ "github.com/andywolf/agentium/internal/agent/aider"
	_ "github.com/andywolf/agentium/internal/agent/claudecode"
	_ "github.com/andywolf/agentium/internal/agent/codex"
	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/config"
	"github.com/andywolf/agentium/internal/daemonclient"
	"github.com/andywolf/agentium/internal/envdetect"
	"github.com/andywolf/agentium/internal/eventintegrator"
	"github.com/andywolf/agentium/internal/github"
	"github.com/andywolf/agentium/internal/httpapi"
	"github.com/andywolf/agentium/internal/llm"
	"github.com/andywolf/agentium/internal/metrics"
	"github.com/andywolf/agentium/internal/provider"
	"github.com/andywolf/agentium/internal/reconcile"
	"github.com/andywolf/agentium/internal/recipe"
	"github.com/andywolf/agentium/internal/security"
	"github.com/andywolf/agentium/internal/store"
	"github.com/andywolf/agentium/internal/version"
	"github.com/andywolf/agentium/internal/workspace"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orchestratord",
	Short: "Workspace orchestrator daemon",
	Long: `orchestratord serves the control surface that spawns containerized
coding-agent sandboxes against GitHub issues and tracks their pull requests
through to merge.`,
	RunE: runDaemon,
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.Version = version.Short()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .orchestratord.yaml)")
	rootCmd.Flags().Int("port", 0, "HTTP listen port (overrides config)")
	_ = viper.BindPFlag("http.port", rootCmd.Flags().Lookup("port"))

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("orchestratord: %v", err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".orchestratord")
	}

	viper.SetEnvPrefix("ORCHD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "orchestratord: using config file:", viper.ConfigFileUsed())
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("orchestratord: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("orchestratord: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := gcp.NewLogger(ctx, "orchestratord")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("orchestratord: open store: %w", err)
	}
	defer st.Close()

	if err := seedAgents(st); err != nil {
		return fmt.Errorf("orchestratord: seed agents: %w", err)
	}

	daemon, err := daemonclient.New(cfg.Daemon.SocketOverride)
	if err != nil {
		return fmt.Errorf("orchestratord: connect daemon: %w", err)
	}

	secretFetcher, err := optionalSecretFetcher(ctx)
	if err != nil {
		logger.LogInfo(fmt.Sprintf("secret manager unavailable, falling back to literal config values: %v", err))
	}
	if secretFetcher != nil {
		defer secretFetcher.Close()
	}

	privateKey, err := resolveSecretValue(ctx, secretFetcher, cfg.GitHub.PrivateKeySecret)
	if err != nil {
		return fmt.Errorf("orchestratord: resolve github private key: %w", err)
	}
	tokens, err := github.NewTokenManager(formatAppID(cfg.GitHub.AppID), cfg.GitHub.InstallationID, []byte(privateKey))
	if err != nil {
		return fmt.Errorf("orchestratord: github token manager: %w", err)
	}
	prov := provider.New(tokens)

	completer := llm.NewAnthropicCompleter(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model)
	synth := recipe.New(completer)
	detect := envdetect.New(cfg.Workspace.CloneScratchDir)

	runner := workspace.New(st, daemon, synth, prov, detect, workspace.CredentialMount{
		HostKnownHostsPath: cfg.Workspace.KnownHostsPath,
		ContainerUser:      cfg.Workspace.CredentialUser,
		HostSSHKeyPath:     cfg.Workspace.SSHKeyPath,
		HostAgentAuthPath:  cfg.Workspace.AgentAuthPath,
		HostAgentConfigDir: cfg.Workspace.AgentConfigDir,
	})

	webhookSecretFn := func() (string, error) {
		return resolveSecretValue(ctx, secretFetcher, cfg.Webhook.SharedSecret)
	}
	webhooks := eventintegrator.New(st, webhookSecretFn)

	rateLimit := security.NewRateLimiter(20, time.Minute)
	m := metrics.New("orchestratord", version.Short())

	reconciler := reconcile.New(st, daemon, runner)
	if err := reconciler.Start(ctx); err != nil {
		return fmt.Errorf("orchestratord: start reconciler: %w", err)
	}
	defer reconciler.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Store:     st,
		Runner:    runner,
		Webhooks:  webhooks,
		Metrics:   m,
		Logger:    logger,
		RateLimit: rateLimit,
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.BindAddr, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.LogInfo(fmt.Sprintf("received signal %v, shutting down", sig))
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.LogInfo(fmt.Sprintf("orchestratord listening on %s", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("orchestratord: serve: %w", err)
	}
	return nil
}

// optionalSecretFetcher builds a gcp.SecretManagerClient when a GCP project
// can be resolved from the environment or metadata server. A nil return
// means secrets are read directly out of config/env, which is the expected
// path for local development.
func optionalSecretFetcher(ctx context.Context) (gcp.SecretFetcher, error) {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" && os.Getenv("GCP_PROJECT") == "" && os.Getenv("GCLOUD_PROJECT") == "" {
		return nil, nil
	}
	return gcp.NewSecretManagerClient(ctx)
}

// resolveSecretValue fetches value through fetcher when one is configured,
// treating it as a Secret Manager secret name/path; otherwise value is
// already the literal secret and is returned unchanged.
func resolveSecretValue(ctx context.Context, fetcher gcp.SecretFetcher, value string) (string, error) {
	if fetcher == nil || value == "" {
		return value, nil
	}
	return fetcher.FetchSecret(ctx, value)
}

func formatAppID(appID int64) string {
	return fmt.Sprintf("%d", appID)
}

func seedAgents(st *store.Store) error {
	specs, err := agent.LoadSeedSpecs()
	if err != nil {
		return fmt.Errorf("load agent seed manifest: %w", err)
	}
	for _, a := range specs {
		adapter, err := agent.Get(a.Name)
		if err != nil {
			return fmt.Errorf("look up adapter %s: %w", a.Name, err)
		}
		if _, err := st.SeedAgent(a.Name, adapter.ContainerImage(), a.InstallMethod, a.DefaultModel); err != nil {
			return fmt.Errorf("seed agent %s: %w", a.Name, err)
		}
	}
	return nil
}
