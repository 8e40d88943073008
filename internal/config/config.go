// Package config loads orchestratord's and opctl's configuration from
// flags, environment variables (ORCHD_ prefixed), and an optional config
// file, via spf13/viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full orchestrator daemon configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
}

// HTTPConfig controls the control surface's listener.
type HTTPConfig struct {
	BindAddr string `mapstructure:"bind_addr"`
	Port     int    `mapstructure:"port"`
}

// DatabaseConfig controls the embedded SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DaemonConfig controls the container daemon client.
type DaemonConfig struct {
	SocketOverride string `mapstructure:"socket_override"`
}

// GitHubConfig holds GitHub App credentials used to mint installation
// tokens for forking, pushing, and reading repository state.
type GitHubConfig struct {
	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
}

// WebhookConfig controls inbound provider webhook verification.
type WebhookConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

// LLMConfig holds the text-completion credentials used by the recipe
// synthesizer.
type LLMConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`
}

// ExtractionConfig holds the credential for the external scraper the
// environment detector falls back to when static analysis of a shallow
// clone can't determine a repository's toolchain. No component currently
// calls out to that scraper (see internal/envdetect), so this key is
// accepted and validated but otherwise unused until that integration
// exists.
type ExtractionConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// WorkspaceConfig holds defaults applied to spawned workspaces.
type WorkspaceConfig struct {
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
	CredentialUser  string        `mapstructure:"credential_user"`
	KnownHostsPath  string        `mapstructure:"known_hosts_path"`
	SSHKeyPath      string        `mapstructure:"ssh_key_path"`
	AgentAuthPath   string        `mapstructure:"agent_auth_path"`
	AgentConfigDir  string        `mapstructure:"agent_config_dir"`
	CloneScratchDir string        `mapstructure:"clone_scratch_dir"`
}

// Load reads configuration bound by BindFlags, applying defaults for
// anything left unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.BindAddr == "" {
		cfg.HTTP.BindAddr = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "orchestrator.db"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Workspace.DefaultTimeout == 0 {
		cfg.Workspace.DefaultTimeout = 45 * time.Minute
	}
	if cfg.Workspace.CredentialUser == "" {
		cfg.Workspace.CredentialUser = "orchestrator"
	}
	if cfg.Workspace.CloneScratchDir == "" {
		cfg.Workspace.CloneScratchDir = "/tmp/orchestratord-envdetect"
	}
}

// Validate checks the fields required for the daemon to serve traffic.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http port %d is out of range", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database path is required")
	}
	if c.Webhook.SharedSecret == "" {
		return fmt.Errorf("config: webhook shared secret is required")
	}
	if c.GitHub.AppID == 0 {
		return fmt.Errorf("config: github app_id is required")
	}
	if c.GitHub.InstallationID == 0 {
		return fmt.Errorf("config: github installation_id is required")
	}
	if c.GitHub.PrivateKeySecret == "" {
		return fmt.Errorf("config: github private_key_secret is required")
	}
	return nil
}
