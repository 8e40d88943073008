// Package daemonclient talks to a container daemon over its local Unix
// socket: image builds, container lifecycle, and multiplexed exec streaming.
// It speaks the daemon's HTTP-over-Unix-socket protocol directly rather than
// shelling out to a CLI, so the orchestrator has no runtime dependency on a
// docker binary being on PATH.
package daemonclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	resolveOnce sync.Once
	resolved    string
	resolveErr  error
)

// dockerContextMeta mirrors the fields we need out of
// ~/.docker/contexts/meta/<hash>/meta.json.
type dockerContextMeta struct {
	Name      string `json:"Name"`
	Endpoints struct {
		Docker struct {
			Host string `json:"Host"`
		} `json:"docker"`
	} `json:"Endpoints"`
}

type dockerCLIConfig struct {
	CurrentContext string `json:"currentContext"`
}

// ResolveSocketPath finds the daemon's Unix socket, trying in order:
//  1. the explicit override (stripping a unix:// prefix)
//  2. the Docker CLI context store's current context endpoint
//  3. $XDG_RUNTIME_DIR/docker.sock
//  4. /var/run/docker.sock
//
// The first path that stat-succeeds is cached process-wide; override is
// never cached since it can legitimately vary between callers in tests.
func ResolveSocketPath(override string) (string, error) {
	if override != "" {
		return strings.TrimPrefix(override, "unix://"), nil
	}
	resolveOnce.Do(func() {
		resolved, resolveErr = resolveSocketPath()
	})
	return resolved, resolveErr
}

func resolveSocketPath() (string, error) {
	candidates := []string{}

	if home, err := os.UserHomeDir(); err == nil {
		if ctxPath, err := currentContextSocket(home); err == nil && ctxPath != "" {
			candidates = append(candidates, ctxPath)
		}
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		candidates = append(candidates, filepath.Join(runtimeDir, "docker.sock"))
	}

	candidates = append(candidates, "/var/run/docker.sock")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("daemonclient: no reachable daemon socket among %v", candidates)
}

func currentContextSocket(home string) (string, error) {
	cfgPath := filepath.Join(home, ".docker", "config.json")
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return "", err
	}
	var cfg dockerCLIConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", err
	}
	if cfg.CurrentContext == "" || cfg.CurrentContext == "default" {
		return "", nil
	}

	metaRoot := filepath.Join(home, ".docker", "contexts", "meta")
	entries, err := os.ReadDir(metaRoot)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(metaRoot, e.Name(), "meta.json")
		raw, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var meta dockerContextMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		if meta.Name == cfg.CurrentContext {
			return strings.TrimPrefix(meta.Endpoints.Docker.Host, "unix://"), nil
		}
	}
	return "", fmt.Errorf("daemonclient: context %q not found in context store", cfg.CurrentContext)
}
