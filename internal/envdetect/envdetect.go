// Package envdetect derives a RepositoryEnvironment (runtime, package
// manager, setup/test commands) for a shallow clone of a repository, so the
// Recipe Synthesizer has a concrete toolchain to target.
package envdetect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/scanner"
)

// Detector clones a repository into a scratch directory and runs the
// scanner against it.
type Detector struct {
	cloneDir string // parent directory scratch clones are created under
}

// New builds a Detector that stages clones under cloneDir (created if absent).
func New(cloneDir string) *Detector {
	return &Detector{cloneDir: cloneDir}
}

// Detect shallow-clones cloneURL at ref and returns the derived
// RepositoryEnvironment for repositoryID. The clone is removed before
// returning.
func (d *Detector) Detect(ctx context.Context, repositoryID int64, cloneURL, ref string) (*models.RepositoryEnvironment, error) {
	if err := os.MkdirAll(d.cloneDir, 0o755); err != nil {
		return nil, fmt.Errorf("envdetect: prepare clone dir: %w", err)
	}

	workDir, err := os.MkdirTemp(d.cloneDir, "envdetect-")
	if err != nil {
		return nil, fmt.Errorf("envdetect: create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, cloneURL, workDir)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("envdetect: shallow clone %s: %w (%s)", cloneURL, err, string(out))
	}

	info, err := scanner.New(workDir).Scan()
	if err != nil {
		return nil, fmt.Errorf("envdetect: scan %s: %w", cloneURL, err)
	}

	env := &models.RepositoryEnvironment{
		RepositoryID:   repositoryID,
		Runtime:        primaryRuntime(info),
		PackageManager: info.BuildSystem,
		SetupCommand:   firstOrEmpty(info.BuildCommands),
		TestCommand:    firstOrEmpty(info.TestCommands),
	}
	return env, nil
}

// primaryRuntime picks the dominant detected language by file count, which
// is what the Recipe Synthesizer uses to key its base-image selection.
func primaryRuntime(info *scanner.ProjectInfo) string {
	if len(info.Languages) == 0 {
		return ""
	}
	best := info.Languages[0]
	for _, lang := range info.Languages[1:] {
		if lang.FileCount > best.FileCount {
			best = lang
		}
	}
	return strings.ToLower(best.Name)
}

func firstOrEmpty(cmds []string) string {
	if len(cmds) == 0 {
		return ""
	}
	return cmds[0]
}
