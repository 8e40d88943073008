// Package security provides container security hardening options
package security

import (
	"strconv"
	"strings"
)

// ContainerSecurityOptions defines security settings for agent containers
type ContainerSecurityOptions struct {
	// DropCapabilities specifies Linux capabilities to drop
	DropCapabilities []string

	// AddCapabilities specifies Linux capabilities to add
	AddCapabilities []string

	// NoNewPrivileges prevents processes from gaining new privileges
	NoNewPrivileges bool

	// ReadOnlyRootFilesystem makes the root filesystem read-only
	ReadOnlyRootFilesystem bool

	// PidsLimit limits the number of processes in the container
	PidsLimit int

	// MemoryLimit sets the memory limit (e.g., "4g")
	MemoryLimit string

	// CPULimit sets the CPU limit (e.g., "2")
	CPULimit string

	// SecurityOpts additional security options
	SecurityOpts []string
}

// DefaultContainerSecurityOptions returns secure defaults for containers
func DefaultContainerSecurityOptions() *ContainerSecurityOptions {
	return &ContainerSecurityOptions{
		DropCapabilities: []string{"ALL"},
		AddCapabilities: []string{
			"DAC_OVERRIDE", // Needed for file operations
			"CHOWN",        // Needed for file ownership changes
		},
		NoNewPrivileges:        true,
		ReadOnlyRootFilesystem: false, // Would break package installations
		PidsLimit:              1000,
		MemoryLimit:            "4g",
		CPULimit:               "2",
		SecurityOpts:           []string{"no-new-privileges"},
	}
}

// ParseMemoryLimit converts a Docker-style memory string (e.g. "4g", "512m")
// into bytes for the daemon's HostConfig.Memory field. Returns 0 for an
// empty or unrecognized value.
func ParseMemoryLimit(limit string) int64 {
	limit = strings.TrimSpace(strings.ToLower(limit))
	if limit == "" {
		return 0
	}
	var mult int64 = 1
	switch {
	case strings.HasSuffix(limit, "g"):
		mult = 1 << 30
		limit = strings.TrimSuffix(limit, "g")
	case strings.HasSuffix(limit, "m"):
		mult = 1 << 20
		limit = strings.TrimSuffix(limit, "m")
	case strings.HasSuffix(limit, "k"):
		mult = 1 << 10
		limit = strings.TrimSuffix(limit, "k")
	}
	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

// ParseCPULimit converts a Docker-style CPU count string (e.g. "2", "0.5")
// into nanoCPUs for the daemon's HostConfig.NanoCpus field.
func ParseCPULimit(limit string) int64 {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		return 0
	}
	f, err := strconv.ParseFloat(limit, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int64(f * 1e9)
}