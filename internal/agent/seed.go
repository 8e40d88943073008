package agent

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var embeddedSeed string

// SeedSpec pairs a registered adapter name with the install method and
// default model recorded alongside it in the store; the container image
// itself comes from the adapter so the two can never drift.
type SeedSpec struct {
	Name          string `yaml:"name"`
	InstallMethod string `yaml:"install_method"`
	DefaultModel  string `yaml:"default_model"`
}

type seedManifest struct {
	Agents []SeedSpec `yaml:"agents"`
}

// LoadSeedSpecs parses the embedded manifest of agents the daemon seeds
// into the store on startup.
func LoadSeedSpecs() ([]SeedSpec, error) {
	var manifest seedManifest
	if err := yaml.Unmarshal([]byte(embeddedSeed), &manifest); err != nil {
		return nil, fmt.Errorf("agent: parse seed manifest: %w", err)
	}
	return manifest.Agents, nil
}
