package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads a single Profile document from a YAML file on disk.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}

	return p, nil
}

// LoadPhaseProfile reads a PhaseProfile document from a YAML file on disk
// and validates that InitialPhase resolves to a declared phase.
func LoadPhaseProfile(path string) (PhaseProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PhaseProfile{}, fmt.Errorf("read phase profile %s: %w", path, err)
	}

	var pp PhaseProfile
	if err := yaml.Unmarshal(data, &pp); err != nil {
		return PhaseProfile{}, fmt.Errorf("parse phase profile %s: %w", path, err)
	}

	if _, ok := pp.Phases[pp.InitialPhase]; !ok {
		return PhaseProfile{}, fmt.Errorf("phase profile %s: initial_phase %q is not a declared phase", path, pp.InitialPhase)
	}

	return pp, nil
}
