package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RigPath string // hcl rig files

	// Sample and DataDir, when set, override the rig's run block.
	Sample  string
	DataDir string

	// DryRun swaps every declared driver for the simulator, so a plan can
	// be rehearsed without instruments attached.
	DryRun bool

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.RigPath == "" {
		return nil, errors.New("RigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
