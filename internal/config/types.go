package config

import "github.com/lucasnoah/soc2guard/internal/soc2"

// ScanConfig is the top-level configuration structure parsed from scan YAML.
type ScanConfig struct {
	Scan Scan `yaml:"scan"`
}

// Scan defines one scan: mode, model, cost ceiling, and file selection.
type Scan struct {
	Mode              soc2.ScanMode `yaml:"mode"`
	Model             string        `yaml:"model"`
	CostLimitUSD      float64       `yaml:"cost_limit_usd"`
	MergeTolerance    int           `yaml:"merge_tolerance"`
	Concurrency       int           `yaml:"concurrency"`
	MaxFileKB         int           `yaml:"max_file_kb"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	DatabasePath      string        `yaml:"database_path"`
	IncludeExtensions []string      `yaml:"include_extensions"`
	ExcludeDirs       []string      `yaml:"exclude_dirs"`
}
