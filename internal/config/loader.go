package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/soc2guard/internal/merge"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// Load reads and parses a scan configuration from the given YAML file path.
// After parsing, it fills in defaults for fields the file leaves unset.
func Load(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg ScanConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a scan config in standard locations and loads the
// first one found. Search order: ./soc2guard.yaml, ~/.soc2guard/config.yaml.
// When no file exists the built-in defaults are returned.
func LoadDefault() (*ScanConfig, error) {
	candidates := []string{"soc2guard.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".soc2guard", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &ScanConfig{}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills unset fields with the scan defaults.
func applyDefaults(cfg *ScanConfig) {
	s := &cfg.Scan

	if s.Mode == "" {
		s.Mode = soc2.ModeSmart
	}
	if s.Model == "" {
		s.Model = "claude-sonnet-4-5"
	}
	if s.CostLimitUSD == 0 {
		s.CostLimitUSD = 5.00
	}
	if s.MergeTolerance == 0 {
		s.MergeTolerance = merge.DefaultTolerance
	}
	if s.Concurrency == 0 {
		s.Concurrency = 4
	}
	if s.MaxFileKB == 0 {
		s.MaxFileKB = 256
	}
	if s.APIKeyEnv == "" {
		s.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if s.DatabasePath == "" {
		s.DatabasePath = ".soc2guard/scan.db"
	}
	if len(s.IncludeExtensions) == 0 {
		s.IncludeExtensions = []string{".py", ".js", ".jsx", ".ts", ".tsx"}
	}
	if len(s.ExcludeDirs) == 0 {
		s.ExcludeDirs = []string{"node_modules", ".git", "vendor", "dist", "build", "venv", ".venv", "__pycache__"}
	}
}
