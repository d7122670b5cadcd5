package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a ScanConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *ScanConfig) []ValidationError {
	var errs []ValidationError
	s := cfg.Scan

	if !s.Mode.IsValid() {
		errs = append(errs, ValidationError{
			Field:   "scan.mode",
			Message: fmt.Sprintf("unrecognized mode %q (regex_only, smart, analyze_all)", s.Mode),
		})
	}
	if s.Model == "" {
		errs = append(errs, ValidationError{Field: "scan.model", Message: "is required"})
	}
	if s.CostLimitUSD < 0 {
		errs = append(errs, ValidationError{Field: "scan.cost_limit_usd", Message: "must not be negative"})
	}
	if s.MergeTolerance < 0 {
		errs = append(errs, ValidationError{Field: "scan.merge_tolerance", Message: "must not be negative"})
	}
	if s.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "scan.concurrency", Message: "must be at least 1"})
	}
	if s.MaxFileKB < 1 {
		errs = append(errs, ValidationError{Field: "scan.max_file_kb", Message: "must be at least 1"})
	}

	for i, ext := range s.IncludeExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("scan.include_extensions[%d]", i),
				Message: fmt.Sprintf("extension %q must start with a dot", ext),
			})
		}
	}

	return errs
}
