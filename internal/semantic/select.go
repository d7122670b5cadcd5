package semantic

import (
	"path/filepath"
	"strings"

	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// pathSignals marks files whose name or directory suggests security-relevant
// code worth the model call even when the pattern stage found nothing.
var pathSignals = []string{
	"auth", "login", "session", "password", "token",
	"settings", "config", "secret", "credential",
	"admin", "payment", "billing", "user", "account",
	"middleware", "views", "routes", "api",
}

// contentSignals are substrings whose presence in the source marks the file
// security relevant.
var contentSignals = []string{
	"password", "secret", "api_key", "apikey", "token",
	"session", "auth", "credential", "encrypt",
	"requests.", "fetch(", "axios", "http://",
}

// securityRelevant reports whether a file's path or contents carry
// security-relevant signals.
func securityRelevant(path, code string) bool {
	name := strings.ToLower(filepath.ToSlash(path))
	for _, sig := range pathSignals {
		if strings.Contains(name, sig) {
			return true
		}
	}
	lower := strings.ToLower(code)
	for _, sig := range contentSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// ShouldAnalyze decides whether a file is dispatched to the semantic
// analyzer. regex_only never analyzes; analyze_all always does; smart
// analyzes files with pattern hits or security-relevant signals.
func ShouldAnalyze(mode soc2.ScanMode, path, code string, patternHits int) bool {
	switch mode {
	case soc2.ModeAnalyzeAll:
		return true
	case soc2.ModeSmart:
		return patternHits > 0 || securityRelevant(path, code)
	default:
		return false
	}
}
