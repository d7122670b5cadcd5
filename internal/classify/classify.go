// Package classify infers the framework of a source file from its path and
// content. Classification never fails: an unmatched file is "unknown" and
// the pipeline continues with framework-agnostic detectors only.
package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// signature is one ordered content check. First match wins.
type signature struct {
	framework soc2.Framework
	re        *regexp.Regexp
}

// contentSignatures are checked in order before extension defaults. More
// specific frameworks come first: a Next.js file also imports React, and a
// Django settings import outranks a bare .py default.
var contentSignatures = []signature{
	{soc2.FrameworkDjango, regexp.MustCompile(`(?m)^\s*(?:from\s+django|import\s+django)\b|django\.conf|django\.db|django\.http`)},
	{soc2.FrameworkFlask, regexp.MustCompile(`(?m)^\s*(?:from\s+flask|import\s+flask)\b|Flask\(__name__\)`)},
	{soc2.FrameworkNextJS, regexp.MustCompile(`(?:from\s+|require\(\s*)["']next(?:/|["'])|getServerSideProps|getStaticProps`)},
	{soc2.FrameworkExpress, regexp.MustCompile(`require\(\s*["']express["']\s*\)|from\s+["']express["']|express\(\)`)},
	{soc2.FrameworkReact, regexp.MustCompile(`(?:from\s+|require\(\s*)["']react(?:["']|/)|React\.Component|useState\(|useEffect\(`)},
}

// pathSignatures catch framework-specific file layout when content is silent.
var pathSignatures = []struct {
	framework soc2.Framework
	fragment  string
}{
	{soc2.FrameworkNextJS, "next.config"},
	{soc2.FrameworkDjango, "manage.py"},
	{soc2.FrameworkDjango, "settings.py"},
}

// extensionDefaults map file extensions to a family default when no signature
// matched: Python files default to the Django family, plain JS/TS to Express,
// JSX/TSX to React.
var extensionDefaults = map[string]soc2.Framework{
	".py":  soc2.FrameworkDjango,
	".js":  soc2.FrameworkExpress,
	".ts":  soc2.FrameworkExpress,
	".mjs": soc2.FrameworkExpress,
	".jsx": soc2.FrameworkReact,
	".tsx": soc2.FrameworkReact,
}

// Framework resolves the framework for a file. A supplied framework (anything
// other than empty or unknown) is returned unchanged; otherwise content
// signatures are tried in order, then path signatures, then extension
// defaults. Unmatched files classify as unknown.
func Framework(path string, supplied soc2.Framework, code string) soc2.Framework {
	if supplied != "" && supplied != soc2.FrameworkUnknown {
		return supplied
	}

	for _, sig := range contentSignatures {
		if sig.re.MatchString(code) {
			return sig.framework
		}
	}

	base := filepath.Base(path)
	for _, sig := range pathSignatures {
		if strings.Contains(base, sig.fragment) {
			return sig.framework
		}
	}

	if fw, ok := extensionDefaults[strings.ToLower(filepath.Ext(path))]; ok {
		return fw
	}
	return soc2.FrameworkUnknown
}
