package fix

import (
	"fmt"
	"path/filepath"
	"strings"
)

// languageByExt maps source file extensions to the language a model-produced
// fix must be valid for.
var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".go":   "go",
	".java": "java",
	".rb":   "ruby",
	".php":  "php",
	".cs":   "csharp",
	".cpp":  "cpp",
	".c":    "c",
}

// fenceAliases normalizes code fence language tags to the table's names.
var fenceAliases = map[string]string{
	"py":         "python",
	"python3":    "python",
	"js":         "javascript",
	"node":       "javascript",
	"jsx":        "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"golang":     "go",
	"rb":         "ruby",
	"c#":         "csharp",
	"cs":         "csharp",
	"c++":        "cpp",
	"javascript": "javascript",
	"typescript": "typescript",
	"python":     "python",
	"rust":       "rust",
	"go":         "go",
	"java":       "java",
	"ruby":       "ruby",
	"php":        "php",
	"csharp":     "csharp",
	"cpp":        "cpp",
	"c":          "c",
}

// LanguageForPath returns the language for a file path's extension.
func LanguageForPath(path string) (string, bool) {
	lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// normalizeFenceLang maps a code fence tag to a table language, or "" if the
// tag is unrecognized.
func normalizeFenceLang(tag string) string {
	return fenceAliases[strings.ToLower(strings.TrimSpace(tag))]
}

// UnparseableFixError is returned when model output cannot be parsed as a
// valid fix for the file's language.
type UnparseableFixError struct {
	FilePath string
	Reason   string
}

func (e *UnparseableFixError) Error() string {
	return fmt.Sprintf("unparseable fix for %s: %s", e.FilePath, e.Reason)
}
