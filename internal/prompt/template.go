// Package prompt renders control prompt templates. Rendering is pure string
// substitution: {name} placeholders are replaced from a variable map, there
// is no control flow, and missing variables are an error.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var varRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands a template string with the given variables. Every {name}
// placeholder must have a value; missing variables are collected and reported
// in one error. Substituted values are inserted verbatim and never re-scanned
// for placeholders.
func Render(tmpl string, vars Vars) (string, error) {
	var missing []string
	expanded := varRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match // leave placeholder for error reporting
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// Serialize converts a structured value (e.g. a violation list) to the form
// templates substitute it as. An empty slice or nil serializes to "[]".
func Serialize(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
