// Package fix synthesizes remediations for violations. Pattern and hybrid
// violations get deterministic control-specific templates; semantic-only
// violations go through the model with the control's fix prompt. Every
// synthesized fix is classified review: nothing is applied unattended.
package fix

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/llm"
	"github.com/lucasnoah/soc2guard/internal/prompt"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// Synthesizer produces fixes for violations.
type Synthesizer struct {
	client    llm.Client
	governor  *cost.Governor
	model     string
	maxTokens int
}

// NewSynthesizer creates a Synthesizer. client may be nil, in which case all
// fixes use the deterministic templates. governor may be nil; when set, model
// usage from fix synthesis is recorded against the scan's cost.
func NewSynthesizer(client llm.Client, governor *cost.Governor, model string) *Synthesizer {
	return &Synthesizer{
		client:    client,
		governor:  governor,
		model:     model,
		maxTokens: 2048,
	}
}

// Synthesize produces exactly one fix for the violation. Semantic-only
// violations use the model when a client is available; everything else takes
// the deterministic path.
func (s *Synthesizer) Synthesize(ctx context.Context, v soc2.Violation) (*soc2.Fix, error) {
	if v.DetectionMethod == soc2.MethodSemantic && s.client != nil {
		return s.synthesizeWithModel(ctx, v)
	}
	return s.synthesizeDeterministic(v)
}

// --- deterministic templates ---

type templateFunc func(v soc2.Violation, lang string) (fixedCode, explanation string)

var templates = map[soc2.ControlID]templateFunc{
	soc2.ControlAccessControl: fixAccessControl,
	soc2.ControlSecrets:       fixSecrets,
	soc2.ControlAuditLogging:  fixAuditLogging,
	soc2.ControlResilience:    fixResilience,
}

func (s *Synthesizer) synthesizeDeterministic(v soc2.Violation) (*soc2.Fix, error) {
	tmpl, ok := templates[v.ControlID]
	if !ok {
		return nil, &soc2.UnknownControlError{ID: v.ControlID}
	}

	lang, _ := LanguageForPath(v.FilePath)
	fixed, explanation := tmpl(v, lang)

	return &soc2.Fix{
		ControlID:    v.ControlID,
		FilePath:     v.FilePath,
		LineNumber:   v.LineNumber,
		OriginalCode: v.CodeSnippet,
		FixedCode:    fixed,
		Explanation:  explanation,
		TrustLevel:   soc2.TrustReview,
	}, nil
}

func isNodeLang(lang string) bool {
	return lang == "javascript" || lang == "typescript"
}

var nodeRouteArgRe = regexp.MustCompile(`((?:app|router)\.(?:get|post|put|delete|patch|all)\s*\(\s*['"][^'"]*['"]\s*,)`)

func fixAccessControl(v soc2.Violation, lang string) (string, string) {
	snippet := v.CodeSnippet

	if isNodeLang(lang) {
		if nodeRouteArgRe.MatchString(snippet) {
			fixed := nodeRouteArgRe.ReplaceAllString(snippet, "$1 requireAuth,")
			return fixed, "Inserted the requireAuth middleware so the route rejects unauthenticated requests before the handler runs."
		}
		fixed := "// Verify the caller's session before handling the request.\nif (!req.session?.user) {\n  return res.status(401).json({ error: 'authentication required' });\n}\n" + snippet
		return fixed, "Added a session check that returns 401 for unauthenticated callers."
	}

	fixed := "from django.contrib.auth.decorators import login_required\n\n@login_required\n" + snippet
	return fixed, "Added the login_required decorator so the view only serves authenticated users."
}

var secretIdentRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*(?::\s*[A-Za-z_\[\]. ]+)?\s*[:=]`)

func fixSecrets(v soc2.Violation, lang string) (string, string) {
	snippet := v.CodeSnippet

	if strings.Contains(snippet, "http://") {
		fixed := strings.ReplaceAll(snippet, "http://", "https://")
		return fixed, "Upgraded the outbound call to encrypted https:// transport."
	}

	ident := "secret"
	if m := secretIdentRe.FindStringSubmatch(snippet); m != nil {
		ident = m[1]
	}
	envName := strings.ToUpper(ident)

	if isNodeLang(lang) {
		fixed := fmt.Sprintf("const %s = process.env.%s;\nif (!%s) {\n  throw new Error('%s environment variable is not set');\n}", ident, envName, ident, envName)
		return fixed, fmt.Sprintf("Replaced the hardcoded credential with a %s environment variable read plus a presence check.", envName)
	}

	fixed := fmt.Sprintf("import os\n\n%s = os.environ.get(\"%s\")\nif not %s:\n    raise RuntimeError(\"%s environment variable is not set\")", ident, envName, ident, envName)
	return fixed, fmt.Sprintf("Replaced the hardcoded credential with a %s environment variable read plus a presence check.", envName)
}

func fixAuditLogging(v soc2.Violation, lang string) (string, string) {
	snippet := v.CodeSnippet

	if isNodeLang(lang) {
		fixed := snippet + "\nlogger.info('audit: state mutation', { statement: " + jsString(snippet) + " });"
		return fixed, "Added a structured audit log entry recording the state mutation."
	}

	fixed := snippet + fmt.Sprintf("\nlogger.info(\"audit: state mutation\", extra={\"statement\": %q})", snippet)
	return fixed, "Added a structured audit log entry recording the state mutation."
}

func fixResilience(v soc2.Violation, lang string) (string, string) {
	snippet := v.CodeSnippet

	if isNodeLang(lang) {
		fixed := "let lastErr;\nfor (let attempt = 0; attempt < 3; attempt++) {\n  try {\n    " + snippet + "\n    lastErr = undefined;\n    break;\n  } catch (err) {\n    lastErr = err;\n    await new Promise((resolve) => setTimeout(resolve, 2 ** attempt * 1000));\n  }\n}\nif (lastErr) throw lastErr;"
		return fixed, "Wrapped the external call in error handling with a bounded exponential-backoff retry."
	}

	fixed := "for attempt in range(3):\n    try:\n        " + snippet + "\n        break\n    except Exception:\n        if attempt == 2:\n            raise\n        time.sleep(2 ** attempt)"
	return fixed, "Wrapped the external call in exception handling with a bounded exponential-backoff retry."
}

func jsString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

// --- model-backed path ---

var codeBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+#]*)[ \t]*\n(.*?)```")

func (s *Synthesizer) synthesizeWithModel(ctx context.Context, v soc2.Violation) (*soc2.Fix, error) {
	tmpl, err := soc2.FixPrompt(v.ControlID)
	if err != nil {
		return nil, err
	}
	rendered, err := prompt.Render(tmpl, prompt.Vars{
		"description":  v.Description,
		"code_snippet": v.CodeSnippet,
	})
	if err != nil {
		return nil, fmt.Errorf("render fix prompt: %w", err)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		Model:     s.model,
		System:    "You are a remediation assistant. Reply with one fenced code block containing the corrected code, followed by a short explanation.",
		Prompt:    rendered,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("fix completion: %w", err)
	}
	if s.governor != nil {
		s.governor.RecordUsage(resp.Usage)
	}

	fixedCode, explanation, err := parseModelFix(resp.Text, v.FilePath)
	if err != nil {
		return nil, err
	}

	return &soc2.Fix{
		ControlID:    v.ControlID,
		FilePath:     v.FilePath,
		LineNumber:   v.LineNumber,
		OriginalCode: v.CodeSnippet,
		FixedCode:    fixedCode,
		Explanation:  explanation,
		TrustLevel:   soc2.TrustReview,
	}, nil
}

// parseModelFix extracts the first fenced code block and the surrounding
// explanation. It rejects output with no code block, an empty block, or a
// fence language that contradicts the file's extension.
func parseModelFix(text, filePath string) (string, string, error) {
	m := codeBlockRe.FindStringSubmatchIndex(text)
	if m == nil {
		return "", "", &UnparseableFixError{FilePath: filePath, Reason: "no fenced code block in model output"}
	}

	fenceTag := text[m[2]:m[3]]
	code := strings.TrimRight(text[m[4]:m[5]], "\n")
	if strings.TrimSpace(code) == "" {
		return "", "", &UnparseableFixError{FilePath: filePath, Reason: "empty code block in model output"}
	}

	if want, ok := LanguageForPath(filePath); ok && fenceTag != "" {
		got := normalizeFenceLang(fenceTag)
		if got != "" && got != want {
			return "", "", &UnparseableFixError{
				FilePath: filePath,
				Reason:   fmt.Sprintf("model produced %s code for a %s file", got, want),
			}
		}
	}

	explanation := strings.TrimSpace(text[:m[0]] + text[m[1]:])
	if explanation == "" {
		explanation = "Model-generated remediation."
	}
	return code, explanation, nil
}
