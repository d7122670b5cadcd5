// Package semantic runs the model-backed analysis stage. It renders each
// control's analysis prompt over the file and the pattern stage's candidates,
// makes one completion call per file, and parses the model's findings into
// violations. The stage degrades, never fails: any model or parse problem is
// logged and the file keeps its pattern results.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/llm"
	"github.com/lucasnoah/soc2guard/internal/prompt"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

const analyzerSystem = `You are a SOC 2 compliance reviewer. For each control
brief below, examine the source code and report violations the pattern stage
missed, and confirm or reject its candidates.

Respond with ONLY a JSON array. Each element:
{"control_id": "...", "severity": "critical|high|medium|low",
 "description": "...", "line_number": <int>, "code_snippet": "...",
 "confidence": <0-100>, "reasoning": "..."}

Report an empty array [] if the code is compliant.`

// Analyzer is the semantic analysis stage for one scan.
type Analyzer struct {
	client    llm.Client
	governor  *cost.Governor
	model     string
	maxTokens int
	progress  io.Writer
}

// NewAnalyzer creates an Analyzer. governor may be nil (no cost ceiling);
// progress may be nil to discard stage logs.
func NewAnalyzer(client llm.Client, governor *cost.Governor, model string, progress io.Writer) *Analyzer {
	if progress == nil {
		progress = io.Discard
	}
	return &Analyzer{
		client:    client,
		governor:  governor,
		model:     model,
		maxTokens: 4096,
		progress:  progress,
	}
}

func (a *Analyzer) logf(format string, args ...interface{}) {
	fmt.Fprintf(a.progress, format+"\n", args...)
}

// Analyze runs the model over one file and returns semantic violations. The
// pattern stage's violations are included in the prompt so the model can
// corroborate them. A nil return with nil error means the stage was skipped
// (cost ceiling) or degraded (model or parse failure); the caller proceeds
// with pattern results alone.
func (a *Analyzer) Analyze(ctx context.Context, state *soc2.AgentState, patternViolations []soc2.Violation) ([]soc2.Violation, error) {
	if a.client == nil {
		return nil, nil
	}
	if a.governor != nil && !a.governor.Allow() {
		a.logf("semantic: skipping %s, cost ceiling reached", state.FilePath)
		return nil, nil
	}

	rendered, err := a.buildPrompt(state, patternViolations)
	if err != nil {
		return nil, fmt.Errorf("build analysis prompt: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:     a.model,
		System:    analyzerSystem,
		Prompt:    rendered,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logf("semantic: analysis of %s failed, keeping pattern results: %v", state.FilePath, err)
		return nil, nil
	}

	// Usage is recorded even when parsing fails: tokens were spent.
	if a.governor != nil {
		a.governor.RecordUsage(resp.Usage)
		a.governor.CheckLimit()
	}

	findings, err := parseFindings(resp.Text)
	if err != nil {
		a.logf("semantic: unparseable analysis for %s, keeping pattern results: %v", state.FilePath, err)
		return nil, nil
	}

	return a.toViolations(state.FilePath, findings), nil
}

// buildPrompt concatenates each control's rendered analysis prompt over the
// file. Candidates are restricted per control so each brief only sees its own.
func (a *Analyzer) buildPrompt(state *soc2.AgentState, patternViolations []soc2.Violation) (string, error) {
	byControl := make(map[soc2.ControlID][]soc2.Violation)
	for _, v := range patternViolations {
		byControl[v.ControlID] = append(byControl[v.ControlID], v)
	}

	var sb strings.Builder
	for _, c := range soc2.Controls() {
		candidates := byControl[c.ID]
		rendered, err := prompt.Render(c.AnalysisPrompt, prompt.Vars{
			"framework":  string(state.Framework),
			"violations": prompt.Serialize(candidates),
			"code":       state.Code,
		})
		if err != nil {
			return "", fmt.Errorf("control %s: %w", c.ID, err)
		}
		fmt.Fprintf(&sb, "## %s: %s\n\n%s\n\n", c.ID, c.Name, rendered)
	}
	fmt.Fprintf(&sb, "File under review: %s\n", state.FilePath)
	return sb.String(), nil
}

// finding is the model's wire format for one violation.
type finding struct {
	ControlID   string `json:"control_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	LineNumber  int    `json:"line_number"`
	CodeSnippet string `json:"code_snippet"`
	Confidence  int    `json:"confidence"`
	Reasoning   string `json:"reasoning"`
}

// parseFindings extracts the JSON array from model output. Models sometimes
// wrap the array in prose or a code fence, so parsing starts at the first
// '[' and ends at the last ']'.
func parseFindings(text string) ([]finding, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	var findings []finding
	if err := json.Unmarshal([]byte(text[start:end+1]), &findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	return findings, nil
}

// toViolations converts model findings to violations, dropping entries with
// unknown control ids and clamping confidence into [0,100].
func (a *Analyzer) toViolations(filePath string, findings []finding) []soc2.Violation {
	var out []soc2.Violation
	for _, f := range findings {
		id := soc2.ControlID(f.ControlID)
		if !soc2.ValidControlID(id) {
			a.logf("semantic: dropping finding with unknown control id %q in %s", f.ControlID, filePath)
			continue
		}
		if f.Description == "" || f.LineNumber < 1 {
			a.logf("semantic: dropping incomplete finding for %s in %s", f.ControlID, filePath)
			continue
		}

		conf := f.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}

		sev := soc2.Severity(f.Severity)
		switch sev {
		case soc2.SeverityCritical, soc2.SeverityHigh, soc2.SeverityMedium, soc2.SeverityLow:
		default:
			sev = soc2.SeverityMedium
		}

		reasoning := f.Reasoning
		if reasoning == "" {
			reasoning = f.Description
		}

		out = append(out, soc2.Violation{
			ControlID:         id,
			Severity:          sev,
			Description:       f.Description,
			FilePath:          filePath,
			LineNumber:        f.LineNumber,
			CodeSnippet:       f.CodeSnippet,
			DetectionMethod:   soc2.MethodSemantic,
			ConfidenceScore:   &conf,
			SemanticReasoning: reasoning,
		})
	}
	return out
}
