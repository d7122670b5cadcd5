package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/soc2guard/internal/fix"
	"github.com/lucasnoah/soc2guard/internal/llm"
	"github.com/lucasnoah/soc2guard/internal/semantic"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

func newTestPipeline(opts ...Option) *Pipeline {
	return NewPipeline(fix.NewSynthesizer(nil, nil, ""), opts...)
}

func TestRun_EmptyFilePath(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("", "x = 1\n", soc2.FrameworkUnknown)

	res := p.Run(context.Background(), state)
	if res.Success {
		t.Fatal("expected failure for empty file path")
	}
	if state.CurrentStep != soc2.StepParse {
		t.Errorf("state should stay at parse, got %q", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "file path") {
		t.Errorf("error should name the missing field, got %q", state.Error)
	}
}

func TestRun_EmptyCode(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("app.py", "", soc2.FrameworkUnknown)

	res := p.Run(context.Background(), state)
	if res.Success {
		t.Fatal("expected failure for empty code")
	}
	if state.CurrentStep != soc2.StepParse {
		t.Errorf("state should stay at parse, got %q", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "code") {
		t.Errorf("error should name the missing field, got %q", state.Error)
	}
}

func TestRun_WhitespaceOnlyCode(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("app.py", "   \n\t\n", soc2.FrameworkUnknown)

	res := p.Run(context.Background(), state)
	if res.Success {
		t.Fatal("expected failure for whitespace-only code")
	}
	if state.CurrentStep != soc2.StepParse {
		t.Errorf("state should stay at parse, got %q", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "code") {
		t.Errorf("error should name the missing field, got %q", state.Error)
	}
}

func TestRun_HardcodedSecretEndToEnd(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("settings.py", "password = 'admin123'\n", soc2.FrameworkUnknown)

	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}
	if state.CurrentStep != soc2.StepValidated {
		t.Errorf("state should reach validated, got %q", state.CurrentStep)
	}
	if state.Timestamp == "" {
		t.Error("timestamp should be set when processing begins")
	}
	if _, err := time.Parse(time.RFC3339, state.Timestamp); err != nil {
		t.Errorf("timestamp should be RFC 3339, got %q: %v", state.Timestamp, err)
	}

	var found *soc2.Violation
	for i := range state.Violations {
		if state.Violations[i].ControlID == soc2.ControlSecrets {
			found = &state.Violations[i]
		}
	}
	if found == nil {
		t.Fatal("expected a CC6.7 violation")
	}
	if found.Severity != soc2.SeverityCritical {
		t.Errorf("severity = %q, want critical", found.Severity)
	}
	if found.LineNumber != 1 {
		t.Errorf("line = %d, want 1", found.LineNumber)
	}

	if len(state.Fixes) == 0 {
		t.Fatal("expected at least one fix")
	}
	for _, fx := range state.Fixes {
		if fx.TrustLevel != soc2.TrustReview {
			t.Errorf("fix trust = %q, want review", fx.TrustLevel)
		}
	}
}

func TestRun_UnprotectedViewGetsAuthFix(t *testing.T) {
	p := newTestPipeline()
	code := "from django.http import JsonResponse\n\ndef user_profile(request):\n    return JsonResponse({})\n"
	state := soc2.NewAgentState("views.py", code, soc2.FrameworkDjango)

	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}

	var accessFix *soc2.Fix
	for i := range state.Fixes {
		if state.Fixes[i].ControlID == soc2.ControlAccessControl {
			accessFix = &state.Fixes[i]
		}
	}
	if accessFix == nil {
		t.Fatal("expected a CC6.1 fix")
	}
	if !strings.Contains(accessFix.FixedCode, "@login_required") {
		t.Errorf("fix should contain an auth decorator, got:\n%s", accessFix.FixedCode)
	}
}

func TestRun_SuppliedFrameworkPreserved(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("handler.py", "x = 1\n", soc2.FrameworkFlask)

	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}
	if state.Framework != soc2.FrameworkFlask {
		t.Errorf("supplied framework should win, got %q", state.Framework)
	}
}

func TestRun_UnknownFrameworkStillValidates(t *testing.T) {
	p := newTestPipeline()
	state := soc2.NewAgentState("notes.txt", "just some text\n", soc2.FrameworkUnknown)

	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("unknown framework should not fail the pipeline, got %q", state.Error)
	}
	if state.Framework != soc2.FrameworkUnknown {
		t.Errorf("framework = %q, want unknown", state.Framework)
	}
	if state.CurrentStep != soc2.StepValidated {
		t.Errorf("state should reach validated, got %q", state.CurrentStep)
	}
}

func TestRun_CompliantFileNoFixes(t *testing.T) {
	p := newTestPipeline()
	code := strings.Join([]string{
		"import os",
		"import logging",
		"",
		"logger = logging.getLogger(__name__)",
		"",
		"api_key = os.environ.get(\"API_KEY\")",
	}, "\n") + "\n"
	state := soc2.NewAgentState("config.py", code, soc2.FrameworkDjango)

	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}
	for _, v := range state.Violations {
		if v.ControlID == soc2.ControlSecrets && v.Severity == soc2.SeverityCritical {
			t.Errorf("env-var read must not be flagged as a hardcoded secret: %+v", v)
		}
	}
}

type semStub struct{ text string }

func (s *semStub) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: s.text}, nil
}

func TestRun_HybridMergeThroughPipeline(t *testing.T) {
	// The model confirms the pattern hit on the same line with a confidence.
	stub := &semStub{text: `[
  {"control_id": "CC6.7", "severity": "critical",
   "description": "credential literal", "line_number": 1,
   "code_snippet": "password = 'admin123'", "confidence": 85,
   "reasoning": "confirmed literal credential"}
]`}
	analyzer := semantic.NewAnalyzer(stub, nil, "claude-sonnet-4-5", nil)
	p := newTestPipeline(WithAnalyzer(analyzer), WithMode(soc2.ModeAnalyzeAll))

	state := soc2.NewAgentState("settings.py", "password = 'admin123'\n", soc2.FrameworkUnknown)
	res := p.Run(context.Background(), state)
	if !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}

	var hybrid *soc2.Violation
	for i := range state.Violations {
		if state.Violations[i].DetectionMethod == soc2.MethodHybrid {
			hybrid = &state.Violations[i]
		}
	}
	if hybrid == nil {
		t.Fatalf("expected a hybrid violation, got %+v", state.Violations)
	}
	if hybrid.ConfidenceScore == nil || *hybrid.ConfidenceScore != 85 {
		t.Errorf("hybrid should carry the model's confidence, got %v", hybrid.ConfidenceScore)
	}
	if hybrid.PatternReasoning == "" || hybrid.SemanticReasoning == "" {
		t.Error("hybrid should carry both reasoning strings")
	}
}

func TestRun_RegexOnlyNeverCallsModel(t *testing.T) {
	called := false
	stub := clientFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		called = true
		return &llm.Response{Text: "[]"}, nil
	})
	analyzer := semantic.NewAnalyzer(stub, nil, "claude-sonnet-4-5", nil)
	p := newTestPipeline(WithAnalyzer(analyzer), WithMode(soc2.ModeRegexOnly))

	state := soc2.NewAgentState("settings.py", "password = 'admin123'\n", soc2.FrameworkUnknown)
	if res := p.Run(context.Background(), state); !res.Success {
		t.Fatalf("expected success, got error %q", state.Error)
	}
	if called {
		t.Error("regex_only must not invoke the model")
	}
}

type clientFunc func(context.Context, llm.Request) (*llm.Response, error)

func (f clientFunc) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}
