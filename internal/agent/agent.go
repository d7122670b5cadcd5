// Package agent drives one file through the compliance pipeline: parse,
// classify, detect, analyze, merge, synthesize fixes, validate. The pipeline
// is a forward-only state machine; a failure at any step stops the file and
// records the cause without touching results accumulated so far.
package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/soc2guard/internal/classify"
	"github.com/lucasnoah/soc2guard/internal/detect"
	"github.com/lucasnoah/soc2guard/internal/fix"
	"github.com/lucasnoah/soc2guard/internal/merge"
	"github.com/lucasnoah/soc2guard/internal/semantic"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// Pipeline processes files through the full violation-to-fix sequence. One
// Pipeline serves a whole scan; per-file state lives in AgentState.
type Pipeline struct {
	analyzer  *semantic.Analyzer
	synth     *fix.Synthesizer
	mode      soc2.ScanMode
	tolerance int
	progress  io.Writer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAnalyzer installs the semantic analysis stage.
func WithAnalyzer(a *semantic.Analyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

// WithMode sets the scan mode that gates semantic analysis.
func WithMode(m soc2.ScanMode) Option {
	return func(p *Pipeline) { p.mode = m }
}

// WithTolerance sets the line distance within which pattern and semantic
// findings for the same control are merged.
func WithTolerance(n int) Option {
	return func(p *Pipeline) { p.tolerance = n }
}

// WithProgress sets the writer for per-step progress lines.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) { p.progress = w }
}

// NewPipeline creates a Pipeline. By default it runs pattern detection only
// (regex_only mode) with the standard merge tolerance.
func NewPipeline(synth *fix.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:     synth,
		mode:      soc2.ModeRegexOnly,
		tolerance: merge.DefaultTolerance,
		progress:  io.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.progress == nil {
		p.progress = io.Discard
	}
	return p
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	fmt.Fprintf(p.progress, format+"\n", args...)
}

// Result is the outcome of running one file through the pipeline.
type Result struct {
	State   *soc2.AgentState
	Success bool
}

// Run takes a file's state from parse to validated. On failure the state
// keeps its current step and error; results collected before the failure
// remain on the state.
func (p *Pipeline) Run(ctx context.Context, state *soc2.AgentState) *Result {
	fail := func(msg string) *Result {
		state.Fail(msg)
		p.logf("agent: %s failed at %s: %s", state.FilePath, state.CurrentStep, msg)
		return &Result{State: state, Success: false}
	}

	state.Timestamp = time.Now().UTC().Format(time.RFC3339)

	// parse
	if state.FilePath == "" {
		return fail("file path is empty")
	}
	if strings.TrimSpace(state.Code) == "" {
		return fail("code is empty")
	}

	state.Framework = classify.Framework(state.FilePath, state.Framework, state.Code)
	p.logf("agent: %s classified as %s", state.FilePath, state.Framework)

	// analyze
	pattern := detect.Violations(state.FilePath, state.Code, state.Framework)
	p.logf("agent: %s pattern stage found %d violation(s)", state.FilePath, len(pattern))

	var sem []soc2.Violation
	if p.analyzer != nil && semantic.ShouldAnalyze(p.mode, state.FilePath, state.Code, len(pattern)) {
		var err error
		sem, err = p.analyzer.Analyze(ctx, state, pattern)
		if err != nil {
			return fail(fmt.Sprintf("semantic analysis: %v", err))
		}
	}

	state.Violations = merge.Violations(pattern, sem, p.tolerance)
	if err := state.Advance(soc2.StepAnalyzed); err != nil {
		return fail(err.Error())
	}

	// fixes_generated
	for _, v := range state.Violations {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Sprintf("fix synthesis: %v", err))
		}
		fx, err := p.synth.Synthesize(ctx, v)
		if err != nil {
			p.logf("agent: %s skipping fix for %s line %d: %v", state.FilePath, v.ControlID, v.LineNumber, err)
			continue
		}
		state.Fixes = append(state.Fixes, *fx)
	}
	if err := state.Advance(soc2.StepFixesGenerated); err != nil {
		return fail(err.Error())
	}

	// validated
	if err := validateResults(state); err != nil {
		return fail(err.Error())
	}
	if err := state.Advance(soc2.StepValidated); err != nil {
		return fail(err.Error())
	}

	return &Result{State: state, Success: true}
}

// validateResults checks the internal consistency of everything the pipeline
// produced before the state is marked validated.
func validateResults(state *soc2.AgentState) error {
	for i := range state.Violations {
		if err := state.Violations[i].Validate(); err != nil {
			return fmt.Errorf("violation %d: %w", i, err)
		}
	}
	for i, fx := range state.Fixes {
		if !soc2.ValidControlID(fx.ControlID) {
			return fmt.Errorf("fix %d: unknown control id %q", i, fx.ControlID)
		}
		if fx.FixedCode == "" {
			return fmt.Errorf("fix %d: empty fixed code", i)
		}
		switch fx.TrustLevel {
		case soc2.TrustAuto, soc2.TrustReview, soc2.TrustManual:
		default:
			return fmt.Errorf("fix %d: unrecognized trust level %q", i, fx.TrustLevel)
		}
	}
	return nil
}
