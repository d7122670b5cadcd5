package soc2

import "fmt"

// Framework identifies the web framework a file belongs to.
type Framework string

const (
	FrameworkDjango  Framework = "django"
	FrameworkFlask   Framework = "flask"
	FrameworkExpress Framework = "express"
	FrameworkNextJS  Framework = "nextjs"
	FrameworkReact   Framework = "react"
	FrameworkUnknown Framework = "unknown"
)

// Family groups frameworks by source language for detector dispatch.
type Family string

const (
	FamilyPython  Family = "python"
	FamilyNode    Family = "node"
	FamilyUnknown Family = "unknown"
)

// Family returns the language family for a framework.
func (f Framework) Family() Family {
	switch f {
	case FrameworkDjango, FrameworkFlask:
		return FamilyPython
	case FrameworkExpress, FrameworkNextJS, FrameworkReact:
		return FamilyNode
	default:
		return FamilyUnknown
	}
}

// IsValid returns true if the framework is a recognized value.
func (f Framework) IsValid() bool {
	switch f {
	case FrameworkDjango, FrameworkFlask, FrameworkExpress, FrameworkNextJS, FrameworkReact, FrameworkUnknown:
		return true
	default:
		return false
	}
}

// Step is a stage in the per-file pipeline. Steps only move forward.
type Step string

const (
	StepParse          Step = "parse"
	StepAnalyzed       Step = "analyzed"
	StepFixesGenerated Step = "fixes_generated"
	StepValidated      Step = "validated"
)

// stepOrder gives each step its position in the pipeline.
var stepOrder = map[Step]int{
	StepParse:          0,
	StepAnalyzed:       1,
	StepFixesGenerated: 2,
	StepValidated:      3,
}

// Ordinal returns the step's position, or -1 for unknown steps.
func (s Step) Ordinal() int {
	if o, ok := stepOrder[s]; ok {
		return o
	}
	return -1
}

// Severity classifies how serious a violation is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// DetectionMethod records which detector produced a violation.
type DetectionMethod string

const (
	MethodPattern  DetectionMethod = "pattern"
	MethodSemantic DetectionMethod = "semantic"
	MethodHybrid   DetectionMethod = "hybrid"
)

// TrustLevel classifies how much review a synthesized fix needs before applying.
type TrustLevel string

const (
	TrustAuto   TrustLevel = "auto"
	TrustReview TrustLevel = "review"
	TrustManual TrustLevel = "manual"
)

// ScanMode controls when the semantic analyzer runs.
type ScanMode string

const (
	ModeRegexOnly  ScanMode = "regex_only"
	ModeSmart      ScanMode = "smart"
	ModeAnalyzeAll ScanMode = "analyze_all"
)

// IsValid returns true if the scan mode is a recognized value.
func (m ScanMode) IsValid() bool {
	switch m {
	case ModeRegexOnly, ModeSmart, ModeAnalyzeAll:
		return true
	default:
		return false
	}
}

// Violation is one detected compliance issue in a file.
type Violation struct {
	ControlID         ControlID       `json:"control_id"`
	Severity          Severity        `json:"severity"`
	Description       string          `json:"description"`
	FilePath          string          `json:"file_path"`
	LineNumber        int             `json:"line_number"`
	CodeSnippet       string          `json:"code_snippet"`
	DetectionMethod   DetectionMethod `json:"detection_method"`
	ConfidenceScore   *int            `json:"confidence_score,omitempty"`
	PatternReasoning  string          `json:"pattern_reasoning,omitempty"`
	SemanticReasoning string          `json:"semantic_reasoning,omitempty"`
}

// Validate checks the violation's internal consistency: confidence scores are
// present exactly for semantic and hybrid findings, and hybrid findings carry
// both reasoning strings.
func (v *Violation) Validate() error {
	if !ValidControlID(v.ControlID) {
		return &UnknownControlError{ID: v.ControlID}
	}
	switch v.DetectionMethod {
	case MethodPattern:
		if v.ConfidenceScore != nil {
			return fmt.Errorf("pattern violation must not carry a confidence score")
		}
		if v.PatternReasoning == "" {
			return fmt.Errorf("pattern violation missing pattern reasoning")
		}
	case MethodSemantic:
		if v.ConfidenceScore == nil {
			return fmt.Errorf("semantic violation missing confidence score")
		}
		if v.SemanticReasoning == "" {
			return fmt.Errorf("semantic violation missing semantic reasoning")
		}
	case MethodHybrid:
		if v.ConfidenceScore == nil {
			return fmt.Errorf("hybrid violation missing confidence score")
		}
		if v.PatternReasoning == "" || v.SemanticReasoning == "" {
			return fmt.Errorf("hybrid violation must carry both reasoning strings")
		}
	default:
		return fmt.Errorf("unrecognized detection method %q", v.DetectionMethod)
	}
	if v.ConfidenceScore != nil && (*v.ConfidenceScore < 0 || *v.ConfidenceScore > 100) {
		return fmt.Errorf("confidence score %d out of range [0,100]", *v.ConfidenceScore)
	}
	return nil
}

// Fix is a proposed remediation for one violation.
type Fix struct {
	ControlID    ControlID  `json:"control_id"`
	FilePath     string     `json:"file_path"`
	LineNumber   int        `json:"line_number"`
	OriginalCode string     `json:"original_code"`
	FixedCode    string     `json:"fixed_code"`
	Explanation  string     `json:"explanation"`
	TrustLevel   TrustLevel `json:"trust_level"`
	// AppliedAt and GitCommitSHA are populated by the external apply step.
	AppliedAt    string `json:"applied_at,omitempty"`
	GitCommitSHA string `json:"git_commit_sha,omitempty"`
}

// AgentState is the unit of work and accumulated results for one file.
type AgentState struct {
	FilePath    string      `json:"file_path"`
	Code        string      `json:"code"`
	Framework   Framework   `json:"framework"`
	Violations  []Violation `json:"violations"`
	Fixes       []Fix       `json:"fixes"`
	CurrentStep Step        `json:"current_step"`
	Error       string      `json:"error,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

// NewAgentState creates the initial state for one file at the parse step.
func NewAgentState(filePath, code string, framework Framework) *AgentState {
	if framework == "" {
		framework = FrameworkUnknown
	}
	return &AgentState{
		FilePath:    filePath,
		Code:        code,
		Framework:   framework,
		CurrentStep: StepParse,
	}
}

// Advance moves the state to the next step. It rejects transitions that skip
// a step, move backwards, or happen after an error has been recorded.
func (s *AgentState) Advance(next Step) error {
	if s.Error != "" {
		return fmt.Errorf("cannot advance to %q: state has error %q", next, s.Error)
	}
	cur := s.CurrentStep.Ordinal()
	nxt := next.Ordinal()
	if nxt == -1 {
		return fmt.Errorf("unknown step %q", next)
	}
	if nxt != cur+1 {
		return fmt.Errorf("illegal transition %q -> %q", s.CurrentStep, next)
	}
	s.CurrentStep = next
	return nil
}

// Fail records the first unrecoverable error. Later failures are ignored so
// the original cause is preserved.
func (s *AgentState) Fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
}
