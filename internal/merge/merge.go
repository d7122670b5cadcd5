// Package merge reconciles pattern and semantic violations for one file into
// a single list, combining pairs that describe the same underlying issue into
// hybrid records.
package merge

import "github.com/lucasnoah/soc2guard/internal/soc2"

// DefaultTolerance is the line window within which a pattern and a semantic
// violation for the same control are considered the same issue.
const DefaultTolerance = 3

// Violations merges the two lists. A semantic violation that shares a control
// id with a pattern violation whose line is within the tolerance window is
// folded into one hybrid violation: the pattern match keeps its exact
// location and snippet, the semantic side contributes the confidence score,
// and both reasoning strings are retained. Unmatched violations of either
// kind pass through unchanged.
//
// Output ordering is deterministic: pattern-stage ordering first (merged or
// not), then unmatched semantic violations in their input order. The result
// never exceeds len(pattern) + len(semantic) entries, and running the merge
// again over the same inputs yields the same result.
func Violations(pattern, semantic []soc2.Violation, tolerance int) []soc2.Violation {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}

	merged := make([]soc2.Violation, len(pattern))
	copy(merged, pattern)

	var leftover []soc2.Violation
	consumed := make([]bool, len(pattern))

	for _, sv := range semantic {
		idx := -1
		for i, pv := range pattern {
			if consumed[i] {
				continue
			}
			if pv.ControlID != sv.ControlID {
				continue
			}
			if abs(pv.LineNumber-sv.LineNumber) <= tolerance {
				idx = i
				break
			}
		}
		if idx == -1 {
			leftover = append(leftover, sv)
			continue
		}

		consumed[idx] = true
		hybrid := merged[idx]
		hybrid.DetectionMethod = soc2.MethodHybrid
		hybrid.ConfidenceScore = sv.ConfidenceScore
		hybrid.SemanticReasoning = sv.SemanticReasoning
		if hybrid.Description == "" {
			hybrid.Description = sv.Description
		}
		merged[idx] = hybrid
	}

	return append(merged, leftover...)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
