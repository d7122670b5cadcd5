// Package detect implements the syntactic pattern detectors: one or more
// matchers per control, dispatched by framework family, operating on raw
// source text. Matchers are pure functions so a file scanned twice yields
// identical violations in identical order.
package detect

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// source is the preprocessed view of one file the matchers share.
type source struct {
	path  string
	lines []string
}

// line returns the 1-based line content.
func (s *source) line(n int) string {
	return s.lines[n-1]
}

func newSource(path, code string) *source {
	normalized := strings.ReplaceAll(code, "\r\n", "\n")
	return &source{
		path:  path,
		lines: strings.Split(normalized, "\n"),
	}
}

// matchFunc is one pure matcher: source in, violations out.
type matchFunc func(src *source, family soc2.Family) []soc2.Violation

// matchers run in fixed control order; output ordering is part of the
// detector contract.
var matchers = []struct {
	control soc2.ControlID
	fn      matchFunc
}{
	{soc2.ControlAccessControl, matchAccessControl},
	{soc2.ControlSecrets, matchSecrets},
	{soc2.ControlAuditLogging, matchAuditLogging},
	{soc2.ControlResilience, matchResilience},
}

// Violations runs every matcher against the file and returns all pattern
// violations in detector order. The unknown family runs only the
// framework-agnostic matchers.
func Violations(path, code string, framework soc2.Framework) []soc2.Violation {
	src := newSource(path, code)
	family := framework.Family()

	var out []soc2.Violation
	for _, m := range matchers {
		out = append(out, m.fn(src, family)...)
	}
	return out
}

func newViolation(src *source, control soc2.ControlID, severity soc2.Severity, lineNum int, description, reasoning string) soc2.Violation {
	return soc2.Violation{
		ControlID:        control,
		Severity:         severity,
		Description:      description,
		FilePath:         src.path,
		LineNumber:       lineNum,
		CodeSnippet:      strings.TrimSpace(src.line(lineNum)),
		DetectionMethod:  soc2.MethodPattern,
		PatternReasoning: reasoning,
	}
}

// --- CC6.1 access control ---

var (
	djangoViewRe   = regexp.MustCompile(`^def\s+(\w+)\s*\(\s*request\b`)
	flaskRouteRe   = regexp.MustCompile(`^\s*@(?:app|bp|blueprint|api)\.route\s*\(`)
	pyAuthDecoRe   = regexp.MustCompile(`@\s*(?:\w+\.)?(?:login_required|permission_required|user_passes_test|jwt_required|auth_required|requires_auth|authenticated)`)
	pyDefRe        = regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`)
	nodeRouteRe    = regexp.MustCompile(`\b(?:app|router)\.(?:get|post|put|delete|patch|all)\s*\(`)
	nodeAuthRe     = regexp.MustCompile(`(?i)requireAuth|ensureAuth|isAuthenticated|passport\.|verifyToken|checkJwt|withAuth|authenticate|authMiddleware|requireUser|ensureLoggedIn`)
	nextHandlerRe  = regexp.MustCompile(`export\s+default\s+(?:async\s+)?function\s+handler\s*\(`)
	nextSessionRe  = regexp.MustCompile(`(?i)getSession|getServerSession|getToken|withApiAuth|authorization`)
	decoratorLine  = regexp.MustCompile(`^\s*@`)
	commentOrBlank = regexp.MustCompile(`^\s*(?:#|$)`)
)

func matchAccessControl(src *source, family soc2.Family) []soc2.Violation {
	switch family {
	case soc2.FamilyPython:
		return matchPythonAccessControl(src)
	case soc2.FamilyNode:
		return matchNodeAccessControl(src)
	default:
		// Access control markers are framework-specific; unknown files get
		// no CC6.1 coverage from the pattern stage.
		return nil
	}
}

func matchPythonAccessControl(src *source) []soc2.Violation {
	var out []soc2.Violation
	for n := 1; n <= len(src.lines); n++ {
		line := src.line(n)

		if m := djangoViewRe.FindStringSubmatch(line); m != nil {
			if !pyDecoratedWithAuth(src, n) {
				out = append(out, newViolation(src, soc2.ControlAccessControl, soc2.SeverityHigh, n,
					fmt.Sprintf("Request handler %q serves requests without an authentication guard", m[1]),
					"request-handling function has no authentication decorator"))
			}
			continue
		}

		if flaskRouteRe.MatchString(line) {
			if !flaskRouteHasAuth(src, n) {
				out = append(out, newViolation(src, soc2.ControlAccessControl, soc2.SeverityHigh, n,
					"Route is registered without an authentication decorator",
					"no authentication decorator between route registration and handler"))
			}
		}
	}
	return out
}

// pyDecoratedWithAuth scans the contiguous decorator block above a def for an
// auth decorator.
func pyDecoratedWithAuth(src *source, defLine int) bool {
	for n := defLine - 1; n >= 1; n-- {
		line := src.line(n)
		if commentOrBlank.MatchString(line) {
			continue
		}
		if !decoratorLine.MatchString(line) {
			return false
		}
		if pyAuthDecoRe.MatchString(line) {
			return true
		}
	}
	return false
}

// flaskRouteHasAuth scans from the @route line down to the def for an auth
// decorator in the same block.
func flaskRouteHasAuth(src *source, routeLine int) bool {
	for n := routeLine; n <= len(src.lines) && n < routeLine+8; n++ {
		line := src.line(n)
		if pyAuthDecoRe.MatchString(line) {
			return true
		}
		if pyDefRe.MatchString(line) {
			return false
		}
	}
	return false
}

func matchNodeAccessControl(src *source) []soc2.Violation {
	var out []soc2.Violation
	for n := 1; n <= len(src.lines); n++ {
		line := src.line(n)

		if nodeRouteRe.MatchString(line) && !nodeAuthRe.MatchString(line) {
			out = append(out, newViolation(src, soc2.ControlAccessControl, soc2.SeverityHigh, n,
				"Route handler is registered without authentication middleware",
				"no auth middleware in route registration"))
			continue
		}

		if nextHandlerRe.MatchString(line) && !windowMatches(src, n, 12, nextSessionRe) {
			out = append(out, newViolation(src, soc2.ControlAccessControl, soc2.SeverityHigh, n,
				"API route handler does not check the caller's session",
				"no session or token check near the API handler"))
		}
	}
	return out
}

// windowMatches reports whether re matches any of the `after` lines following
// (and including) line n.
func windowMatches(src *source, n, after int, re *regexp.Regexp) bool {
	end := n + after
	if end > len(src.lines) {
		end = len(src.lines)
	}
	for i := n; i <= end; i++ {
		if re.MatchString(src.line(i)) {
			return true
		}
	}
	return false
}

// --- CC6.7 secrets and transport ---

var (
	secretAssignRe = regexp.MustCompile(`(?i)["']?([a-z0-9_]*(?:api[_-]?key|apikey|secret|password|passwd|pwd|auth[_-]?token|access[_-]?token|access[_-]?key|private[_-]?key|client[_-]?secret|connection[_-]?string|database[_-]?url)[a-z0-9_]*)["']?\s*(?::\s*[A-Za-z_\[\]. ]+)?\s*[:=]\s*["']([^"']{4,})["']`)
	envReadRe      = regexp.MustCompile(`os\.environ|process\.env|getenv|dotenv|secrets_manager|vaultclient|keyring`)
	placeholderRe  = regexp.MustCompile(`(?i)^(?:change_?me|placeholder|example|your[_-]|<[^>]+>$|x{4,}$|\*{4,}$)`)
	plainHTTPRe    = regexp.MustCompile(`["']http://[^"']+["']`)
	localTargetRe  = regexp.MustCompile(`http://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\])`)
	urlContextRe   = regexp.MustCompile(`(?i)requests\.|urlopen|httpx|fetch\s*\(|axios|http\.request|\burl\b|\buri\b|endpoint|base_?url|host`)
)

func matchSecrets(src *source, _ soc2.Family) []soc2.Violation {
	var out []soc2.Violation
	for n := 1; n <= len(src.lines); n++ {
		line := src.line(n)
		if commentOrBlank.MatchString(line) {
			continue
		}

		if m := secretAssignRe.FindStringSubmatch(line); m != nil {
			if !envReadRe.MatchString(line) && !placeholderRe.MatchString(m[2]) {
				out = append(out, newViolation(src, soc2.ControlSecrets, soc2.SeverityCritical, n,
					fmt.Sprintf("Hardcoded credential assigned to %q", m[1]),
					"variable named like a secret is bound to a string literal"))
			}
		}

		if plainHTTPRe.MatchString(line) && !localTargetRe.MatchString(line) && urlContextRe.MatchString(line) {
			out = append(out, newViolation(src, soc2.ControlSecrets, soc2.SeverityHigh, n,
				"Outbound call uses unencrypted http:// transport",
				"http:// URL in an outbound call context"))
		}
	}
	return out
}

// --- CC7.2 audit logging ---

var (
	pyMutationRe   = regexp.MustCompile(`(\.save\(\s*\)|\.delete\(\s*\)|\.objects\.create\(|\.bulk_create\(|session\.add\(|session\.commit\(|\.update\(\s*\w)`)
	nodeMutationRe = regexp.MustCompile(`(\.save\(\s*\)|\.create\(\s*\{|\.insertOne\(|\.insertMany\(|\.updateOne\(|\.findOneAndUpdate\(|\.deleteOne\(|\.destroy\(\s*\{|\.upsert\()`)
	loggingRe      = regexp.MustCompile(`(?i)\blog(?:ger|ging)?\b\s*[.(]|console\.(?:log|info|warn|error)|\baudit\b`)
)

// logWindow is how many lines on each side of a mutation count as "nearby".
const logWindow = 3

func matchAuditLogging(src *source, family soc2.Family) []soc2.Violation {
	var res []*regexp.Regexp
	switch family {
	case soc2.FamilyPython:
		res = []*regexp.Regexp{pyMutationRe}
	case soc2.FamilyNode:
		res = []*regexp.Regexp{nodeMutationRe}
	default:
		res = []*regexp.Regexp{pyMutationRe, nodeMutationRe}
	}

	var out []soc2.Violation
	for n := 1; n <= len(src.lines); n++ {
		line := src.line(n)
		for _, re := range res {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if !logNearby(src, n) {
				out = append(out, newViolation(src, soc2.ControlAuditLogging, soc2.SeverityMedium, n,
					fmt.Sprintf("State-mutating call %q has no nearby audit logging", strings.TrimSpace(m[1])),
					fmt.Sprintf("no logging call within %d lines of the mutation", logWindow)))
			}
			break
		}
	}
	return out
}

func logNearby(src *source, n int) bool {
	start := n - logWindow
	if start < 1 {
		start = 1
	}
	end := n + logWindow
	if end > len(src.lines) {
		end = len(src.lines)
	}
	for i := start; i <= end; i++ {
		if loggingRe.MatchString(src.line(i)) {
			return true
		}
	}
	return false
}

// --- A1.2 resilience ---

var (
	pyOutboundRe   = regexp.MustCompile(`(requests\.(?:get|post|put|delete|patch|head|request)\s*\(|urllib\.request\.urlopen\s*\(|\burlopen\s*\(|httpx\.(?:get|post|put|delete|patch)\s*\()`)
	nodeOutboundRe = regexp.MustCompile(`(\bfetch\s*\(|axios(?:\.(?:get|post|put|delete|patch|request))?\s*\(|https?\.(?:get|request)\s*\(|\bgot\s*\()`)
	pyTryRe        = regexp.MustCompile(`^\s*try\s*:`)
	jsTryRe        = regexp.MustCompile(`\btry\s*\{`)
	jsCatchRe      = regexp.MustCompile(`\.catch\s*\(|catch\s*(?:\(|\{)`)
)

// guardLookback is how far above an outbound call a try block still guards it.
const guardLookback = 10

func matchResilience(src *source, family soc2.Family) []soc2.Violation {
	type probe struct {
		re     *regexp.Regexp
		family soc2.Family
	}
	var probes []probe
	switch family {
	case soc2.FamilyPython:
		probes = []probe{{pyOutboundRe, soc2.FamilyPython}}
	case soc2.FamilyNode:
		probes = []probe{{nodeOutboundRe, soc2.FamilyNode}}
	default:
		probes = []probe{{pyOutboundRe, soc2.FamilyPython}, {nodeOutboundRe, soc2.FamilyNode}}
	}

	var out []soc2.Violation
	for n := 1; n <= len(src.lines); n++ {
		line := src.line(n)
		for _, p := range probes {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			guarded := false
			if p.family == soc2.FamilyPython {
				guarded = pyCallGuarded(src, n)
			} else {
				guarded = jsCallGuarded(src, n)
			}
			if !guarded {
				out = append(out, newViolation(src, soc2.ControlResilience, soc2.SeverityHigh, n,
					fmt.Sprintf("Outbound call %q is not wrapped in error handling", strings.TrimSpace(strings.TrimSuffix(m[1], "("))),
					"no try/except or catch guards the external call"))
			}
			break
		}
	}
	return out
}

// pyCallGuarded reports whether a try: at shallower indent appears within the
// lookback window above the call.
func pyCallGuarded(src *source, n int) bool {
	callIndent := indentOf(src.line(n))
	for i := n - 1; i >= 1 && n-i <= guardLookback; i-- {
		line := src.line(i)
		if pyTryRe.MatchString(line) && indentOf(line) < callIndent {
			return true
		}
	}
	return false
}

// jsCallGuarded accepts either an enclosing try block above or a .catch on
// the call chain within the next couple of lines.
func jsCallGuarded(src *source, n int) bool {
	for i := n - 1; i >= 1 && n-i <= guardLookback; i-- {
		if jsTryRe.MatchString(src.line(i)) {
			return true
		}
	}
	end := n + 2
	if end > len(src.lines) {
		end = len(src.lines)
	}
	for i := n; i <= end; i++ {
		if jsCatchRe.MatchString(src.line(i)) {
			return true
		}
	}
	return false
}

func indentOf(line string) int {
	count := 0
	for _, r := range line {
		switch r {
		case ' ':
			count++
		case '\t':
			count += 4
		default:
			return count
		}
	}
	return count
}
