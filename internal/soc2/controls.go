package soc2

import "fmt"

// ControlID names a SOC 2 control in the registry.
type ControlID string

const (
	ControlAccessControl ControlID = "CC6.1"
	ControlSecrets       ControlID = "CC6.7"
	ControlAuditLogging  ControlID = "CC7.2"
	ControlResilience    ControlID = "A1.2"
)

// UnknownControlError is returned for lookups of control ids that are not in
// the registry. It indicates a registry/data mismatch, not a runtime
// condition, so callers should fail fast.
type UnknownControlError struct {
	ID ControlID
}

func (e *UnknownControlError) Error() string {
	return fmt.Sprintf("unknown control id %q", e.ID)
}

// Control is one entry in the registry: pure data, no behavior.
type Control struct {
	ID             ControlID `json:"id"`
	Name           string    `json:"name"`
	Requirement    string    `json:"requirement"`
	AnalysisPrompt string    `json:"-"`
	FixPrompt      string    `json:"-"`
}

// controlOrder fixes the iteration order for detectors and prompts.
var controlOrder = []ControlID{
	ControlAccessControl,
	ControlSecrets,
	ControlAuditLogging,
	ControlResilience,
}

var registry = map[ControlID]Control{
	ControlAccessControl: {
		ID:          ControlAccessControl,
		Name:        "Logical Access Controls",
		Requirement: "The entity implements logical access security software, infrastructure, and architectures over protected information assets to protect them from security events. Request-handling code must verify the caller is authenticated and authorized before serving protected resources.",
		AnalysisPrompt: `Review the code for CC6.1 (logical access control) violations.

Look for request handlers, routes, or views that serve protected resources
without an authentication decorator, middleware, or guard appropriate to the
{framework} framework. Also flag authorization checks that can be bypassed.

Candidates already found by the pattern stage:
{violations}

Source code:
{code}`,
		FixPrompt: `A CC6.1 access control violation was found:

{description}

Offending code:
{code_snippet}

Produce a corrected version that enforces authentication before the handler
runs, using the idiomatic guard for the framework in use. Keep the handler's
behavior otherwise unchanged.`,
	},
	ControlSecrets: {
		ID:          ControlSecrets,
		Name:        "Secrets and Transmission Security",
		Requirement: "The entity restricts the transmission, movement, and removal of information to authorized users and protects it during transmission. Credentials must not be hardcoded in source, and data in transit must use encrypted channels.",
		AnalysisPrompt: `Review the code for CC6.7 (secrets management and transmission security)
violations.

Look for credentials, API keys, tokens, or connection strings bound to
literal values, and for outbound calls over unencrypted transport
(http:// instead of https://). Framework: {framework}.

Candidates already found by the pattern stage:
{violations}

Source code:
{code}`,
		FixPrompt: `A CC6.7 secrets/transmission violation was found:

{description}

Offending code:
{code_snippet}

Produce a corrected version that reads the secret from the environment (with
a presence check) or upgrades the transport to an encrypted channel.`,
	},
	ControlAuditLogging: {
		ID:          ControlAuditLogging,
		Name:        "System Monitoring and Audit Logging",
		Requirement: "The entity monitors system components and the operation of those components for anomalies. State-mutating operations must emit an audit log entry so that changes to protected data are traceable.",
		AnalysisPrompt: `Review the code for CC7.2 (audit logging) violations.

Look for operations that create, update, or delete persistent state with no
logging call nearby, so the mutation would be invisible to an audit trail.
Framework: {framework}.

Candidates already found by the pattern stage:
{violations}

Source code:
{code}`,
		FixPrompt: `A CC7.2 audit logging violation was found:

{description}

Offending code:
{code_snippet}

Produce a corrected version that emits a structured log entry recording the
mutation (actor, action, target) next to the flagged statement.`,
	},
	ControlResilience: {
		ID:          ControlResilience,
		Name:        "Availability and Resilience",
		Requirement: "The entity authorizes, designs, develops, implements, operates, and maintains environmental protections and recovery infrastructure to meet its availability commitments. Calls to external services must handle failure so one dependency outage does not cascade.",
		AnalysisPrompt: `Review the code for A1.2 (resilience) violations.

Look for outbound network or service calls with no error handling, timeout,
or retry, where a dependency failure would propagate unhandled.
Framework: {framework}.

Candidates already found by the pattern stage:
{violations}

Source code:
{code}`,
		FixPrompt: `An A1.2 resilience violation was found:

{description}

Offending code:
{code_snippet}

Produce a corrected version that wraps the call in error handling with a
bounded retry and surfaces the failure cleanly after retries are exhausted.`,
	},
}

// Controls returns the registry entries in their fixed order.
func Controls() []Control {
	out := make([]Control, 0, len(controlOrder))
	for _, id := range controlOrder {
		out = append(out, registry[id])
	}
	return out
}

// Lookup returns the registry entry for a control id.
func Lookup(id ControlID) (*Control, error) {
	c, ok := registry[id]
	if !ok {
		return nil, &UnknownControlError{ID: id}
	}
	return &c, nil
}

// ValidControlID returns true if the id is in the registry.
func ValidControlID(id ControlID) bool {
	_, ok := registry[id]
	return ok
}

// AnalysisPrompt returns the analysis prompt template for a control.
func AnalysisPrompt(id ControlID) (string, error) {
	c, err := Lookup(id)
	if err != nil {
		return "", err
	}
	return c.AnalysisPrompt, nil
}

// FixPrompt returns the fix prompt template for a control.
func FixPrompt(id ControlID) (string, error) {
	c, err := Lookup(id)
	if err != nil {
		return "", err
	}
	return c.FixPrompt, nil
}
