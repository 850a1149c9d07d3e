package agent

import "strings"

// ApprovalDecision is the allow/deny outcome of checking a tool call
// against an ApprovalPolicy.
type ApprovalDecision struct {
	Allowed bool
	Reason  string
}

// ApprovalPolicy gates tool calls by name: an allowlist/denylist with a
// default decision when neither list matches, adapted from the teacher's
// allow/deny tool-approval shape and reused as the shared mechanism
// behind both the workflow Approval step and the trigger's
// reaction-based approval (see DESIGN.md).
type ApprovalPolicy struct {
	Allow          map[string]bool
	Deny           map[string]bool
	DefaultApprove bool
}

// NewApprovalPolicy builds a policy from allow/deny tool-name lists.
func NewApprovalPolicy(allow, deny []string, defaultApprove bool) *ApprovalPolicy {
	p := &ApprovalPolicy{
		Allow:          make(map[string]bool, len(allow)),
		Deny:           make(map[string]bool, len(deny)),
		DefaultApprove: defaultApprove,
	}
	for _, n := range allow {
		p.Allow[strings.ToLower(n)] = true
	}
	for _, n := range deny {
		p.Deny[strings.ToLower(n)] = true
	}
	return p
}

// Check decides whether toolName may run. Deny always wins over allow.
func (p *ApprovalPolicy) Check(toolName string) ApprovalDecision {
	if p == nil {
		return ApprovalDecision{Allowed: true, Reason: "no policy configured"}
	}
	name := strings.ToLower(toolName)
	if p.Deny[name] {
		return ApprovalDecision{Allowed: false, Reason: "tool denied by policy"}
	}
	if p.Allow[name] {
		return ApprovalDecision{Allowed: true, Reason: "tool allowed by policy"}
	}
	if p.DefaultApprove {
		return ApprovalDecision{Allowed: true, Reason: "default-approve"}
	}
	return ApprovalDecision{Allowed: false, Reason: "not in allowlist"}
}
