package enforcement

import (
	"encoding/json"
	"fmt"
)

// Verdict is the outcome class of an evaluation.
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictReject   Verdict = "reject"
	VerdictEscalate Verdict = "escalate"
)

// Decision is the result of evaluating a proposed invocation. Token is set
// only on Allow; Tier is set whenever a pattern matched. Denials are
// routine outcomes, not errors, so evaluation never fails.
type Decision struct {
	Verdict Verdict
	Tier    Tier
	Reason  string
	Token   Token
}

// GrantChecker answers whether a previously escalated (tool, command) pair
// has standing human approval. Implemented by the approval service.
type GrantChecker interface {
	Approved(tool, command string) bool
}

// Evaluate classifies a proposed invocation against the policy. The
// invocation always transitions to Evaluated, whatever the verdict.
func Evaluate(proposal Proposed, policy *Policy) (*Evaluated, Decision) {
	return EvaluateWithGrants(proposal, policy, nil)
}

// EvaluateWithGrants is Evaluate plus the escalation resolution path: a
// Commit-tier match that has standing approval becomes Allow instead of
// Escalate. Token issuance still happens only here.
func EvaluateWithGrants(proposal Proposed, policy *Policy, grants GrantChecker) (*Evaluated, Decision) {
	inv := proposal.transition()

	command, ok := extractCommand(inv.params)
	if !ok {
		return inv, Decision{Verdict: VerdictReject, Reason: "no command to evaluate"}
	}

	if policy == nil {
		return inv, Decision{Verdict: VerdictReject, Reason: "no policy loaded"}
	}

	tool, ok := policy.FindTool(inv.tool)
	if !ok {
		return inv, Decision{Verdict: VerdictReject, Reason: fmt.Sprintf("tool %q is not in the policy", inv.tool)}
	}
	if !tool.Enabled() {
		return inv, Decision{Verdict: VerdictReject, Reason: fmt.Sprintf("tool %q is disabled", inv.tool)}
	}

	tier, ok := tool.MatchTier(command)
	if !ok {
		return inv, Decision{Verdict: VerdictReject, Reason: "command matches no declared tier"}
	}

	if tier == TierCommit {
		if grants != nil && grants.Approved(inv.tool, command) {
			return inv, Decision{
				Verdict: VerdictAllow,
				Tier:    tier,
				Reason:  "commit tier, approved escalation",
				Token:   issueToken(tier, inv.id),
			}
		}
		return inv, Decision{Verdict: VerdictEscalate, Tier: tier, Reason: "commit tier requires approval"}
	}

	return inv, Decision{Verdict: VerdictAllow, Tier: tier, Token: issueToken(tier, inv.id)}
}

// extractCommand pulls the "command" string out of the parameter bag.
// Missing, non-string, or empty commands report false; such invocations
// are rejected without touching the pattern matcher.
func extractCommand(params json.RawMessage) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(params, &bag); err != nil {
		return "", false
	}
	raw, ok := bag["command"]
	if !ok {
		return "", false
	}
	var command string
	if err := json.Unmarshal(raw, &command); err != nil {
		return "", false
	}
	if command == "" {
		return "", false
	}
	return command, true
}
