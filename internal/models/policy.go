package models

// PolicyVerdict is the qualitative judgment from the policy-verdict
// collaborator.
type PolicyVerdict string

const (
	VerdictApprove PolicyVerdict = "APPROVE"
	VerdictNeutral PolicyVerdict = "NEUTRAL"
	VerdictBlock   PolicyVerdict = "BLOCK"
)

// PolicyResult is the policy gate's output. A BLOCK below the veto floor
// is downgraded to NEUTRAL before any gate logic sees it; the downgrade
// is recorded, never silent.
type PolicyResult struct {
	Verdict    PolicyVerdict `json:"verdict"`
	Confidence float64       `json:"confidence"`
	Mode       string        `json:"mode"`
	Rationale  string        `json:"rationale"`
	Downgraded bool          `json:"downgraded"`
}

// Blocks reports whether this result vetoes the run. Downgrade has
// already run by the time gate logic calls this, so a surviving BLOCK
// always carries veto authority.
func (p *PolicyResult) Blocks() bool {
	return p != nil && p.Verdict == VerdictBlock
}
