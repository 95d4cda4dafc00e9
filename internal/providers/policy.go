package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

// PolicyProvider is the policy-verdict collaborator contract. The
// pipeline calls Verdict once per run; any retry or fallback lives
// inside the provider and is opaque to the gate.
type PolicyProvider interface {
	Verdict(ctx context.Context, symbol string, fundamentals *models.Fundamentals) (models.PolicyResult, error)
}

// LLMPolicyProvider produces the qualitative policy verdict from a
// reasoning model, with an internal fallback to a secondary source.
type LLMPolicyProvider struct {
	primary  Completer
	fallback Completer
}

// NewLLMPolicyProvider creates a policy provider with its internal
// primary/fallback pair.
func NewLLMPolicyProvider(primary, fallback Completer) *LLMPolicyProvider {
	return &LLMPolicyProvider{primary: primary, fallback: fallback}
}

const policySystemPrompt = `You are a compliance and policy reviewer for trading decisions.
Given a symbol and its fundamentals, judge whether taking a position is permissible.
Respond with JSON only:
{"verdict": "APPROVE" | "NEUTRAL" | "BLOCK", "confidence": <0..1>, "mode": "<evidentiary basis tag>", "rationale": "<short>"}`

type policyResponse struct {
	Verdict    models.PolicyVerdict `json:"verdict"`
	Confidence float64              `json:"confidence"`
	Mode       string               `json:"mode"`
	Rationale  string               `json:"rationale"`
}

// Verdict returns the policy judgment for the symbol.
func (p *LLMPolicyProvider) Verdict(ctx context.Context, symbol string, fundamentals *models.Fundamentals) (models.PolicyResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\n", symbol)
	if fundamentals != nil {
		fmt.Fprintf(&sb, "Company: %s\nSector: %s\n", fundamentals.CompanyName, fundamentals.Sector)
		if fundamentals.MarketCap > 0 {
			fmt.Fprintf(&sb, "Market cap: %.0f\n", fundamentals.MarketCap)
		}
		if fundamentals.PE != 0 {
			fmt.Fprintf(&sb, "P/E: %.2f\n", fundamentals.PE)
		}
	}

	raw, err := p.primary.CompleteWithSystem(ctx, policySystemPrompt, sb.String())
	source := p.primary
	if err != nil {
		raw, err = p.fallback.CompleteWithSystem(ctx, policySystemPrompt, sb.String())
		source = p.fallback
		if err != nil {
			return models.PolicyResult{}, errors.NewProviderError(source.Name(), "policy", "verdict", err)
		}
	}

	var out policyResponse
	if err := json.Unmarshal(extractJSON(raw), &out); err != nil {
		return models.PolicyResult{}, errors.NewProviderError(source.Name(), "policy", "verdict",
			errors.Wrap(errors.ErrMalformedResponse, err.Error()))
	}
	switch out.Verdict {
	case models.VerdictApprove, models.VerdictNeutral, models.VerdictBlock:
	default:
		return models.PolicyResult{}, errors.NewProviderError(source.Name(), "policy", "verdict",
			errors.Wrapf(errors.ErrMalformedResponse, "unknown verdict %q", out.Verdict))
	}

	return models.PolicyResult{
		Verdict:    out.Verdict,
		Confidence: clamp01(out.Confidence),
		Mode:       out.Mode,
		Rationale:  out.Rationale,
	}, nil
}
