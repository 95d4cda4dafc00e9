package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

// ArgueContext is the input to one debate argument call. Opponent holds
// the other side's latest argument and is empty for opening rounds.
type ArgueContext struct {
	Symbol    string
	Composite float64
	Scores    map[string]float64
	Policy    *models.PolicyResult
	Round     int
	Opponent  string
}

// VoteContext is the input to one panel member ballot call.
type VoteContext struct {
	Symbol      string
	MemberID    string
	Perspective string
	Transcript  []models.DebateRound
	Composite   float64
	Scores      map[string]float64
	Policy      *models.PolicyResult
}

// Ballot is a panel member's structured vote.
type Ballot struct {
	Vote       models.Vote `json:"vote"`
	Rationale  string      `json:"rationale"`
	Confidence float64     `json:"confidence"`
}

// Judgment is the judge's classification of a finished debate.
type Judgment struct {
	Outcome   models.DebateOutcome `json:"outcome"`
	Action    models.Vote          `json:"action,omitempty"`
	Rationale string               `json:"rationale"`
}

// BullReasoner argues the long case. It is bound to exactly one
// upstream source at construction; there is no runtime provider switch,
// so it can never be substituted by the bear's source.
type BullReasoner struct {
	client Completer
}

// NewBullReasoner creates the bull side bound to the given source.
func NewBullReasoner(client Completer) *BullReasoner {
	return &BullReasoner{client: client}
}

// Argue produces the bull argument for one round.
func (r *BullReasoner) Argue(ctx context.Context, ac ArgueContext) (models.Argument, error) {
	return argue(ctx, r.client, "bull", bullSystemPrompt, ac)
}

// BearReasoner argues the short case, bound to its own fixed source.
type BearReasoner struct {
	client Completer
}

// NewBearReasoner creates the bear side bound to the given source.
func NewBearReasoner(client Completer) *BearReasoner {
	return &BearReasoner{client: client}
}

// Argue produces the bear argument for one round.
func (r *BearReasoner) Argue(ctx context.Context, ac ArgueContext) (models.Argument, error) {
	return argue(ctx, r.client, "bear", bearSystemPrompt, ac)
}

const bullSystemPrompt = `You are the bull-side analyst in a structured trading debate.
Argue the strongest honest case for buying the symbol, grounded in the quant scores and policy verdict you are given.
Respond with JSON only: {"text": "<argument>", "confidence": <0..1>}`

const bearSystemPrompt = `You are the bear-side analyst in a structured trading debate.
Argue the strongest honest case against buying the symbol, grounded in the quant scores and policy verdict you are given.
Respond with JSON only: {"text": "<argument>", "confidence": <0..1>}`

func argue(ctx context.Context, client Completer, role, systemPrompt string, ac ArgueContext) (models.Argument, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\nComposite score: %.3f\n", ac.Symbol, ac.Composite)
	for name, score := range ac.Scores {
		fmt.Fprintf(&sb, "Model %s: %.3f\n", name, score)
	}
	if ac.Policy != nil {
		fmt.Fprintf(&sb, "Policy verdict: %s (confidence %.2f): %s\n",
			ac.Policy.Verdict, ac.Policy.Confidence, ac.Policy.Rationale)
	}
	if ac.Opponent != "" {
		fmt.Fprintf(&sb, "\nRound %d. Your opponent's latest argument:\n%s\n\nRebut it.", ac.Round, ac.Opponent)
	} else {
		fmt.Fprintf(&sb, "\nRound %d. Present your opening argument.", ac.Round)
	}

	raw, err := client.CompleteWithSystem(ctx, systemPrompt, sb.String())
	if err != nil {
		return models.Argument{}, errors.NewProviderError(client.Name(), role, "argue", err)
	}

	var arg models.Argument
	if err := json.Unmarshal(extractJSON(raw), &arg); err != nil {
		return models.Argument{}, errors.NewProviderError(client.Name(), role, "argue",
			errors.Wrap(errors.ErrMalformedResponse, err.Error()))
	}
	if arg.Text == "" {
		return models.Argument{}, errors.NewProviderError(client.Name(), role, "argue", errors.ErrMalformedResponse)
	}
	arg.Confidence = clamp01(arg.Confidence)
	return arg, nil
}

// Judge classifies a finished debate. The primary source is tried
// first; on failure the secondary produces the classification. This is
// the only reasoning role with a cross-source fallback.
type Judge struct {
	primary  Completer
	fallback Completer
}

// NewJudge creates a judge with its documented primary/fallback pair.
func NewJudge(primary, fallback Completer) *Judge {
	return &Judge{primary: primary, fallback: fallback}
}

const judgeSystemPrompt = `You are a neutral judge reviewing a bull/bear trading debate.
Classify whether the two sides converged. Respond with JSON only:
{"outcome": "AGREEMENT" | "DISAGREEMENT", "action": "BUY" | "SELL" | "HOLD", "rationale": "<one paragraph>"}
Set "action" only when the outcome is AGREEMENT.`

// Classify returns the judgment and whether the fallback source was used.
func (j *Judge) Classify(ctx context.Context, symbol string, transcript []models.DebateRound) (Judgment, bool, error) {
	prompt := renderTranscript(symbol, transcript)

	raw, err := j.primary.CompleteWithSystem(ctx, judgeSystemPrompt, prompt)
	fellBack := false
	if err != nil {
		raw, err = j.fallback.CompleteWithSystem(ctx, judgeSystemPrompt, prompt)
		if err != nil {
			return Judgment{}, false, errors.NewProviderError(j.fallback.Name(), "judge", "classify", err)
		}
		fellBack = true
	}

	var jd Judgment
	if err := json.Unmarshal(extractJSON(raw), &jd); err != nil {
		return Judgment{}, fellBack, errors.NewProviderError(j.sourceName(fellBack), "judge", "classify",
			errors.Wrap(errors.ErrMalformedResponse, err.Error()))
	}
	if jd.Outcome != models.DebateAgreement && jd.Outcome != models.DebateDisagreement {
		return Judgment{}, fellBack, errors.NewProviderError(j.sourceName(fellBack), "judge", "classify",
			errors.ErrMalformedResponse)
	}
	if jd.Outcome == models.DebateDisagreement {
		jd.Action = ""
	}
	return jd, fellBack, nil
}

func (j *Judge) sourceName(fellBack bool) string {
	if fellBack {
		return j.fallback.Name()
	}
	return j.primary.Name()
}

// PanelReasoner casts one structured vote given the full debate record.
type PanelReasoner struct {
	client Completer
}

// NewPanelReasoner creates a panel member caller bound to the given source.
func NewPanelReasoner(client Completer) *PanelReasoner {
	return &PanelReasoner{client: client}
}

const panelSystemPrompt = `You are an independent panel member voting on a trading decision after a bull/bear debate failed to converge.
Vote from your assigned perspective. Respond with JSON only:
{"vote": "BUY" | "SELL" | "HOLD", "rationale": "<short>", "confidence": <0..1>}`

// Vote casts the member's ballot. Invalid vote values are returned as-is
// for the aggregator to coerce and record.
func (r *PanelReasoner) Vote(ctx context.Context, vc VoteContext) (Ballot, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Member: %s\nPerspective: %s\nSymbol: %s\nComposite score: %.3f\n",
		vc.MemberID, vc.Perspective, vc.Symbol, vc.Composite)
	for name, score := range vc.Scores {
		fmt.Fprintf(&sb, "Model %s: %.3f\n", name, score)
	}
	if vc.Policy != nil {
		fmt.Fprintf(&sb, "Policy verdict: %s (confidence %.2f)\n", vc.Policy.Verdict, vc.Policy.Confidence)
	}
	sb.WriteString("\n")
	sb.WriteString(renderTranscript(vc.Symbol, vc.Transcript))

	raw, err := r.client.CompleteWithSystem(ctx, panelSystemPrompt, sb.String())
	if err != nil {
		return Ballot{}, errors.NewProviderError(r.client.Name(), "panel-member", "vote", err)
	}

	var b Ballot
	if err := json.Unmarshal(extractJSON(raw), &b); err != nil {
		return Ballot{}, errors.NewProviderError(r.client.Name(), "panel-member", "vote",
			errors.Wrap(errors.ErrMalformedResponse, err.Error()))
	}
	b.Confidence = clamp01(b.Confidence)
	return b, nil
}

func renderTranscript(symbol string, transcript []models.DebateRound) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Debate transcript for %s:\n", symbol)
	for _, round := range transcript {
		fmt.Fprintf(&sb, "Round %d bull (%.2f): %s\n", round.Number, round.Bull.Confidence, round.Bull.Text)
		fmt.Fprintf(&sb, "Round %d bear (%.2f): %s\n", round.Number, round.Bear.Confidence, round.Bear.Text)
	}
	return sb.String()
}

// extractJSON strips markdown fences and surrounding prose so the first
// JSON object in the response can be decoded.
func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
