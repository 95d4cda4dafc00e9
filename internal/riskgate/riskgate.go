// Package riskgate evaluates portfolio-risk checks. It is deliberately
// isolated from the pre-trade gate: the two share no code beyond the
// primitive value types in models, and a dependency test keeps it that
// way.
package riskgate

import (
	"fmt"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/models"
)

// Limits is the gate's configuration, read once at construction.
type Limits struct {
	MinCashReserve           float64
	CorrelationThreshold     float64
	SectorConcentrationLimit float64
	MaxOpenPositions         int
}

// View is the gate's projection of the portfolio snapshot plus the
// candidate's exposure figures. It is built once per run from the
// point-in-time snapshot and never refreshed mid-check.
type View struct {
	Cash            float64
	TotalValue      float64
	OpenPositions   int
	CandidateSector string
	// SectorExposureAfter is the candidate sector's share of the
	// portfolio assuming the capped notional is taken.
	SectorExposureAfter float64
	// MaxCorrelation is the highest correlation between the candidate
	// and any existing position.
	MaxCorrelation float64
	// NotionalFraction is the candidate's worst-case size as a fraction
	// of portfolio value.
	NotionalFraction float64
}

// ViewFromSnapshot projects the snapshot into the gate's view for the
// given candidate.
func ViewFromSnapshot(snap *models.PortfolioSnapshot, sector string, notionalFraction float64) View {
	view := View{
		Cash:             snap.Cash,
		TotalValue:       snap.TotalValue,
		OpenPositions:    len(snap.Positions),
		CandidateSector:  sector,
		NotionalFraction: notionalFraction,
	}

	if snap.TotalValue > 0 {
		view.SectorExposureAfter = snap.SectorExposure[sector] + notionalFraction
	}
	for _, corr := range snap.Correlations {
		if corr > view.MaxCorrelation {
			view.MaxCorrelation = corr
		}
	}
	return view
}

// Gate runs the ordered risk checks.
type Gate struct {
	limits Limits
	logger zerolog.Logger
}

// NewGate creates a risk gate with the given limits.
func NewGate(limits Limits, logger zerolog.Logger) *Gate {
	return &Gate{limits: limits, logger: logger}
}

type check struct {
	name string
	pass func(Limits, View) bool
}

// checks run in this fixed order. Evaluation never stops early: the
// failure list is always complete.
var checks = []check{
	{
		name: "cash_reserve",
		pass: func(l Limits, v View) bool {
			if v.TotalValue <= 0 {
				return false
			}
			remaining := v.Cash/v.TotalValue - v.NotionalFraction
			return remaining >= l.MinCashReserve
		},
	},
	{
		name: "sector_concentration",
		pass: func(l Limits, v View) bool {
			return v.SectorExposureAfter <= l.SectorConcentrationLimit
		},
	},
	{
		name: "correlation",
		pass: func(l Limits, v View) bool {
			return v.MaxCorrelation <= l.CorrelationThreshold
		},
	},
	{
		name: "open_positions",
		pass: func(l Limits, v View) bool {
			return v.OpenPositions < l.MaxOpenPositions
		},
	},
}

// Evaluate runs every check and returns the verdict with the complete
// list of failed check names.
func (g *Gate) Evaluate(view View) models.RiskVerdict {
	verdict := models.RiskVerdict{
		Passed:       true,
		FailedChecks: []string{},
	}

	for _, c := range checks {
		if !c.pass(g.limits, view) {
			verdict.FailedChecks = append(verdict.FailedChecks, c.name)
			verdict.Passed = false
		}
	}

	if !verdict.Passed {
		g.logger.Warn().
			Strs("failed_checks", verdict.FailedChecks).
			Str("sector", view.CandidateSector).
			Msg(fmt.Sprintf("Risk gate failed %d of %d checks", len(verdict.FailedChecks), len(checks)))
	}
	return verdict
}
