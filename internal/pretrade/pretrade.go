// Package pretrade inspects order mechanics for the candidate order.
// It is a separate type in a separate package from the risk gate, with
// its own configuration and its own portfolio view; the isolation is
// enforced by a dependency test, not convention.
package pretrade

import (
	"math"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/models"
)

// Rules is the gate's configuration, disjoint from the risk gate's
// limits.
type Rules struct {
	MinNotional      float64
	MaxNotional      float64
	PriceBandPercent float64
	MaxOpenOrders    int
}

// OrderView is the gate's own projection of the candidate order and the
// order-book side of the snapshot. It shares no fields with the risk
// gate's view.
type OrderView struct {
	Side           models.Vote
	Notional       float64
	LimitPrice     float64
	ReferencePrice float64
	OpenOrders     int
}

// ViewFromOrder projects the candidate order and snapshot into the
// gate's view.
func ViewFromOrder(order models.CandidateOrder, snap *models.PortfolioSnapshot) OrderView {
	return OrderView{
		Side:           order.Side,
		Notional:       order.Notional,
		LimitPrice:     order.LimitPrice,
		ReferencePrice: order.ReferencePrice,
		OpenOrders:     snap.OpenOrders,
	}
}

// Gate runs the ordered order-mechanics inspections.
type Gate struct {
	rules  Rules
	logger zerolog.Logger
}

// NewGate creates a pre-trade gate with the given rules.
func NewGate(rules Rules, logger zerolog.Logger) *Gate {
	return &Gate{rules: rules, logger: logger}
}

type inspection struct {
	name string
	ok   func(Rules, OrderView) bool
}

// inspections run in this fixed order; all of them always run so the
// rejection list is complete.
var inspections = []inspection{
	{
		name: "side_valid",
		ok: func(r Rules, v OrderView) bool {
			return v.Side == models.VoteBuy || v.Side == models.VoteSell || v.Side == models.VoteHold
		},
	},
	{
		name: "notional_bounds",
		ok: func(r Rules, v OrderView) bool {
			return v.Notional >= r.MinNotional && v.Notional <= r.MaxNotional
		},
	},
	{
		name: "price_band",
		ok: func(r Rules, v OrderView) bool {
			if v.LimitPrice <= 0 || v.ReferencePrice <= 0 {
				// Marketable candidates carry no limit price; nothing to band-check.
				return true
			}
			deviation := math.Abs(v.LimitPrice-v.ReferencePrice) / v.ReferencePrice * 100
			return deviation <= r.PriceBandPercent
		},
	},
	{
		name: "open_order_limit",
		ok: func(r Rules, v OrderView) bool {
			return v.OpenOrders < r.MaxOpenOrders
		},
	},
}

// Inspect runs every inspection and returns the report with the
// complete rejection list.
func (g *Gate) Inspect(view OrderView) models.PreTradeReport {
	report := models.PreTradeReport{
		Clear:      true,
		Rejections: []string{},
	}

	for _, ins := range inspections {
		if !ins.ok(g.rules, view) {
			report.Rejections = append(report.Rejections, ins.name)
			report.Clear = false
		}
	}

	if !report.Clear {
		g.logger.Warn().
			Strs("rejections", report.Rejections).
			Float64("notional", view.Notional).
			Msg("Pre-trade gate rejected candidate order")
	}
	return report
}
