package models

// QuantResult holds the output of the quant ensemble stage.
type QuantResult struct {
	// Scores maps model name to its score in [0,1]. Models that failed
	// are absent; they are never backfilled with defaults.
	Scores       map[string]float64 `json:"scores"`
	FailedModels []string           `json:"failed_models,omitempty"`

	Composite      float64 `json:"composite"`
	Dispersion     float64 `json:"dispersion"`
	HighDispersion bool    `json:"high_dispersion"`

	// Partial is set when fewer than all configured models responded.
	Partial bool `json:"partial_quant_data"`
}

// Fundamentals is the optional company snapshot handed to the policy
// provider.
type Fundamentals struct {
	CompanyName string  `json:"company_name"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry,omitempty"`
	MarketCap   float64 `json:"market_cap,omitempty"`
	PE          float64 `json:"pe,omitempty"`
	DebtEquity  float64 `json:"debt_equity,omitempty"`
}

// PortfolioSnapshot is the point-in-time read-only portfolio view taken
// once per run. Gates consume projections of it, never the snapshot
// itself mid-check.
type PortfolioSnapshot struct {
	Positions      []Position         `json:"positions"`
	Cash           float64            `json:"cash"`
	TotalValue     float64            `json:"total_value"`
	SectorExposure map[string]float64 `json:"sector_exposure"`
	Correlations   map[string]float64 `json:"correlations,omitempty"`
	OpenOrders     int                `json:"open_orders"`
}

// Position is one open holding in the portfolio snapshot.
type Position struct {
	Symbol string  `json:"symbol"`
	Sector string  `json:"sector"`
	Value  float64 `json:"value"`
}

// CandidateOrder describes the order the gates inspect. The notional is
// the position-size cap: gates screen the worst case, the arbiter sets
// the actual size afterwards.
type CandidateOrder struct {
	Symbol         string  `json:"symbol"`
	Side           Vote    `json:"side"`
	Notional       float64 `json:"notional"`
	LimitPrice     float64 `json:"limit_price"`
	ReferencePrice float64 `json:"reference_price"`
}
