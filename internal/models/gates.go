package models

// RiskVerdict is the risk gate's result. It shares no field or method
// with PreTradeReport: the two gates are evaluated independently and
// nothing downstream may construct one from the other.
type RiskVerdict struct {
	Passed       bool     `json:"passed"`
	FailedChecks []string `json:"failed_checks"`
}

// PreTradeReport is the pre-trade gate's result, a separate value object
// from RiskVerdict.
type PreTradeReport struct {
	Clear      bool     `json:"clear"`
	Rejections []string `json:"rejections"`
}
