package core

import (
	"strings"
	"time"
)

// Action is what the decision engine tells the ledger to do with a station.
type Action string

const (
	// ActionStay keeps the current serving cell.
	ActionStay Action = "STAY"
	// ActionHandover switches the station to TargetCellID.
	ActionHandover Action = "HANDOVER"
)

// Reason records what triggered a decision. Fallback reasons mark decisions
// that degraded to the rule result because the predictor failed.
type Reason string

const (
	ReasonA3                    Reason = "A3"
	ReasonML                    Reason = "ML"
	ReasonFallbackTimeout       Reason = "FALLBACK_TIMEOUT"
	ReasonFallbackLowConfidence Reason = "FALLBACK_LOW_CONFIDENCE"
	ReasonFallbackError         Reason = "FALLBACK_ERROR"
)

// IsFallback reports whether the reason marks a degraded decision path.
func (r Reason) IsFallback() bool {
	return strings.HasPrefix(string(r), "FALLBACK_")
}

// Decision is the outcome of evaluating one station on one tick.
type Decision struct {
	Action       Action
	TargetCellID string
	Reason       Reason

	// Confidence is the predictor's confidence when Reason is ML;
	// zero otherwise.
	Confidence float64
}

// DecisionInput is everything the strategies need to evaluate one station
// on one tick. It carries values, not ledger references, so per-station
// evaluation can run in parallel without touching shared state.
type DecisionInput struct {
	StationID string
	Now       time.Time

	// Serving is this tick's measurement of the serving cell.
	Serving MetricSample

	// Candidates are this tick's measurements of all other visible
	// cells. The serving cell is not in the slice.
	Candidates []MetricSample

	// TrendSlopes maps cell IDs to RSRP slopes (dB per second) over
	// recent history. Populated only when hybrid trend tie-breaking is
	// active; missing entries mean "not enough history".
	TrendSlopes map[string]float64
}
