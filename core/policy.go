package core

import (
	"errors"
	"fmt"
	"time"
)

// DecisionMode selects the active handover decision strategy.
type DecisionMode string

const (
	// ModeRule always uses the A3 event state machine.
	ModeRule DecisionMode = "rule"
	// ModeML delegates to the external predictor, falling back to the
	// rule result when the predictor is unavailable, slow or unsure.
	ModeML DecisionMode = "ml"
	// ModeHybrid runs both strategies and resolves disagreement via the
	// configured tie-break policy.
	ModeHybrid DecisionMode = "hybrid"
)

// HybridTieBreak decides which recommendation wins when ML and the rule
// machine disagree in hybrid mode. Precedence is a deployment knob, not
// hardcoded.
type HybridTieBreak string

const (
	// TieBreakRule applies the rule result on disagreement.
	TieBreakRule HybridTieBreak = "rule"
	// TieBreakML applies the ML recommendation on disagreement.
	TieBreakML HybridTieBreak = "ml"
	// TieBreakTrend applies the recommendation whose target cell shows
	// the better RSRP trend over recent history.
	TieBreakTrend HybridTieBreak = "trend"
)

// ErrInvalidPolicy indicates a decision policy failed validation.
var ErrInvalidPolicy = errors.New("invalid decision policy")

// DecisionPolicy is the process-wide handover configuration. It is set at
// startup and read-only during a run.
type DecisionPolicy struct {
	// HysteresisDB is the A3 margin a candidate must exceed the serving
	// cell by, in dB.
	HysteresisDB float64

	// TimeToTrigger is how long the A3 condition must hold continuously
	// before a handover is issued.
	TimeToTrigger time.Duration

	// Mode selects the decision strategy.
	Mode DecisionMode

	// ConfidenceThreshold is the minimum predictor confidence for an ML
	// recommendation to be applied.
	ConfidenceThreshold float64

	// MLCallTimeout bounds every predictor call. Expiry degrades the
	// decision to the rule result with a timeout fallback reason.
	MLCallTimeout time.Duration

	// HybridTieBreak resolves rule/ML disagreement in hybrid mode.
	HybridTieBreak HybridTieBreak

	// VisibilityRadiusM limits which cells are measured as candidates.
	VisibilityRadiusM float64

	// TickSize is the simulated time step.
	TickSize time.Duration

	// HistoryDepth bounds the per-(station, cell) metric ring buffer.
	HistoryDepth int
}

// DefaultDecisionPolicy returns the policy defaults: 2 dB hysteresis,
// zero TTT, pure rule mode.
func DefaultDecisionPolicy() DecisionPolicy {
	return DecisionPolicy{
		HysteresisDB:        2.0,
		TimeToTrigger:       0,
		Mode:                ModeRule,
		ConfidenceThreshold: 0.8,
		MLCallTimeout:       250 * time.Millisecond,
		HybridTieBreak:      TieBreakRule,
		VisibilityRadiusM:   5000,
		TickSize:            time.Second,
		HistoryDepth:        32,
	}
}

// Validate rejects policies that cannot drive a run. Configuration errors
// are fatal at setup; they are never silently coerced into defaults.
func (p DecisionPolicy) Validate() error {
	if p.HysteresisDB < 0 {
		return fmt.Errorf("%w: hysteresis %.2f dB is negative", ErrInvalidPolicy, p.HysteresisDB)
	}
	if p.TimeToTrigger < 0 {
		return fmt.Errorf("%w: time-to-trigger %s is negative", ErrInvalidPolicy, p.TimeToTrigger)
	}
	switch p.Mode {
	case ModeRule, ModeML, ModeHybrid:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
	}
	if p.Mode != ModeRule {
		if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
			return fmt.Errorf("%w: confidence threshold %.2f outside [0,1]", ErrInvalidPolicy, p.ConfidenceThreshold)
		}
		if p.MLCallTimeout <= 0 {
			return fmt.Errorf("%w: ml call timeout %s must be positive", ErrInvalidPolicy, p.MLCallTimeout)
		}
	}
	if p.Mode == ModeHybrid {
		switch p.HybridTieBreak {
		case TieBreakRule, TieBreakML, TieBreakTrend:
		default:
			return fmt.Errorf("%w: unknown hybrid tie-break %q", ErrInvalidPolicy, p.HybridTieBreak)
		}
	}
	if p.VisibilityRadiusM <= 0 {
		return fmt.Errorf("%w: visibility radius %.1f m must be positive", ErrInvalidPolicy, p.VisibilityRadiusM)
	}
	if p.TickSize <= 0 {
		return fmt.Errorf("%w: tick size %s must be positive", ErrInvalidPolicy, p.TickSize)
	}
	if p.HistoryDepth <= 0 {
		return fmt.Errorf("%w: history depth %d must be positive", ErrInvalidPolicy, p.HistoryDepth)
	}
	return nil
}
