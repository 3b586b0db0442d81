package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrPredictorRequired indicates ML or hybrid mode was configured without
// a predictor client.
var ErrPredictorRequired = errors.New("decision mode requires a predictor client")

// DecisionEngine evaluates one station per call against the process-wide
// decision policy. The engine itself is stateless across stations; all
// per-station trigger state lives in the A3State handed in by the caller,
// so evaluations of different stations can run in parallel.
type DecisionEngine struct {
	policy DecisionPolicy
	client PredictorClient
}

// NewDecisionEngine validates the policy and wires the strategy selected
// by it. client may be nil in rule mode only.
func NewDecisionEngine(policy DecisionPolicy, client PredictorClient) (*DecisionEngine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Mode != ModeRule && client == nil {
		return nil, fmt.Errorf("%w: mode %q", ErrPredictorRequired, policy.Mode)
	}
	return &DecisionEngine{policy: policy, client: client}, nil
}

// Policy returns the engine's read-only policy.
func (e *DecisionEngine) Policy() DecisionPolicy { return e.policy }

// NeedsTrends reports whether the caller should populate
// DecisionInput.TrendSlopes before evaluating.
func (e *DecisionEngine) NeedsTrends() bool {
	return e.policy.Mode == ModeHybrid && e.policy.HybridTieBreak == TieBreakTrend
}

// Evaluate runs the active strategy for one station on one tick.
//
// The A3 machine always advances, whatever the mode: it is both the rule
// strategy and the fallback baseline, and advancing it exactly once per
// tick is what makes fallback decisions identical to a pure rule-mode run.
func (e *DecisionEngine) Evaluate(ctx context.Context, in DecisionInput, a3 *A3State) Decision {
	rule := a3.Evaluate(in, e.policy.HysteresisDB, e.policy.TimeToTrigger)

	switch e.policy.Mode {
	case ModeML:
		return e.decideML(ctx, in, rule)
	case ModeHybrid:
		return e.decideHybrid(ctx, in, rule)
	default:
		return rule
	}
}

// decideML asks the predictor and applies its recommendation if the call
// succeeds within the timeout and clears the confidence threshold.
// Anything else degrades to the rule result with the specific fallback
// reason.
func (e *DecisionEngine) decideML(ctx context.Context, in DecisionInput, rule Decision) Decision {
	ctx, cancel := context.WithTimeout(ctx, e.policy.MLCallTimeout)
	defer cancel()

	resp, err := e.client.Predict(ctx, PredictRequest{
		StationID:  in.StationID,
		Serving:    in.Serving,
		Candidates: in.Candidates,
	})
	if err != nil {
		reason := ReasonFallbackError
		switch {
		case errors.Is(err, ErrPredictorTimeout) || errors.Is(err, context.DeadlineExceeded):
			reason = ReasonFallbackTimeout
		case errors.Is(err, ErrPredictorLowConfidence):
			reason = ReasonFallbackLowConfidence
		}
		return fallback(rule, reason)
	}
	if resp.Confidence < e.policy.ConfidenceThreshold {
		return fallback(rule, ReasonFallbackLowConfidence)
	}

	switch resp.Action {
	case "handover":
		if resp.TargetCellID == in.Serving.CellID {
			// A "handover" to the serving cell is a stay.
			return Decision{Action: ActionStay, Reason: ReasonML, Confidence: resp.Confidence}
		}
		if !candidateKnown(in.Candidates, resp.TargetCellID) {
			return fallback(rule, ReasonFallbackError)
		}
		return Decision{
			Action:       ActionHandover,
			TargetCellID: resp.TargetCellID,
			Reason:       ReasonML,
			Confidence:   resp.Confidence,
		}
	case "stay":
		return Decision{Action: ActionStay, Reason: ReasonML, Confidence: resp.Confidence}
	default:
		return fallback(rule, ReasonFallbackError)
	}
}

// decideHybrid runs both strategies. The ML recommendation is applied when
// it agrees with the rule result; on disagreement the configured tie-break
// picks the winner. A failed predictor call resolves exactly as in ML mode.
func (e *DecisionEngine) decideHybrid(ctx context.Context, in DecisionInput, rule Decision) Decision {
	ml := e.decideML(ctx, in, rule)
	if ml.Reason.IsFallback() {
		return ml
	}
	if ml.Action == rule.Action && ml.TargetCellID == rule.TargetCellID {
		return ml
	}

	switch e.policy.HybridTieBreak {
	case TieBreakML:
		return ml
	case TieBreakTrend:
		if preferMLByTrend(in, rule, ml) {
			return ml
		}
		return rule
	default:
		return rule
	}
}

// preferMLByTrend compares the RSRP slope of each recommendation's target
// cell; the ML recommendation wins only when its target is trending
// strictly better. Missing history counts against whichever side lacks it.
func preferMLByTrend(in DecisionInput, rule, ml Decision) bool {
	ruleSlope, ruleOK := targetSlope(in, rule)
	mlSlope, mlOK := targetSlope(in, ml)

	if !mlOK {
		return false
	}
	if !ruleOK {
		return true
	}
	return mlSlope > ruleSlope
}

// targetSlope resolves a decision to the slope of the cell it would leave
// the station on: the target for a handover, the serving cell for a stay.
func targetSlope(in DecisionInput, d Decision) (float64, bool) {
	cellID := in.Serving.CellID
	if d.Action == ActionHandover {
		cellID = d.TargetCellID
	}
	slope, ok := in.TrendSlopes[cellID]
	return slope, ok
}

func candidateKnown(candidates []MetricSample, cellID string) bool {
	for _, c := range candidates {
		if c.CellID == cellID {
			return true
		}
	}
	return false
}

// fallback degrades to the rule decision, keeping its action and target
// but recording why the predictor path was abandoned.
func fallback(rule Decision, reason Reason) Decision {
	d := rule
	d.Reason = reason
	d.Confidence = 0
	return d
}
