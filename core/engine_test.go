package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePredictor scripts the predictor boundary for engine tests.
type fakePredictor struct {
	resp PredictResponse
	err  error

	// block makes Predict wait for the context deadline before failing.
	block bool

	calls int
}

func (f *fakePredictor) Predict(ctx context.Context, req PredictRequest) (PredictResponse, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return PredictResponse{}, ctx.Err()
	}
	return f.resp, f.err
}

func (f *fakePredictor) Feedback(ctx context.Context, fb HandoverFeedback) error { return nil }

func mlPolicy(mode DecisionMode) DecisionPolicy {
	p := DefaultDecisionPolicy()
	p.Mode = mode
	p.TimeToTrigger = 0
	p.MLCallTimeout = 50 * time.Millisecond
	return p
}

func handoverInput() DecisionInput {
	return DecisionInput{
		StationID: "ms-1",
		Now:       time.Now(),
		Serving:   sample("cell-a", -80),
		Candidates: []MetricSample{
			sample("cell-b", -75),
			sample("cell-c", -76),
		},
	}
}

func TestNewDecisionEngineRequiresPredictorOutsideRuleMode(t *testing.T) {
	if _, err := NewDecisionEngine(mlPolicy(ModeML), nil); !errors.Is(err, ErrPredictorRequired) {
		t.Fatalf("ml mode without client: want ErrPredictorRequired, got %v", err)
	}
	if _, err := NewDecisionEngine(mlPolicy(ModeHybrid), nil); !errors.Is(err, ErrPredictorRequired) {
		t.Fatalf("hybrid mode without client: want ErrPredictorRequired, got %v", err)
	}
	if _, err := NewDecisionEngine(DefaultDecisionPolicy(), nil); err != nil {
		t.Fatalf("rule mode needs no client: %v", err)
	}
}

func TestNewDecisionEngineRejectsInvalidPolicy(t *testing.T) {
	p := DefaultDecisionPolicy()
	p.HysteresisDB = -1
	if _, err := NewDecisionEngine(p, nil); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("want ErrInvalidPolicy, got %v", err)
	}
}

func TestRuleModeFollowsA3Machine(t *testing.T) {
	policy := DefaultDecisionPolicy()
	policy.TimeToTrigger = 2 * time.Second
	e, err := NewDecisionEngine(policy, nil)
	if err != nil {
		t.Fatalf("NewDecisionEngine: %v", err)
	}

	a3 := NewA3State()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := DecisionInput{
		StationID:  "ms-1",
		Serving:    sample("cell-a", -80),
		Candidates: []MetricSample{sample("cell-b", -77)},
	}

	for i, want := range []Action{ActionStay, ActionStay, ActionHandover} {
		in.Now = t0.Add(time.Duration(i) * time.Second)
		d := e.Evaluate(context.Background(), in, a3)
		if d.Action != want || d.Reason != ReasonA3 {
			t.Fatalf("tick %d: want %s/A3, got %s/%s", i, want, d.Action, d.Reason)
		}
	}
}

func TestMLModeAppliesConfidentRecommendation(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-c", Confidence: 0.92}}
	e, err := NewDecisionEngine(mlPolicy(ModeML), f)
	if err != nil {
		t.Fatalf("NewDecisionEngine: %v", err)
	}

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Action != ActionHandover || d.TargetCellID != "cell-c" {
		t.Fatalf("want ML handover to cell-c, got %+v", d)
	}
	if d.Reason != ReasonML || d.Confidence != 0.92 {
		t.Fatalf("want reason ML with confidence 0.92, got %s/%.2f", d.Reason, d.Confidence)
	}
}

func TestMLModeTimeoutFallsBackToRuleDecision(t *testing.T) {
	f := &fakePredictor{block: true}
	e, err := NewDecisionEngine(mlPolicy(ModeML), f)
	if err != nil {
		t.Fatalf("NewDecisionEngine: %v", err)
	}

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackTimeout {
		t.Fatalf("want FALLBACK_TIMEOUT, got %s", d.Reason)
	}
	// Identical action and target to what pure rule mode would produce.
	if d.Action != ActionHandover || d.TargetCellID != "cell-b" {
		t.Fatalf("fallback must mirror the rule decision, got %+v", d)
	}
	if d.Confidence != 0 {
		t.Fatalf("fallback decisions carry no confidence, got %.2f", d.Confidence)
	}
}

func TestMLModePredictorErrorFallsBack(t *testing.T) {
	f := &fakePredictor{err: ErrPredictorUnavailable}
	e, _ := NewDecisionEngine(mlPolicy(ModeML), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackError {
		t.Fatalf("want FALLBACK_ERROR, got %s", d.Reason)
	}
	if d.Action != ActionHandover || d.TargetCellID != "cell-b" {
		t.Fatalf("fallback must mirror the rule decision, got %+v", d)
	}
}

func TestMLModeLowConfidenceFallsBack(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-c", Confidence: 0.5}}
	e, _ := NewDecisionEngine(mlPolicy(ModeML), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackLowConfidence {
		t.Fatalf("confidence 0.5 under threshold 0.8: want FALLBACK_LOW_CONFIDENCE, got %s", d.Reason)
	}
	if d.Action != ActionHandover || d.TargetCellID != "cell-b" {
		t.Fatalf("fallback must mirror the rule decision, got %+v", d)
	}
}

func TestMLModeLowConfidenceErrorFallsBack(t *testing.T) {
	// Clients may also surface the threshold breach as a typed error.
	f := &fakePredictor{err: ErrPredictorLowConfidence}
	e, _ := NewDecisionEngine(mlPolicy(ModeML), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackLowConfidence {
		t.Fatalf("want FALLBACK_LOW_CONFIDENCE, got %s", d.Reason)
	}
}

func TestMLModeUnknownTargetFallsBack(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-ghost", Confidence: 0.95}}
	e, _ := NewDecisionEngine(mlPolicy(ModeML), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackError {
		t.Fatalf("target outside the candidate set: want FALLBACK_ERROR, got %s", d.Reason)
	}
}

func TestMLModeHandoverToServingIsAStay(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-a", Confidence: 0.95}}
	e, _ := NewDecisionEngine(mlPolicy(ModeML), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Action != ActionStay || d.Reason != ReasonML {
		t.Fatalf("handover to the serving cell must resolve as an ML stay, got %+v", d)
	}
}

func TestMLModeAdvancesA3MachineEvenWhenMLDecides(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "stay", Confidence: 0.99}}
	policy := mlPolicy(ModeML)
	policy.TimeToTrigger = 2 * time.Second
	e, _ := NewDecisionEngine(policy, f)

	a3 := NewA3State()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := handoverInput()

	in.Now = t0
	e.Evaluate(context.Background(), in, a3)
	if a3.Armed() == 0 {
		t.Fatalf("the A3 machine must arm under ML mode so fallback stays deterministic")
	}

	// Predictor dies at t0+2s: the fallback must be exactly what a pure
	// rule run would have decided on this tick.
	in.Now = t0.Add(time.Second)
	e.Evaluate(context.Background(), in, a3)

	f.err = ErrPredictorUnavailable
	in.Now = t0.Add(2 * time.Second)
	d := e.Evaluate(context.Background(), in, a3)
	if d.Action != ActionHandover || d.TargetCellID != "cell-b" || d.Reason != ReasonFallbackError {
		t.Fatalf("fallback after 2s of armed history must hand over to cell-b, got %+v", d)
	}
}

func TestHybridAgreementAppliesML(t *testing.T) {
	// Rule picks cell-b (strongest); ML agrees.
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-b", Confidence: 0.9}}
	e, _ := NewDecisionEngine(mlPolicy(ModeHybrid), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonML || d.TargetCellID != "cell-b" {
		t.Fatalf("agreement must apply the ML recommendation, got %+v", d)
	}
}

func TestHybridDisagreementTieBreakRule(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-c", Confidence: 0.9}}
	policy := mlPolicy(ModeHybrid)
	policy.HybridTieBreak = TieBreakRule
	e, _ := NewDecisionEngine(policy, f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonA3 || d.TargetCellID != "cell-b" {
		t.Fatalf("rule tie-break must apply the rule decision, got %+v", d)
	}
}

func TestHybridDisagreementTieBreakML(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-c", Confidence: 0.9}}
	policy := mlPolicy(ModeHybrid)
	policy.HybridTieBreak = TieBreakML
	e, _ := NewDecisionEngine(policy, f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonML || d.TargetCellID != "cell-c" {
		t.Fatalf("ml tie-break must apply the ML recommendation, got %+v", d)
	}
}

func TestHybridDisagreementTieBreakTrend(t *testing.T) {
	f := &fakePredictor{resp: PredictResponse{Action: "handover", TargetCellID: "cell-c", Confidence: 0.9}}
	policy := mlPolicy(ModeHybrid)
	policy.HybridTieBreak = TieBreakTrend
	e, _ := NewDecisionEngine(policy, f)

	if !e.NeedsTrends() {
		t.Fatalf("trend tie-break must request trend slopes")
	}

	in := handoverInput()
	in.TrendSlopes = map[string]float64{"cell-b": -0.5, "cell-c": 1.2}
	d := e.Evaluate(context.Background(), in, NewA3State())
	if d.TargetCellID != "cell-c" {
		t.Fatalf("improving ML target must win the trend tie-break, got %+v", d)
	}

	in = handoverInput()
	in.TrendSlopes = map[string]float64{"cell-b": 1.2, "cell-c": -0.5}
	d = e.Evaluate(context.Background(), in, NewA3State())
	if d.TargetCellID != "cell-b" {
		t.Fatalf("declining ML target must lose the trend tie-break, got %+v", d)
	}

	// No history for the ML target counts against it.
	in = handoverInput()
	in.TrendSlopes = map[string]float64{"cell-b": -3}
	d = e.Evaluate(context.Background(), in, NewA3State())
	if d.TargetCellID != "cell-b" {
		t.Fatalf("ML target without history must lose, got %+v", d)
	}
}

func TestHybridPredictorFailurePassesThroughFallback(t *testing.T) {
	f := &fakePredictor{err: ErrPredictorTimeout}
	e, _ := NewDecisionEngine(mlPolicy(ModeHybrid), f)

	d := e.Evaluate(context.Background(), handoverInput(), NewA3State())
	if d.Reason != ReasonFallbackTimeout {
		t.Fatalf("hybrid mode resolves predictor failure like ML mode, got %s", d.Reason)
	}
	if d.Action != ActionHandover || d.TargetCellID != "cell-b" {
		t.Fatalf("fallback must mirror the rule decision, got %+v", d)
	}
}
