package core

import (
	"context"
	"errors"
	"time"
)

// Predictor errors. All of them are recovered locally by falling back to
// rule mode; none is ever surfaced as fatal.
var (
	// ErrPredictorTimeout indicates the predictor did not answer within
	// the configured call timeout.
	ErrPredictorTimeout = errors.New("predictor call timed out")
	// ErrPredictorUnavailable indicates a transport or service failure.
	ErrPredictorUnavailable = errors.New("predictor unavailable")
	// ErrPredictorLowConfidence indicates the predictor answered below the
	// configured confidence threshold.
	ErrPredictorLowConfidence = errors.New("predictor confidence below threshold")
)

// PredictRequest carries one station's current metrics and candidate set
// to the external predictor.
type PredictRequest struct {
	StationID  string         `json:"station_id"`
	Serving    MetricSample   `json:"serving"`
	Candidates []MetricSample `json:"candidates"`
}

// PredictResponse is the predictor's recommendation.
type PredictResponse struct {
	// Action is "stay" or "handover".
	Action string `json:"action"`
	// TargetCellID is set when Action is "handover".
	TargetCellID string `json:"target_cell"`
	// Confidence in [0,1]; recommendations below the policy threshold
	// are discarded.
	Confidence float64 `json:"confidence"`
}

// HandoverFeedback reports an applied handover back to the predictor for
// later retraining. Posting it is best-effort and never blocks the
// decision path.
type HandoverFeedback struct {
	StationID  string    `json:"station_id"`
	FromCellID string    `json:"from_cell"`
	ToCellID   string    `json:"to_cell"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     Reason    `json:"reason"`
}

// PredictorClient is the only boundary to the external ML service. The
// core consumes this narrow predict/feedback contract and nothing else.
type PredictorClient interface {
	Predict(ctx context.Context, req PredictRequest) (PredictResponse, error)
	Feedback(ctx context.Context, fb HandoverFeedback) error
}
