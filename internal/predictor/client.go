// internal/predictor/client.go
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/handover-simulator/core"
	"github.com/signalsfoundry/handover-simulator/internal/logging"
)

// CallObserver receives predictor round-trip timings. The observability
// collector satisfies it.
type CallObserver interface {
	ObservePredictorCall(d time.Duration, outcome string)
}

// Client talks JSON-over-HTTP to the external predictor service. It is
// the only component allowed to suspend during a tick, and every call it
// makes is bounded by the caller's context deadline.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
	obs     CallObserver
	tracer  trace.Tracer

	feedbackTimeout time.Duration
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithObserver attaches a call-duration observer.
func WithObserver(obs CallObserver) Option {
	return func(c *Client) {
		c.obs = obs
	}
}

// NewClient builds a predictor client for the given base URL.
func NewClient(baseURL string, log logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.Noop()
	}
	c := &Client{
		baseURL: baseURL,
		// The per-call context deadline is the real bound; this is a
		// backstop against a predictor that never closes the socket.
		http:            &http.Client{Timeout: 10 * time.Second},
		log:             log,
		tracer:          otel.Tracer("handover-simulator/predictor"),
		feedbackTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Predict posts the station's metrics and candidate set and returns the
// predictor's recommendation. Deadline expiry maps to
// core.ErrPredictorTimeout; every other failure maps to
// core.ErrPredictorUnavailable. Both are recovered by the decision engine,
// never surfaced as fatal.
func (c *Client) Predict(ctx context.Context, req core.PredictRequest) (core.PredictResponse, error) {
	ctx, span := c.tracer.Start(ctx, "predictor.predict",
		trace.WithAttributes(
			attribute.String("sim.station", req.StationID),
			attribute.Int("sim.candidates", len(req.Candidates)),
		))
	defer span.End()

	started := time.Now()
	resp, err := c.post(ctx, "/predict", req)
	if err != nil {
		outcome := "error"
		if errors.Is(err, core.ErrPredictorTimeout) {
			outcome = "timeout"
		}
		c.observe(started, outcome)
		return core.PredictResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(started, "bad_status")
		return core.PredictResponse{}, fmt.Errorf("%w: predict returned status %d", core.ErrPredictorUnavailable, resp.StatusCode)
	}

	var out core.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.observe(started, "bad_response")
		return core.PredictResponse{}, fmt.Errorf("%w: decode predict response: %v", core.ErrPredictorUnavailable, err)
	}

	c.observe(started, "ok")
	return out, nil
}

// Feedback posts an applied handover for later retraining. It is
// best-effort: the post runs detached from the caller's context and the
// method never blocks the decision path or returns a caller-visible
// failure.
func (c *Client) Feedback(ctx context.Context, fb core.HandoverFeedback) error {
	runID := logging.RunIDFromContext(ctx)
	go func() {
		bctx := context.Background()
		if runID != "" {
			bctx = logging.ContextWithRunID(bctx, runID)
		}
		bctx, cancel := context.WithTimeout(bctx, c.feedbackTimeout)
		defer cancel()

		resp, err := c.post(bctx, "/feedback", fb)
		if err != nil {
			c.log.Warn(bctx, "predictor feedback failed",
				logging.String("station", fb.StationID),
				logging.String("error", err.Error()))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.log.Warn(bctx, "predictor feedback rejected",
				logging.String("station", fb.StationID),
				logging.Int("status", resp.StatusCode))
			return
		}
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
	}()
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", core.ErrPredictorUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrPredictorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", core.ErrPredictorTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrPredictorUnavailable, err)
	}
	return resp, nil
}

func (c *Client) observe(started time.Time, outcome string) {
	if c.obs == nil {
		return
	}
	c.obs.ObservePredictorCall(time.Since(started), outcome)
}
