package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/handover-simulator/core"
)

func predictRequest() core.PredictRequest {
	return core.PredictRequest{
		StationID: "ms-1",
		Serving:   core.MetricSample{StationID: "ms-1", CellID: "cell-a", RSRPDBm: -80},
		Candidates: []core.MetricSample{
			{StationID: "ms-1", CellID: "cell-b", RSRPDBm: -75},
		},
	}
}

type recordedCall struct {
	duration time.Duration
	outcome  string
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *fakeObserver) ObservePredictorCall(d time.Duration, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{d, outcome})
}

func (o *fakeObserver) last(t *testing.T) recordedCall {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.calls) == 0 {
		t.Fatalf("observer saw no calls")
	}
	return o.calls[len(o.calls)-1]
}

func TestPredictSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req core.PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.StationID != "ms-1" {
			t.Errorf("station id: got %q", req.StationID)
		}
		json.NewEncoder(w).Encode(core.PredictResponse{
			Action:       "handover",
			TargetCellID: "cell-b",
			Confidence:   0.91,
		})
	}))
	defer srv.Close()

	obs := &fakeObserver{}
	c := NewClient(srv.URL, nil, WithObserver(obs))

	resp, err := c.Predict(context.Background(), predictRequest())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if resp.Action != "handover" || resp.TargetCellID != "cell-b" || resp.Confidence != 0.91 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := obs.last(t).outcome; got != "ok" {
		t.Fatalf("observer outcome: want ok, got %q", got)
	}
}

func TestPredictDeadlineMapsToTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	obs := &fakeObserver{}
	c := NewClient(srv.URL, nil, WithObserver(obs))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Predict(ctx, predictRequest())
	if !errors.Is(err, core.ErrPredictorTimeout) {
		t.Fatalf("want ErrPredictorTimeout, got %v", err)
	}
	if got := obs.last(t).outcome; got != "timeout" {
		t.Fatalf("observer outcome: want timeout, got %q", got)
	}
}

func TestPredictServerErrorMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Predict(context.Background(), predictRequest())
	if !errors.Is(err, core.ErrPredictorUnavailable) {
		t.Fatalf("want ErrPredictorUnavailable, got %v", err)
	}
}

func TestPredictConnectionRefusedMapsToUnavailable(t *testing.T) {
	// A closed server refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Predict(context.Background(), predictRequest())
	if !errors.Is(err, core.ErrPredictorUnavailable) {
		t.Fatalf("want ErrPredictorUnavailable, got %v", err)
	}
}

func TestPredictMalformedResponseMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Predict(context.Background(), predictRequest())
	if !errors.Is(err, core.ErrPredictorUnavailable) {
		t.Fatalf("want ErrPredictorUnavailable, got %v", err)
	}
}

func TestFeedbackPostsWithoutBlocking(t *testing.T) {
	got := make(chan core.HandoverFeedback, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feedback" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var fb core.HandoverFeedback
		if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
			t.Errorf("decode feedback: %v", err)
		}
		got <- fb
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	fb := core.HandoverFeedback{
		StationID:  "ms-1",
		FromCellID: "cell-a",
		ToCellID:   "cell-b",
		Timestamp:  time.Now(),
		Reason:     core.ReasonA3,
	}
	if err := c.Feedback(context.Background(), fb); err != nil {
		t.Fatalf("Feedback must never fail the caller: %v", err)
	}

	select {
	case received := <-got:
		if received.StationID != "ms-1" || received.ToCellID != "cell-b" {
			t.Fatalf("feedback payload %+v", received)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("feedback never reached the server")
	}
}

func TestFeedbackSwallowsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if err := c.Feedback(context.Background(), core.HandoverFeedback{StationID: "ms-1"}); err != nil {
		t.Fatalf("feedback is best-effort, got error %v", err)
	}
}
