// internal/sim/state/ledger.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/handover-simulator/core"
	"github.com/signalsfoundry/handover-simulator/internal/logging"
)

var (
	// ErrStationNotFound indicates a requested station is not in the ledger.
	ErrStationNotFound = errors.New("station not found")
	// ErrCellNotFound indicates a requested cell is not in the ledger.
	ErrCellNotFound = errors.New("cell not found")
	// ErrDuplicateStation indicates two stations share an ID.
	ErrDuplicateStation = errors.New("duplicate station id")
	// ErrDuplicateCell indicates two cells share an ID.
	ErrDuplicateCell = errors.New("duplicate cell id")

	// ErrUnknownCellReference is re-exported so callers can depend on
	// state.* instead of core.* directly if they want to.
	ErrUnknownCellReference = core.ErrUnknownCellReference
)

// MetricsRecorder receives metric updates from the tick loop. The
// observability collector satisfies it; tests substitute fakes.
type MetricsRecorder interface {
	HandoverApplied(reason string)
	FallbackOccurred(reason string)
	TickCompleted(d time.Duration)
	SetEntityCounts(stations, cells int)
	SetArmedTimers(n int)
}

// FeedbackSink receives applied handovers for predictor retraining.
// Implementations must not block the caller.
type FeedbackSink interface {
	Feedback(ctx context.Context, fb core.HandoverFeedback) error
}

// LedgerConfig gathers everything a ledger needs at construction. Cells
// are immutable after NewLedger returns.
type LedgerConfig struct {
	Cells    []*core.Cell
	Stations []core.ScenarioStation
	Policy   core.DecisionPolicy
	Radio    *core.RadioMetricModel
	Engine   *core.DecisionEngine
}

// LedgerOption customises Ledger construction.
type LedgerOption func(*Ledger)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) LedgerOption {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithFeedbackSink attaches an optional sink for handover outcomes.
func WithFeedbackSink(s FeedbackSink) LedgerOption {
	return func(l *Ledger) {
		l.feedback = s
	}
}

// Ledger is the authoritative in-memory network state: stations, cells,
// serving assignments, per-(station, cell) metric history, A3 timers and
// handover history. It advances one simulated tick at a time; Tick is
// atomic with respect to readers, so no reader ever observes a
// partially-updated station.
type Ledger struct {
	// mu is the ledger-level lock. Tick holds it in write mode for the
	// whole tick; readers take it in read mode.
	mu sync.RWMutex

	cells    map[string]*core.Cell
	cellList []*core.Cell // sorted by ID, immutable after construction

	stations map[string]*stationState
	order    []string // sorted station IDs; fixes the apply order

	events []core.HandoverEvent
	ticks  uint64

	policy   core.DecisionPolicy
	mobility *core.MobilityEngine
	radio    *core.RadioMetricModel
	engine   *core.DecisionEngine

	log      logging.Logger
	metrics  MetricsRecorder
	feedback FeedbackSink
	tracer   trace.Tracer

	handoverSubs []func(core.HandoverEvent)
	fallbackSubs []func(core.FallbackEvent)
}

// stationState is everything a single station owns. During a tick exactly
// one goroutine touches a given stationState, which is what lets stations
// evaluate in parallel without locking.
type stationState struct {
	station *core.Station
	a3      *core.A3State
	history map[string]*metricRing

	historyDepth int
}

// NewLedger validates the configuration and builds the ledger. Unknown
// cell references and invalid mobility parameters are fatal here — a run
// never starts with a silently-corrected scenario.
func NewLedger(cfg LedgerConfig, log logging.Logger, opts ...LedgerOption) (*Ledger, error) {
	if log == nil {
		log = logging.Noop()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("NewLedger: decision engine is required")
	}
	radio := cfg.Radio
	if radio == nil {
		radio = core.NewRadioMetricModel()
	}

	l := &Ledger{
		cells:    make(map[string]*core.Cell, len(cfg.Cells)),
		stations: make(map[string]*stationState, len(cfg.Stations)),
		policy:   cfg.Policy,
		mobility: core.NewMobilityEngine(),
		radio:    radio,
		engine:   cfg.Engine,
		log:      log,
		tracer:   otel.Tracer("handover-simulator/state"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	for _, cell := range cfg.Cells {
		if cell == nil || cell.ID == "" {
			return nil, fmt.Errorf("NewLedger: nil or empty cell")
		}
		if _, exists := l.cells[cell.ID]; exists {
			return nil, fmt.Errorf("NewLedger: %w: %q", ErrDuplicateCell, cell.ID)
		}
		l.cells[cell.ID] = cell
		l.cellList = append(l.cellList, cell)
	}
	sort.Slice(l.cellList, func(i, j int) bool { return l.cellList[i].ID < l.cellList[j].ID })

	for _, ss := range cfg.Stations {
		st := ss.Station
		if st == nil || st.ID == "" {
			return nil, fmt.Errorf("NewLedger: nil or empty station")
		}
		if _, exists := l.stations[st.ID]; exists {
			return nil, fmt.Errorf("NewLedger: %w: %q", ErrDuplicateStation, st.ID)
		}
		if _, ok := l.cells[st.ServingCellID]; !ok {
			return nil, fmt.Errorf("NewLedger: station %q: %w: %q", st.ID, ErrUnknownCellReference, st.ServingCellID)
		}
		if err := l.mobility.AddStation(st.ID, ss.Generator); err != nil {
			return nil, fmt.Errorf("NewLedger: station %q: %w", st.ID, err)
		}
		l.stations[st.ID] = &stationState{
			station:      st,
			a3:           core.NewA3State(),
			history:      make(map[string]*metricRing),
			historyDepth: cfg.Policy.HistoryDepth,
		}
		l.order = append(l.order, st.ID)
	}
	sort.Strings(l.order)

	if l.metrics != nil {
		l.metrics.SetEntityCounts(len(l.stations), len(l.cells))
	}
	return l, nil
}

// stationResult carries one station's evaluation out of the parallel
// phase and into the serial apply phase.
type stationResult struct {
	stationID string
	decision  core.Decision
	err       error
}

// Tick advances the whole simulation by one step: every station moves,
// is measured against its visible cells, and has its handover decision
// evaluated; accepted handovers are then applied in sorted station order.
//
// Station evaluation runs in parallel — each goroutine touches only its
// own station's state — while the apply phase is serial so handover
// history stays totally ordered per station. A single station's failure
// degrades only that station's tick, never the others'.
func (l *Ledger) Tick(ctx context.Context, now time.Time) {
	ctx, span := l.tracer.Start(ctx, "ledger.tick",
		trace.WithAttributes(attribute.Int64("sim.tick", int64(l.ticks))))
	defer span.End()

	started := time.Now()

	l.mu.Lock()

	results := make([]stationResult, len(l.order))
	var wg sync.WaitGroup
	for i, id := range l.order {
		wg.Add(1)
		go func(i int, st *stationState) {
			defer wg.Done()
			results[i] = l.evaluateStation(ctx, st, now)
		}(i, l.stations[id])
	}
	wg.Wait()

	var (
		handovers []core.HandoverEvent
		fallbacks []core.FallbackEvent
	)
	for _, res := range results {
		if res.err != nil {
			l.log.Warn(ctx, "station evaluation failed",
				logging.String("station", res.stationID),
				logging.String("error", res.err.Error()))
			continue
		}
		if res.decision.Reason.IsFallback() {
			fallbacks = append(fallbacks, core.FallbackEvent{
				StationID: res.stationID,
				Timestamp: now,
				Reason:    res.decision.Reason,
			})
		}
		if res.decision.Action != core.ActionHandover {
			continue
		}
		if ev, ok := l.applyHandoverLocked(res.stationID, res.decision, now); ok {
			handovers = append(handovers, ev)
		}
	}

	armed := 0
	for _, st := range l.stations {
		armed += st.a3.Armed()
	}
	l.ticks++

	handoverSubs := append([]func(core.HandoverEvent){}, l.handoverSubs...)
	fallbackSubs := append([]func(core.FallbackEvent){}, l.fallbackSubs...)
	l.mu.Unlock()

	// Notify subscribers and record metrics outside the lock to avoid
	// deadlocks with subscribers that read the ledger.
	for _, ev := range handovers {
		l.log.Info(ctx, "handover applied",
			logging.String("station", ev.StationID),
			logging.String("from_cell", ev.FromCellID),
			logging.String("to_cell", ev.ToCellID),
			logging.String("reason", string(ev.Reason)))
		if l.metrics != nil {
			l.metrics.HandoverApplied(string(ev.Reason))
		}
		for _, sub := range handoverSubs {
			sub(ev)
		}
		if l.feedback != nil {
			if err := l.feedback.Feedback(ctx, core.HandoverFeedback{
				StationID:  ev.StationID,
				FromCellID: ev.FromCellID,
				ToCellID:   ev.ToCellID,
				Timestamp:  ev.Timestamp,
				Reason:     ev.Reason,
			}); err != nil {
				l.log.Warn(ctx, "handover feedback failed",
					logging.String("station", ev.StationID),
					logging.String("error", err.Error()))
			}
		}
	}
	for _, ev := range fallbacks {
		if l.metrics != nil {
			l.metrics.FallbackOccurred(string(ev.Reason))
		}
		for _, sub := range fallbackSubs {
			sub(ev)
		}
	}
	if l.metrics != nil {
		l.metrics.SetArmedTimers(armed)
		l.metrics.TickCompleted(time.Since(started))
	}
}

// evaluateStation runs the per-station portion of a tick: move, measure,
// record, decide. It touches only st and the immutable cell set.
func (l *Ledger) evaluateStation(ctx context.Context, st *stationState, now time.Time) stationResult {
	id := st.station.ID

	pos, err := l.mobility.Next(id, now)
	if err != nil {
		return stationResult{stationID: id, err: err}
	}
	st.station.Position = pos

	serving, ok := l.cells[st.station.ServingCellID]
	if !ok {
		return stationResult{stationID: id, err: fmt.Errorf("%w: %q", ErrCellNotFound, st.station.ServingCellID)}
	}

	// The serving cell is always measured, whatever its distance: the
	// A3 condition needs a baseline even when the station has wandered
	// out of the serving cell's nominal range.
	servingSample := l.radio.Measure(id, pos, serving, now)
	st.record(servingSample)

	var candidates []core.MetricSample
	for _, cell := range l.cellList {
		if cell.ID == serving.ID {
			continue
		}
		if pos.DistanceTo(cell.Position) > l.policy.VisibilityRadiusM {
			continue
		}
		sample := l.radio.Measure(id, pos, cell, now)
		st.record(sample)
		candidates = append(candidates, sample)
	}

	in := core.DecisionInput{
		StationID:  id,
		Now:        now,
		Serving:    servingSample,
		Candidates: candidates,
	}
	if l.engine.NeedsTrends() {
		in.TrendSlopes = st.trendSlopes(serving.ID, candidates)
	}

	return stationResult{
		stationID: id,
		decision:  l.engine.Evaluate(ctx, in, st.a3),
	}
}

// applyHandoverLocked mutates the serving assignment and appends the
// event. Callers hold the write lock. The target must differ from the
// serving cell recorded immediately before the event; anything else is a
// decision-layer bug and is dropped with a log line rather than corrupting
// the ledger.
func (l *Ledger) applyHandoverLocked(stationID string, d core.Decision, now time.Time) (core.HandoverEvent, bool) {
	st, ok := l.stations[stationID]
	if !ok {
		return core.HandoverEvent{}, false
	}
	from := st.station.ServingCellID
	if d.TargetCellID == from {
		l.log.Warn(context.Background(), "dropping handover to current serving cell",
			logging.String("station", stationID),
			logging.String("cell", from))
		return core.HandoverEvent{}, false
	}
	if _, ok := l.cells[d.TargetCellID]; !ok {
		l.log.Warn(context.Background(), "dropping handover to unknown cell",
			logging.String("station", stationID),
			logging.String("cell", d.TargetCellID))
		return core.HandoverEvent{}, false
	}

	st.station.ServingCellID = d.TargetCellID
	// Every armed timer measured the old serving cell; none may carry
	// credit against the new one.
	st.a3.Reset()

	ev := core.HandoverEvent{
		ID:         uuid.NewString(),
		StationID:  stationID,
		FromCellID: from,
		ToCellID:   d.TargetCellID,
		Timestamp:  now,
		Reason:     d.Reason,
	}
	l.events = append(l.events, ev)
	return ev, true
}

func (st *stationState) record(sample core.MetricSample) {
	ring, ok := st.history[sample.CellID]
	if !ok {
		ring = newMetricRing(st.historyDepth)
		st.history[sample.CellID] = ring
	}
	ring.Append(sample)
}

// trendSlopes computes RSRP slopes for the serving cell and every
// candidate from the recorded history windows.
func (st *stationState) trendSlopes(servingID string, candidates []core.MetricSample) map[string]float64 {
	slopes := make(map[string]float64, len(candidates)+1)
	add := func(cellID string) {
		ring, ok := st.history[cellID]
		if !ok {
			return
		}
		if slope, ok := core.RSRPTrend(ring.Samples()); ok {
			slopes[cellID] = slope
		}
	}
	add(servingID)
	for _, c := range candidates {
		add(c.CellID)
	}
	return slopes
}

//
// ---------- Readers ----------
//

// Ticks returns the number of completed ticks.
func (l *Ledger) Ticks() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ticks
}

// ServingCell returns the station's current serving cell ID.
func (l *Ledger) ServingCell(stationID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.stations[stationID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrStationNotFound, stationID)
	}
	return st.station.ServingCellID, nil
}

// StationPosition returns the station's current position.
func (l *Ledger) StationPosition(stationID string) (core.Vec3, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.stations[stationID]
	if !ok {
		return core.Vec3{}, fmt.Errorf("%w: %q", ErrStationNotFound, stationID)
	}
	return st.station.Position, nil
}

// History returns the recorded samples for a (station, cell) pair,
// oldest first. The slice is a copy.
func (l *Ledger) History(stationID, cellID string) ([]core.MetricSample, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.stations[stationID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStationNotFound, stationID)
	}
	ring, ok := st.history[cellID]
	if !ok {
		return nil, nil
	}
	return ring.Samples(), nil
}

// Events returns a copy of the handover history in append order.
func (l *Ledger) Events() []core.HandoverEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.HandoverEvent{}, l.events...)
}

// Cells returns the immutable cell set, sorted by ID.
func (l *Ledger) Cells() []*core.Cell {
	return l.cellList
}

// LedgerSnapshot is a consistent read view of the mutable ledger state.
type LedgerSnapshot struct {
	Tick     uint64
	Stations []core.Station
	Events   []core.HandoverEvent
}

// Snapshot returns a coherent copy of station and event state as of the
// last completed tick.
func (l *Ledger) Snapshot() *LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &LedgerSnapshot{
		Tick:     l.ticks,
		Stations: make([]core.Station, 0, len(l.order)),
		Events:   append([]core.HandoverEvent{}, l.events...),
	}
	for _, id := range l.order {
		snap.Stations = append(snap.Stations, *l.stations[id].station)
	}
	return snap
}

// Subscribe registers a callback invoked once per applied handover. It
// returns an unsubscribe function.
func (l *Ledger) Subscribe(fn func(core.HandoverEvent)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handoverSubs = append(l.handoverSubs, fn)
	idx := len(l.handoverSubs) - 1

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if idx < 0 || idx >= len(l.handoverSubs) {
			return
		}
		l.handoverSubs = append(l.handoverSubs[:idx], l.handoverSubs[idx+1:]...)
		idx = -1
	}
}

// SubscribeFallback registers a callback invoked once per fallback
// occurrence. It returns an unsubscribe function.
func (l *Ledger) SubscribeFallback(fn func(core.FallbackEvent)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallbackSubs = append(l.fallbackSubs, fn)
	idx := len(l.fallbackSubs) - 1

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if idx < 0 || idx >= len(l.fallbackSubs) {
			return
		}
		l.fallbackSubs = append(l.fallbackSubs[:idx], l.fallbackSubs[idx+1:]...)
		idx = -1
	}
}
