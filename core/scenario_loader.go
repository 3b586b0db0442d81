// core/scenario_loader.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUnknownCellReference indicates a station references a cell that is
// not part of the scenario. Detected at setup time and fatal to starting
// a run.
var ErrUnknownCellReference = errors.New("unknown cell reference")

// Scenario is a fully validated simulation setup: immutable cells, initial
// stations with their trajectory generators, the decision policy, and the
// area bounds.
type Scenario struct {
	Bounds   Bounds
	Cells    []*Cell
	Stations []ScenarioStation
	Policy   DecisionPolicy

	// PredictorURL is the external predictor's base URL; empty when the
	// policy never consults it.
	PredictorURL string
}

// ScenarioStation pairs a station with its trajectory generator.
type ScenarioStation struct {
	Station   *Station
	Generator TrajectoryGenerator
}

// internal JSON shapes — kept unexported so we're free to evolve them.
type scenarioJSON struct {
	Bounds       boundsJSON    `json:"bounds"`
	Cells        []*Cell       `json:"cells"`
	Stations     []stationJSON `json:"stations"`
	Policy       *policyJSON   `json:"policy"`
	PredictorURL string        `json:"predictor_url"`
}

type boundsJSON struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

type stationJSON struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ServingCell string        `json:"serving_cell"`
	Mobility    *mobilityJSON `json:"mobility"`
}

// mobilityJSON is a flat union of every pattern's parameters; Pattern
// selects which fields are read.
type mobilityJSON struct {
	Pattern string `json:"pattern"`
	Seed    int64  `json:"seed"`

	Start  *positionJSON `json:"start"`
	End    *positionJSON `json:"end"`
	Corner *positionJSON `json:"corner"`

	SpeedMps float64 `json:"speed_mps"`
	VMin     float64 `json:"v_min"`
	VMax     float64 `json:"v_max"`
	PauseS   float64 `json:"pause_s"`

	BlockSizeM float64 `json:"block_size_m"`
	PStraight  float64 `json:"p_straight"`
	PLeft      float64 `json:"p_left"`
	PRight     float64 `json:"p_right"`
	TurnProb   float64 `json:"turn_prob"`

	DMaxM   float64       `json:"d_max_m"`
	RedrawS float64       `json:"redraw_s"`
	Center  *mobilityJSON `json:"center"`

	MeanDwellS float64 `json:"mean_dwell_s"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type policyJSON struct {
	HysteresisDB        *float64 `json:"hysteresis_db"`
	TTTSeconds          *float64 `json:"ttt_s"`
	Mode                string   `json:"mode"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	MLCallTimeoutMs     *float64 `json:"ml_call_timeout_ms"`
	HybridTieBreak      string   `json:"hybrid_tiebreak"`
	VisibilityRadiusM   *float64 `json:"visibility_radius_m"`
	TickSeconds         *float64 `json:"tick_s"`
	HistoryDepth        *int     `json:"history_depth"`
}

// LoadScenario reads a JSON scenario from r and returns a validated
// Scenario. Configuration errors (invalid mobility parameters, unknown
// cell references, invalid policy) fail the load; they are never coerced
// into defaults.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	bounds := Bounds{
		MinX: payload.Bounds.MinX,
		MinY: payload.Bounds.MinY,
		MaxX: payload.Bounds.MaxX,
		MaxY: payload.Bounds.MaxY,
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("LoadScenario: %w: empty area bounds", ErrInvalidMobilityParameters)
	}

	policy := DefaultDecisionPolicy()
	if payload.Policy != nil {
		applyPolicyOverrides(&policy, payload.Policy)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}

	cellIDs := make(map[string]bool, len(payload.Cells))
	for _, cell := range payload.Cells {
		if cell == nil || cell.ID == "" {
			return nil, fmt.Errorf("LoadScenario: cell with empty id")
		}
		if cellIDs[cell.ID] {
			return nil, fmt.Errorf("LoadScenario: duplicate cell id %q", cell.ID)
		}
		cellIDs[cell.ID] = true
	}
	if len(cellIDs) == 0 {
		return nil, fmt.Errorf("LoadScenario: scenario has no cells")
	}

	scenario := &Scenario{
		Bounds:       bounds,
		Cells:        payload.Cells,
		Policy:       policy,
		PredictorURL: payload.PredictorURL,
	}

	for _, js := range payload.Stations {
		if js.ID == "" {
			return nil, fmt.Errorf("LoadScenario: station with empty id")
		}
		if !cellIDs[js.ServingCell] {
			return nil, fmt.Errorf("LoadScenario: station %q: %w: %q", js.ID, ErrUnknownCellReference, js.ServingCell)
		}
		if js.Mobility == nil {
			return nil, fmt.Errorf("LoadScenario: station %q: %w: missing mobility block", js.ID, ErrInvalidMobilityParameters)
		}
		gen, start, err := buildGenerator(bounds, js.Mobility)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: station %q: %w", js.ID, err)
		}
		scenario.Stations = append(scenario.Stations, ScenarioStation{
			Station: &Station{
				ID:            js.ID,
				Name:          js.Name,
				Position:      start,
				ServingCellID: js.ServingCell,
			},
			Generator: gen,
		})
	}

	return scenario, nil
}

func applyPolicyOverrides(policy *DecisionPolicy, js *policyJSON) {
	if js.HysteresisDB != nil {
		policy.HysteresisDB = *js.HysteresisDB
	}
	if js.TTTSeconds != nil {
		policy.TimeToTrigger = secondsToDuration(*js.TTTSeconds)
	}
	if js.Mode != "" {
		policy.Mode = DecisionMode(js.Mode)
	}
	if js.ConfidenceThreshold != nil {
		policy.ConfidenceThreshold = *js.ConfidenceThreshold
	}
	if js.MLCallTimeoutMs != nil {
		policy.MLCallTimeout = time.Duration(*js.MLCallTimeoutMs * float64(time.Millisecond))
	}
	if js.HybridTieBreak != "" {
		policy.HybridTieBreak = HybridTieBreak(js.HybridTieBreak)
	}
	if js.VisibilityRadiusM != nil {
		policy.VisibilityRadiusM = *js.VisibilityRadiusM
	}
	if js.TickSeconds != nil {
		policy.TickSize = secondsToDuration(*js.TickSeconds)
	}
	if js.HistoryDepth != nil {
		policy.HistoryDepth = *js.HistoryDepth
	}
}

// buildGenerator constructs the trajectory generator described by js and
// returns it together with the station's initial position.
func buildGenerator(bounds Bounds, js *mobilityJSON) (TrajectoryGenerator, Vec3, error) {
	start := Vec3{}
	if js.Start != nil {
		start = Vec3{X: js.Start.X, Y: js.Start.Y, Z: js.Start.Z}
	}

	switch js.Pattern {
	case "linear":
		if js.End == nil {
			return nil, Vec3{}, fmt.Errorf("%w: linear pattern needs an end point", ErrInvalidMobilityParameters)
		}
		gen, err := NewLinearPath(start, Vec3{X: js.End.X, Y: js.End.Y, Z: js.End.Z}, js.SpeedMps)
		return gen, start, err

	case "l_shaped":
		if js.Corner == nil || js.End == nil {
			return nil, Vec3{}, fmt.Errorf("%w: l-shaped pattern needs corner and end points", ErrInvalidMobilityParameters)
		}
		gen, err := NewLShapedPath(start,
			Vec3{X: js.Corner.X, Y: js.Corner.Y, Z: js.Corner.Z},
			Vec3{X: js.End.X, Y: js.End.Y, Z: js.End.Z},
			js.SpeedMps)
		return gen, start, err

	case "random_waypoint":
		gen, err := NewRandomWaypoint(bounds, start, js.VMin, js.VMax, secondsToDuration(js.PauseS), js.Seed)
		return gen, start, err

	case "manhattan_grid":
		gen, err := NewManhattanGrid(bounds, start, js.BlockSizeM, js.SpeedMps, js.PStraight, js.PLeft, js.PRight, js.Seed)
		return gen, start, err

	case "urban_grid":
		gen, err := NewUrbanGrid(bounds, start, js.BlockSizeM, js.SpeedMps, js.TurnProb, js.Seed)
		return gen, start, err

	case "reference_point_group":
		if js.Center == nil {
			return nil, Vec3{}, fmt.Errorf("%w: reference-point group needs a center pattern", ErrInvalidMobilityParameters)
		}
		center, _, err := buildGenerator(bounds, js.Center)
		if err != nil {
			return nil, Vec3{}, err
		}
		gen, err := NewReferencePointGroup(center, bounds, js.DMaxM, secondsToDuration(js.RedrawS), js.Seed)
		return gen, start, err

	case "random_directional":
		gen, err := NewRandomDirectional(bounds, start, js.SpeedMps, secondsToDuration(js.MeanDwellS), js.Seed)
		return gen, start, err

	default:
		return nil, Vec3{}, fmt.Errorf("%w: unknown pattern %q", ErrInvalidMobilityParameters, js.Pattern)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
