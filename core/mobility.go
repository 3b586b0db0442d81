package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidMobilityParameters indicates a trajectory generator was
	// configured with parameters that violate its constraints. Detected
	// at setup time and fatal to starting a run.
	ErrInvalidMobilityParameters = errors.New("invalid mobility parameters")
	// ErrStationExists indicates a station is already registered.
	ErrStationExists = errors.New("station already registered")
	// ErrStationUnknown indicates a station is not registered.
	ErrStationUnknown = errors.New("station not registered")
)

// TrajectoryGenerator produces a station's lazy position sequence, one
// step at a time. Advance(0) returns the current position without moving.
// Generators are deterministic given their seed and the sequence of step
// sizes, which the tick-synchronous loop keeps uniform.
type TrajectoryGenerator interface {
	Advance(dt time.Duration) Vec3
}

// MobilityEngine holds one trajectory generator per station and maps
// simulation timestamps onto generator steps.
//
// Next may be called concurrently for distinct stations — each entry is
// touched only by its own station's evaluation path during a tick — but
// never concurrently for the same station.
type MobilityEngine struct {
	mu      sync.RWMutex
	entries map[string]*mobilityEntry
}

type mobilityEntry struct {
	gen     TrajectoryGenerator
	last    time.Time
	started bool
}

// NewMobilityEngine returns an engine with no stations.
func NewMobilityEngine() *MobilityEngine {
	return &MobilityEngine{entries: make(map[string]*mobilityEntry)}
}

// AddStation registers a generator for the station ID.
func (m *MobilityEngine) AddStation(id string, gen TrajectoryGenerator) error {
	if id == "" || gen == nil {
		return fmt.Errorf("%w: empty station id or nil generator", ErrInvalidMobilityParameters)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrStationExists, id)
	}
	m.entries[id] = &mobilityEntry{gen: gen}
	return nil
}

// RemoveStation drops the station's generator.
func (m *MobilityEngine) RemoveStation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrStationUnknown, id)
	}
	delete(m.entries, id)
	return nil
}

// Next advances the station's trajectory to simTime and returns the new
// position. The first call for a station anchors its clock; subsequent
// calls step the generator by the elapsed simulated time.
func (m *MobilityEngine) Next(id string, simTime time.Time) (Vec3, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return Vec3{}, fmt.Errorf("%w: %s", ErrStationUnknown, id)
	}

	var dt time.Duration
	if entry.started {
		dt = simTime.Sub(entry.last)
		if dt < 0 {
			dt = 0
		}
	}
	entry.last = simTime
	entry.started = true
	return entry.gen.Advance(dt), nil
}
