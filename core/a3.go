package core

import (
	"sort"
	"time"
)

// A3State holds the per-station A3 event timers: one per candidate cell,
// keyed by cell ID, holding the instant the hysteresis condition first
// held. A timer exists only while the condition has held continuously
// since its start; any tick where the condition fails deletes it, and
// re-accumulation starts from zero on re-entry.
//
// Each station owns exactly one A3State, and only that station's
// evaluation path touches it during a tick, so no locking is needed here.
type A3State struct {
	armedSince map[string]time.Time
}

// NewA3State returns an empty timer set.
func NewA3State() *A3State {
	return &A3State{armedSince: make(map[string]time.Time)}
}

// Armed returns the number of candidates currently holding a timer.
func (s *A3State) Armed() int {
	return len(s.armedSince)
}

// Reset drops all timers. The ledger calls this after applying a handover:
// every timer measured the old serving cell, so none may carry credit
// against the new one.
func (s *A3State) Reset() {
	for k := range s.armedSince {
		delete(s.armedSince, k)
	}
}

// Evaluate advances the per-candidate state machines for one tick and
// returns the rule-mode decision.
//
// For each candidate: IDLE -> ARMED when the candidate's RSRP exceeds the
// serving RSRP by more than the hysteresis margin; ARMED -> IDLE the
// moment the condition breaks; ARMED -> TRIGGERED once the condition has
// held for at least ttt. Candidates race independently. If several trigger
// on the same tick the one with the highest RSRP wins, ties broken by
// lowest cell ID so runs are reproducible.
func (s *A3State) Evaluate(in DecisionInput, hysteresisDB float64, ttt time.Duration) Decision {
	var triggered []MetricSample
	for _, cand := range in.Candidates {
		if cand.CellID == in.Serving.CellID {
			continue
		}
		if cand.RSRPDBm > in.Serving.RSRPDBm+hysteresisDB {
			start, armed := s.armedSince[cand.CellID]
			if !armed {
				start = in.Now
				s.armedSince[cand.CellID] = start
			}
			if in.Now.Sub(start) >= ttt {
				triggered = append(triggered, cand)
			}
		} else {
			// No partial credit: condition broke, timer dies.
			delete(s.armedSince, cand.CellID)
		}
	}

	// Drop timers for candidates that disappeared from visibility; an
	// invisible cell cannot be continuously satisfying the condition.
	if len(s.armedSince) > 0 {
		visible := make(map[string]bool, len(in.Candidates))
		for _, cand := range in.Candidates {
			visible[cand.CellID] = true
		}
		for cellID := range s.armedSince {
			if !visible[cellID] {
				delete(s.armedSince, cellID)
			}
		}
	}

	if len(triggered) == 0 {
		return Decision{Action: ActionStay, Reason: ReasonA3}
	}

	sort.Slice(triggered, func(i, j int) bool {
		if triggered[i].RSRPDBm != triggered[j].RSRPDBm {
			return triggered[i].RSRPDBm > triggered[j].RSRPDBm
		}
		return triggered[i].CellID < triggered[j].CellID
	})
	winner := triggered[0]

	// TRIGGERED is terminal for the pair within this tick; the pair
	// resets to IDLE once the handover is resolved.
	delete(s.armedSince, winner.CellID)

	return Decision{
		Action:       ActionHandover,
		TargetCellID: winner.CellID,
		Reason:       ReasonA3,
	}
}
