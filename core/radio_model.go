package core

import (
	"math"
	"time"
)

// RadioMetricModel computes signal-quality metrics for a station position
// against a cell. It is a pure function of distance, frequency and the
// cell's RF parameters; no hidden state. Received power is monotonically
// decreasing in distance, all else equal — the handover decision engine
// depends on that monotonicity.
//
// The constants here are deliberately conservative and primarily used to
// derive a monotonic distance vs. quality relationship rather than an
// engineering-grade link budget.
type RadioMetricModel struct {
	// NoiseFloorDBm is the thermal noise floor assumed for SINR.
	// Zero means the default of -110 dBm.
	NoiseFloorDBm float64

	// MinDistanceM avoids the FSPL singularity at zero distance.
	// Zero means the default of 1 m.
	MinDistanceM float64
}

// NewRadioMetricModel returns a model with the default noise floor.
func NewRadioMetricModel() *RadioMetricModel {
	return &RadioMetricModel{
		NoiseFloorDBm: -110.0,
		MinDistanceM:  1.0,
	}
}

// Measure returns the metric sample for a station at pos measured against
// cell at the given simulated instant.
func (m *RadioMetricModel) Measure(stationID string, pos Vec3, cell *Cell, now time.Time) MetricSample {
	rsrp := m.rsrpDBm(pos, cell)

	floor := m.NoiseFloorDBm
	if floor == 0 {
		floor = -110.0
	}
	floor += cell.NoiseFigureDB

	sinr := rsrp - floor

	return MetricSample{
		StationID: stationID,
		CellID:    cell.ID,
		Timestamp: now,
		RSRPDBm:   rsrp,
		RSRQDB:    rsrqFromSINR(sinr),
		SINRDB:    sinr,
	}
}

// rsrpDBm is received power from a free-space path loss budget:
// FSPL(dB) = 32.44 + 20 log10(d_km) + 20 log10(f_MHz).
func (m *RadioMetricModel) rsrpDBm(pos Vec3, cell *Cell) float64 {
	minDist := m.MinDistanceM
	if minDist <= 0 {
		minDist = 1.0
	}
	distM := pos.DistanceTo(cell.Position)
	if distM < minDist {
		distM = minDist
	}

	fMHz := cell.FrequencyMHz
	if fMHz <= 0 {
		fMHz = 2100 // generic mid-band carrier
	}

	fspl := 32.44 + 20*math.Log10(distM/1000.0) + 20*math.Log10(fMHz)

	pt := cell.TxPowerDBm
	if pt == 0 {
		pt = 43 // 20 W macro cell
	}
	g := cell.AntennaGainDBi
	if g == 0 {
		g = 15
	}

	return pt + g - fspl
}

// rsrqFromSINR maps SINR onto the reportable RSRQ range [-19.5, -3] dB.
// The mapping is monotone in SINR, which is all the decision layer needs.
func rsrqFromSINR(sinr float64) float64 {
	const (
		minRSRQ = -19.5
		maxRSRQ = -3.0
	)
	// Linear ramp between -5 dB and 30 dB SINR.
	q := minRSRQ + (sinr+5)*(maxRSRQ-minRSRQ)/35.0
	return math.Min(math.Max(q, minRSRQ), maxRSRQ)
}
