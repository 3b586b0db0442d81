package core

import "time"

// MetricSample is one radio measurement of a (station, cell) pair at a
// simulated instant. Samples are append-only: superseded samples are
// retained for audit, never mutated, and timestamps are monotonically
// non-decreasing per pair.
type MetricSample struct {
	StationID string    `json:"station_id"`
	CellID    string    `json:"cell_id"`
	Timestamp time.Time `json:"timestamp"`

	RSRPDBm float64 `json:"rsrp_dbm"`
	RSRQDB  float64 `json:"rsrq_db"`
	SINRDB  float64 `json:"sinr_db"`
}
