package core

// Station is a mobile station being simulated. A station has at most one
// serving cell at any simulated instant, referenced by ID rather than by
// pointer so the ledger remains the only owner of cell definitions.
//
// Per-station state (position, serving cell) is exclusively owned by that
// station's evaluation path during a tick; the ledger serialises all other
// access.
type Station struct {
	ID   string
	Name string

	// Position in metres, updated once per tick by the mobility engine.
	Position Vec3

	// ServingCellID references the cell currently serving this station.
	ServingCellID string
}
