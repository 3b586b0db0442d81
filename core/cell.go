package core

// Cell is a fixed radio cell site. Cells are immutable for the duration of
// a simulation run; the ledger owns them and hands out read-only views, so
// many stations can evaluate against the same cell concurrently without
// locking.
type Cell struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Position of the antenna in metres. Z is the antenna height.
	Position Vec3 `json:"position"`

	// FrequencyMHz is the carrier frequency used by the path-loss model.
	FrequencyMHz float64 `json:"frequency_mhz"`

	// RF parameters used by the radio metric model. All are optional; if
	// left as zero the model falls back to conservative defaults.
	TxPowerDBm     float64 `json:"tx_power_dbm,omitempty"`
	AntennaGainDBi float64 `json:"antenna_gain_dbi,omitempty"`

	// NoiseFigureDB raises the noise floor used for this cell's SINR
	// estimate. Zero means "use the model's default floor unchanged".
	NoiseFigureDB float64 `json:"noise_figure_db,omitempty"`
}
