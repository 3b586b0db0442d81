package core

import "time"

// HandoverEvent records one applied handover. Events are immutable once
// created: they are appended to the ledger's history and never edited.
type HandoverEvent struct {
	ID         string    `json:"id"`
	StationID  string    `json:"station_id"`
	FromCellID string    `json:"from_cell"`
	ToCellID   string    `json:"to_cell"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     Reason    `json:"reason"`
}

// FallbackEvent records one occurrence of the decision path degrading to
// the rule result, whether or not a handover was applied.
type FallbackEvent struct {
	StationID string    `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
	Reason    Reason    `json:"reason"`
}
