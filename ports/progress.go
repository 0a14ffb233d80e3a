package ports

import "time"

// ProgressEvent is a snapshot of a running analysis
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Stage     string    `json:"stage"`
	RowsRead  int64     `json:"rows_read"`
	Fraction  float64   `json:"fraction"` // 0 when the source size is unknown
	Timestamp time.Time `json:"timestamp"`
}

// ProgressObserver receives progress events. Implementations must not block.
type ProgressObserver interface {
	OnProgress(event ProgressEvent)
}
