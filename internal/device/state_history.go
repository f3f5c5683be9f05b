package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateSourceCycle  = "cycle"
	StateSourceReload = "reload"
)

// StateHistoryEntry represents a single device state change record.
//
// It provides a local audit trail of state transitions even when the
// value history database is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	Device string `json:"device"`
	State  string `json:"state"`
	Status string `json:"status"`

	// Source identifies what caused the change (cycle, reload).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records a device state change.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - device: Device name
	//   - state, status: The new state and its status text
	//   - source: Origin of the change (cycle, reload)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, device, state, status, source string) error

	// GetHistory returns recent state changes for the device, newest first.
	GetHistory(ctx context.Context, device string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns the
	// number removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
