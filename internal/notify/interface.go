package notify

import "context"

// Event types.
const (
	EventBackupCompleted = "backup_completed"
	EventBackupFailed    = "backup_failed"
	EventKeyRotated      = "key_rotated"
)

// Event is one operational notification. It never carries report content:
// titles, findings and credentials stay inside the encrypted store.
type Event struct {
	Type     string // one of the Event* constants
	Title    string
	Body     string
	Level    string         // "info" | "warning" | "error"
	Metadata map[string]any // counts, sink names, archive name
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
