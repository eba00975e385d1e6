package notify

import (
	"fmt"
	"strings"
)

// BackupEvent describes the outcome of one backup run. skipped counts
// reports left out because they could not be decrypted.
func BackupEvent(archive string, reports, skipped int, err error) Event {
	meta := map[string]any{"archive": archive, "reports": reports, "skipped": skipped}
	if err != nil {
		return Event{
			Type:     EventBackupFailed,
			Title:    "assessmaker backup failed",
			Body:     err.Error(),
			Level:    "error",
			Metadata: meta,
		}
	}
	evt := Event{
		Type:     EventBackupCompleted,
		Title:    "assessmaker backup completed",
		Body:     fmt.Sprintf("%s: %d reports", archive, reports),
		Level:    "info",
		Metadata: meta,
	}
	if skipped > 0 {
		evt.Level = "warning"
		evt.Body += fmt.Sprintf(", %d skipped (undecryptable)", skipped)
	}
	return evt
}

// KeyRotatedEvent reports a completed master key rotation.
func KeyRotatedEvent(reports, findings, images int) Event {
	parts := []string{
		fmt.Sprintf("%d reports", reports),
		fmt.Sprintf("%d findings", findings),
		fmt.Sprintf("%d images", images),
	}
	return Event{
		Type:  EventKeyRotated,
		Title: "assessmaker master key rotated",
		Body:  "Re-encrypted " + strings.Join(parts, ", ") + ". Back up the new key file.",
		Level: "warning",
		Metadata: map[string]any{
			"reports": reports, "findings": findings, "images": images,
		},
	}
}
