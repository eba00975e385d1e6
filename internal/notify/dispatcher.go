package notify

import (
	"context"
	"log/slog"

	"github.com/CosmoTheDev/assessmaker/internal/config"
)

// Dispatcher fans out events to all configured channels.
type Dispatcher struct {
	channels []Channel
	events   map[string]bool // event types to send
}

// defaultEvents is used when cfg.Events is empty. Successful backups are
// only sent when asked for.
var defaultEvents = map[string]bool{
	EventBackupFailed: true,
	EventKeyRotated:   true,
}

// NewDispatcher creates a Dispatcher from the given config.
// Only channels with IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	return newDispatcher(cfg.Events, NewSlack(cfg.Slack), NewWebhook(cfg.Webhook))
}

func newDispatcher(events []string, channels ...Channel) *Dispatcher {
	d := &Dispatcher{events: defaultEvents}
	if len(events) > 0 {
		d.events = make(map[string]bool, len(events))
		for _, e := range events {
			d.events[e] = true
		}
	}
	for _, ch := range channels {
		if ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Notify sends evt to all configured channels. Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) {
	if !d.events[evt.Type] {
		return
	}
	for _, ch := range d.channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("notify: channel send failed", "channel", ch.Name(), "event", evt.Type, "error", err)
		}
	}
}
