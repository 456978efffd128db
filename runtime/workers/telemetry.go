package workers

import (
	"context"
	"log/slog"
	"time"

	"vetchat/contract"
	"vetchat/observability"
)

// PresenceReporter periodically exports the size of the presence registry.
type PresenceReporter struct {
	log      *slog.Logger
	presence contract.IPresence
	interval time.Duration
}

func NewPresenceReporter(log *slog.Logger, presence contract.IPresence, interval time.Duration) *PresenceReporter {
	return &PresenceReporter{log: log, presence: presence, interval: interval}
}

func (w PresenceReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.report(ctx)
		}
	}
}

func (w PresenceReporter) report(ctx context.Context) {
	stats, err := w.presence.Stats(ctx)
	if err != nil {
		w.log.Debug("Presence stats unavailable", "error", err)
		return
	}
	observability.OnlineUsers.Set(float64(stats.OnlineUsers))
	observability.LiveConnections.Set(float64(stats.Connections))
}
