// Package runtime owns the live side of the chat: who is connected, and the
// background workers that keep it observable.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vetchat/contract"
	"vetchat/runtime/workers"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	presence       *Presence
	reportInterval time.Duration
	done           chan struct{}
	started        bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	presence *Presence, reportInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		presence:       presence,
		reportInterval: reportInterval,
		done:           make(chan struct{}),
	}
}

// Presence returns the registry served by this orchestrator.
func (o *Orchestrator) Presence() *Presence {
	return o.presence
}

// Add registers extra workers supervised alongside the presence registry.
func (o *Orchestrator) Add(extra ...contract.Worker) {
	o.supervisor.Add(extra...)
}

// Start registers the presence actor and its reporter to the supervisor and
// runs them in the background. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.supervisor.Add(o.presence)
	if o.reportInterval > 0 {
		o.supervisor.Add(workers.NewPresenceReporter(o.log, o.presence, o.reportInterval))
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go func() {
		defer close(o.done)
		o.supervisor.Run(ctx)
	}()
}

// Stop cancels the supervised workers and waits for them to return.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()

	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if started {
		<-o.done
	}
	o.log.Debug("Orchestrator stopped")
}
