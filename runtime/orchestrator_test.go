package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"vetchat/runtime/workers"

	"github.com/stretchr/testify/require"
)

func TestOrchestrator_serves_presence_until_stopped(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	// Given an orchestrator supervising a presence registry
	presence := NewPresence(log)
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log, 0), presence, 10*time.Millisecond)
	orchestrator.Start(context.Background())

	// When a connection registers
	conn := newConnection()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req.NoError(orchestrator.Presence().Register(ctx, "alice", conn))

	// Then the user is online
	req.True(presence.IsOnline(ctx, "alice"))

	// When the orchestrator stops
	orchestrator.Stop()

	// Then the registry no longer answers
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	req.Error(presence.Register(shortCtx, "bob", newConnection()))
}

func TestOrchestrator_stop_without_start(t *testing.T) {
	log := slog.Default()
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log, 0), NewPresence(log), 0)

	done := make(chan struct{})
	go func() {
		orchestrator.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Stop should return when nothing was started")
	}
}
