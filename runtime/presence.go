package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"vetchat/contract"
	"vetchat/domain/event"
)

type Set map[string]contract.Connection

type presenceOp struct {
	apply func()
	done  chan struct{}
}

// Presence tracks the live connections of every user.
//
// All registry state is owned by the goroutine executing Run: every operation
// is sent as a closure over the ops channel and executed there one at a time,
// so concurrent connects and disconnects never need a lock. Pushing events to
// connections happens outside of that goroutine, on a snapshot of the handles,
// so a slow client never stalls the registry.
type Presence struct {
	log         *slog.Logger
	ops         chan presenceOp
	connections map[string]Set    // user -> connection id -> connection
	owners      map[string]string // connection id -> user
}

func NewPresence(log *slog.Logger) *Presence {
	return &Presence{
		log:         log,
		ops:         make(chan presenceOp),
		connections: make(map[string]Set),
		owners:      make(map[string]string),
	}
}

// Run serves registry operations until ctx is canceled. State survives a
// restart of Run by the supervisor.
func (p *Presence) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Stopping presence registry")
			return nil
		case op := <-p.ops:
			p.execute(op)
		}
	}
}

func (p *Presence) execute(op presenceOp) {
	defer close(op.done)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Presence operation panicked", "panic", fmt.Sprint(r))
		}
	}()
	op.apply()
}

// do runs fn on the registry goroutine and waits for it to complete.
func (p *Presence) do(ctx context.Context, fn func()) error {
	op := presenceOp{apply: fn, done: make(chan struct{})}
	select {
	case p.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	// ops is unbuffered: once handed over, Run executes the operation before
	// looking at its context again.
	<-op.done
	return nil
}

// Register adds a connection to the user's set, creating the set on the first
// connection. Registering the same connection twice has no effect.
func (p *Presence) Register(ctx context.Context, userID string, conn contract.Connection) error {
	return p.do(ctx, func() {
		if owner, ok := p.owners[conn.ID()]; ok && owner != userID {
			p.removeLocked(conn.ID())
		}
		set, ok := p.connections[userID]
		if !ok {
			set = make(Set)
			p.connections[userID] = set
		}
		set[conn.ID()] = conn
		p.owners[conn.ID()] = userID
	})
}

// Unregister removes a connection from whichever user owns it. It reports
// whether that user has just gone offline.
func (p *Presence) Unregister(ctx context.Context, conn contract.Connection) (bool, error) {
	offline := false
	err := p.do(ctx, func() {
		offline = p.removeLocked(conn.ID())
	})
	return offline, err
}

// removeLocked must only be called from the registry goroutine.
func (p *Presence) removeLocked(connID string) bool {
	userID, ok := p.owners[connID]
	if !ok {
		return false
	}
	delete(p.owners, connID)
	set := p.connections[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(p.connections, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection. A
// registry that cannot answer before ctx is done reports the user offline.
func (p *Presence) IsOnline(ctx context.Context, userID string) bool {
	online := false
	if err := p.do(ctx, func() {
		online = len(p.connections[userID]) > 0
	}); err != nil {
		p.log.Warn("Presence lookup failed", "user_id", userID, "error", err)
		return false
	}
	return online
}

// Connections returns a snapshot of the live connections of a user.
func (p *Presence) Connections(ctx context.Context, userID string) []contract.Connection {
	var snapshot []contract.Connection
	if err := p.do(ctx, func() {
		for _, conn := range p.connections[userID] {
			snapshot = append(snapshot, conn)
		}
	}); err != nil {
		p.log.Warn("Presence lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return snapshot
}

// Deliver pushes an event to every live connection of a user except
// exceptConnID. Each connection is tried independently; a failing one is
// logged and skipped. It returns the number of connections that accepted it.
func (p *Presence) Deliver(ctx context.Context, userID string, e event.Event, exceptConnID string) int {
	delivered := 0
	for _, conn := range p.Connections(ctx, userID) {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.Consume(ctx, e); err != nil {
			p.log.Warn("Failed to push event to connection",
				"user_id", userID,
				"conn_id", conn.ID(),
				"event", e.Name(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (p *Presence) Stats(ctx context.Context) (contract.PresenceStats, error) {
	var stats contract.PresenceStats
	err := p.do(ctx, func() {
		stats.OnlineUsers = len(p.connections)
		stats.Connections = len(p.owners)
	})
	return stats, err
}
