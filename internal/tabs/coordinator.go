// Package tabs decides which of the cooperating processes of one session is
// the master and carries already-processed events between them.
//
// Exactly one process holds the master role at steady state. It owns the
// live connection and is the only one allowed to fire notification and
// sound side effects. Until the role is known those side effects are
// dropped, never queued.
package tabs

import (
	"context"
	"errors"
	"sync"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// ErrNoPeers is returned by an Elector that cannot reach the shared
// coordination channel at all. The coordinator then acts alone as master.
var ErrNoPeers = errors.New("tabs: no peer channel")

// Elector runs the master election for one process.
type Elector interface {
	// Run campaigns until ctx is done and calls report on every role
	// change. Returns ErrNoPeers (possibly wrapped) if it can never take part.
	Run(ctx context.Context, report func(model.Role)) error
}

// Coordinator tracks this process's role.
// Thread-safety: all methods are safe for concurrent use. Observers are
// called outside the lock, in registration order.
type Coordinator struct {
	mu        sync.Mutex
	id        string
	role      model.Role
	elector   Elector
	journal   *otel.Logger
	observers map[int]func(model.Role)
	order     []int
	nextID    int
	wg        sync.WaitGroup
}

// NewCoordinator creates a Coordinator. A nil elector means there is no
// multi-process capability: Start makes the process master immediately.
func NewCoordinator(id string, elector Elector, journal *otel.Logger) *Coordinator {
	return &Coordinator{
		id:        id,
		elector:   elector,
		journal:   journal,
		observers: make(map[int]func(model.Role)),
	}
}

// ID returns this process's tab id.
func (c *Coordinator) ID() string {
	return c.id
}

// Role returns the current role.
func (c *Coordinator) Role() model.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// AllowSideEffects reports whether notification and sound side effects may
// fire. True only for the master.
func (c *Coordinator) AllowSideEffects() bool {
	return c.Role() == model.RoleMaster
}

// Subscribe registers fn for role changes. The returned function removes it.
func (c *Coordinator) Subscribe(fn func(model.Role)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.order = append(c.order, id)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Start begins role determination. Without an elector the role becomes
// master before Start returns. Otherwise the election runs in the
// background until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	if c.elector == nil {
		c.setRole(model.RoleMaster)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.elector.Run(ctx, c.setRole)
		switch {
		case errors.Is(err, ErrNoPeers):
			logging.Warn("no peer channel, running standalone", "tab", c.id, "error", err)
			c.setRole(model.RoleMaster)
		case err != nil && ctx.Err() == nil:
			logging.Error("election stopped", "tab", c.id, "error", err)
			c.journal.Error(otel.KindError, "tabs", err)
		}
	}()
}

// Wait blocks until the election goroutine has exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) setRole(r model.Role) {
	c.mu.Lock()
	if c.role == r {
		c.mu.Unlock()
		return
	}
	prev := c.role
	c.role = r
	fns := make([]func(model.Role), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.observers[id])
	}
	c.mu.Unlock()

	metrics.Role.Set(float64(r))
	logging.Info("role changed", "tab", c.id, "from", prev, "to", r)
	c.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRoleChange, Comp: "tabs", Role: r.String(), Msg: prev.String()})

	for _, fn := range fns {
		fn(r)
	}
}
