// Package monitor is the notification feed. It routes live events and
// catch-up batches through the filter pipeline into the item store, keeps
// the visible count and placeholder layout in step with the renderer, and
// follows this process's master/slave role.
//
// Every mutation of the store, the visible counter and the layout engine
// happens with Monitor.mu held, so each inbound event is applied atomically.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/items"
	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
	"github.com/abelbrown/vinewatch/internal/pipeline"
	"github.com/abelbrown/vinewatch/internal/tabs"
	"github.com/abelbrown/vinewatch/internal/visibility"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("monitor: closed")

// publishTimeout bounds one relay publish.
const publishTimeout = 2 * time.Second

// Renderer displays the feed. Calls are made with the monitor's lock held
// and must not block or call back into the Monitor.
type Renderer interface {
	RenderAdd(it model.Item, visible bool)
	RenderUpdate(it model.Item, visible bool)
	RenderRemove(asin string)
	RenderSetUnavailable(asin string)
	RenderPlaceholders(n int)
	RenderStatus(st live.Status)
	// Measure returns the container width and the tile width, in the same
	// unit, used for placeholder layout.
	Measure() (containerPx, tilePx int)
}

// LiveChannel is the master-only live connection. *live.Manager implements it.
type LiveChannel interface {
	Start(ctx context.Context)
	Stop()
	Subscribe(fn func(live.Status)) (unsubscribe func())
}

// CatchUp is the catch-up fetch schedule. *catchup.Runner implements it.
type CatchUp interface {
	Start(ctx context.Context)
	Stop()
	Trigger(reason string) bool
}

// Roles reports this process's role. *tabs.Coordinator implements it.
type Roles interface {
	Role() model.Role
	Subscribe(fn func(model.Role)) (unsubscribe func())
}

// TitleObserver sees the title of every newly stored item.
// *trend.Tracker implements it.
type TitleObserver interface {
	Observe(title string)
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	pipe    *pipeline.Pipeline
	store   *items.Store
	counter *visibility.Counter
	layout  *layout.Engine
	render  Renderer
	relay   tabs.Relay
	roles   Roles
	journal *otel.Logger
	persist func(PersistIntent)
	trends  TitleObserver

	live    LiveChannel
	catchup CatchUp

	role   model.Role
	view   View
	sort   layout.Sort
	paused bool
	status live.Status

	ctx    context.Context // set by Run
	closed bool
	unsubs []func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRenderer sets the renderer. Without one, rendering is discarded.
func WithRenderer(r Renderer) Option {
	return func(m *Monitor) { m.render = r }
}

// WithRelay sets the cross-process relay.
func WithRelay(r tabs.Relay) Option {
	return func(m *Monitor) { m.relay = r }
}

// WithRoles sets the role source. Without one the monitor acts as master.
func WithRoles(r Roles) Option {
	return func(m *Monitor) { m.roles = r }
}

// WithJournal sets the status journal.
func WithJournal(j *otel.Logger) Option {
	return func(m *Monitor) { m.journal = j }
}

// WithPersist sets the sink for view and sort changes.
func WithPersist(fn func(PersistIntent)) Option {
	return func(m *Monitor) { m.persist = fn }
}

// WithTrends feeds new item titles to o.
func WithTrends(o TitleObserver) Option {
	return func(m *Monitor) { m.trends = o }
}

// WithView sets the initial view filter.
func WithView(v View) Option {
	return func(m *Monitor) { m.view = v }
}

// WithSort sets the initial sort order.
func WithSort(s layout.Sort) Option {
	return func(m *Monitor) { m.sort = s }
}

// New creates a Monitor over pipe and store.
func New(pipe *pipeline.Pipeline, store *items.Store, opts ...Option) *Monitor {
	m := &Monitor{
		pipe:    pipe,
		store:   store,
		counter: visibility.NewCounter(),
		layout:  layout.NewEngine(),
		render:  nopRenderer{},
		role:    model.RoleMaster,
		sort:    layout.SortRecentFirst,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.roles != nil {
		m.role = m.roles.Role()
	}
	m.unsubs = append(m.unsubs, m.counter.Subscribe(m.countChanged))
	return m
}

// Attach wires the live channel and the catch-up schedule. Both are built
// after the Monitor because they deliver into it. Call before Run.
func (m *Monitor) Attach(lc LiveChannel, cu CatchUp) {
	m.mu.Lock()
	m.live = lc
	m.catchup = cu
	m.mu.Unlock()

	if lc != nil {
		m.addUnsub(lc.Subscribe(m.liveStatus))
	}
}

// Counter exposes the visible counter for observers. Only the Monitor
// mutates it.
func (m *Monitor) Counter() *visibility.Counter {
	return m.counter
}

// Role returns the role the monitor is acting on.
func (m *Monitor) Role() model.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// Status returns the last known live connection status.
func (m *Monitor) Status() live.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run follows role changes and consumes the relay until ctx is done, then
// tears everything down. A relay that cannot be subscribed is logged and
// the monitor keeps running on its own.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.ctx = ctx
	m.mu.Unlock()
	defer m.Close()

	role := model.RoleMaster
	if m.roles != nil {
		m.addUnsub(m.roles.Subscribe(m.OnRoleChange))
		role = m.roles.Role()
	}
	m.OnRoleChange(role)

	if m.relay != nil {
		err := m.relay.Subscribe(ctx, m.HandleRelay)
		if err != nil && ctx.Err() == nil {
			logging.Warn("relay subscription failed", "error", err)
			m.journal.Error(otel.KindRelayError, "monitor", err)
		}
	}
	<-ctx.Done()
	return nil
}

// OnRoleChange starts the live channel and the catch-up schedule when this
// process becomes master and stops them otherwise. The store is kept.
func (m *Monitor) OnRoleChange(r model.Role) {
	m.mu.Lock()
	m.role = r
	ctx, lc, cu, closed := m.ctx, m.live, m.catchup, m.closed
	m.mu.Unlock()

	if closed || ctx == nil {
		return
	}
	logging.Info("monitor role", "role", r)

	if r == model.RoleMaster {
		if lc != nil {
			lc.Start(ctx)
		}
		if cu != nil {
			cu.Start(ctx)
			cu.Trigger("master")
		}
		return
	}
	if lc != nil {
		lc.Stop()
	}
	if cu != nil {
		cu.Stop()
	}
}

// RequestFetch asks for a catch-up fetch. A slave forwards the request to
// the master over the relay.
func (m *Monitor) RequestFetch(reason string) {
	m.mu.Lock()
	role, cu := m.role, m.catchup
	m.mu.Unlock()

	if role == model.RoleMaster {
		if cu != nil {
			cu.Trigger(reason)
		}
		return
	}
	m.publish(event.FetchRequest{Reason: reason})
}

// Close stops the live channel and the schedule, removes subscriptions and
// makes every later call a no-op. Safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	lc, cu := m.live, m.catchup
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	if cu != nil {
		cu.Stop()
	}
	if lc != nil {
		lc.Stop()
	}
}

func (m *Monitor) addUnsub(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		fn()
		return
	}
	m.unsubs = append(m.unsubs, fn)
}

func (m *Monitor) liveStatus(st live.Status) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.status = st
	m.render.RenderStatus(st)
	master, cu := m.role == model.RoleMaster, m.catchup
	m.mu.Unlock()

	if !master {
		return
	}
	if st.State == live.StateConnected && cu != nil {
		cu.Trigger("reconnect")
	}
	p := event.Status{State: st.State.String()}
	if st.Err != nil {
		p.Err = st.Err.Error()
	}
	m.publish(p)
}

func (m *Monitor) publish(p event.Payload) {
	if m.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.relay.Publish(ctx, event.Message{Payload: p}); err != nil {
		logging.Warn("relay publish failed", "type", p.RelayType(), "error", err)
		m.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRelayError, Comp: "monitor", Msg: string(p.RelayType()), Err: err.Error()})
	}
}

type nopRenderer struct{}

func (nopRenderer) RenderAdd(model.Item, bool)    {}
func (nopRenderer) RenderUpdate(model.Item, bool) {}
func (nopRenderer) RenderRemove(string)           {}
func (nopRenderer) RenderSetUnavailable(string)   {}
func (nopRenderer) RenderPlaceholders(int)        {}
func (nopRenderer) RenderStatus(live.Status)      {}
func (nopRenderer) Measure() (int, int)           { return 0, 0 }
