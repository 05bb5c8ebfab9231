// Package live owns the push connection to the live event source.
//
// The Manager cycles Disconnected -> Connecting -> Connected -> Disconnected.
// A fixed-interval ticker re-attempts the connection whenever it is down;
// there is no separate backoff. Connection failures are logged and reported
// to status observers, never returned to the surrounding process.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// DefaultInterval is the reconnect ticker period.
const DefaultInterval = 12 * time.Second

// ErrIdentityUnknown is returned by Connect while the country is not known.
var ErrIdentityUnknown = errors.New("live: identity unknown")

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ParseState is the inverse of State.String. Unknown names map to
// StateDisconnected.
func ParseState(s string) State {
	switch s {
	case "connecting":
		return StateConnecting
	case "connected":
		return StateConnected
	default:
		return StateDisconnected
	}
}

// Status is delivered to observers on every state transition.
type Status struct {
	State State
	Err   error // cause of a transition to Disconnected, if any
	Time  time.Time
}

// Identity is passed through to the event source as query parameters.
type Identity struct {
	Country     string
	AnonymousID string
	DeviceID    string
	AppVersion  string
}

// Known reports whether enough identity is present to connect.
func (id Identity) Known() bool {
	return id.Country != ""
}

// Query returns the identity as URL query values.
func (id Identity) Query() url.Values {
	q := url.Values{}
	q.Set("country", id.Country)
	if id.AnonymousID != "" {
		q.Set("uuid", id.AnonymousID)
	}
	if id.DeviceID != "" {
		q.Set("fid", id.DeviceID)
	}
	if id.AppVersion != "" {
		q.Set("app_version", id.AppVersion)
	}
	return q
}

// Conn is an open connection that yields raw event frames.
type Conn interface {
	Read() ([]byte, error)
	Close() error
}

// Dialer opens connections to the event source.
type Dialer interface {
	Dial(ctx context.Context, id Identity) (Conn, error)
}

// Manager owns at most one live connection at a time.
type Manager struct {
	dialer   Dialer
	identity func() Identity
	handler  func(event.Live)
	interval time.Duration
	journal  *otel.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	conn      Conn
	cancel    context.CancelFunc
	observers map[int]func(Status)
	order     []int
	nextID    int
	wg        sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdentity sets the identity source, read before every attempt.
func WithIdentity(fn func() Identity) Option {
	return func(m *Manager) { m.identity = fn }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithJournal sets the status journal.
func WithJournal(j *otel.Logger) Option {
	return func(m *Manager) { m.journal = j }
}

// NewManager creates a Manager that hands decoded events to handler.
func NewManager(dialer Dialer, handler func(event.Live), opts ...Option) *Manager {
	m := &Manager{
		dialer:    dialer,
		identity:  func() Identity { return Identity{} },
		handler:   handler,
		interval:  DefaultInterval,
		now:       time.Now,
		observers: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for status changes. The returned function removes it.
func (m *Manager) Subscribe(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.order = append(m.order, id)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Start attempts a connection now and then on every tick until Stop or ctx
// cancellation. Calling Start while running is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			_ = m.Connect(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the ticker, closes the connection and waits for the reader
// to exit. The item store is not touched.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	if cancel != nil {
		cancel()
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()
	m.setState(StateDisconnected, nil)
}

// Connect makes one connection attempt. It does nothing while a connection
// is open or in flight, and refuses while the identity is unknown.
func (m *Manager) Connect(ctx context.Context) error {
	id := m.identity()
	if !id.Known() {
		logging.Debug("live connect skipped, identity unknown")
		return ErrIdentityUnknown
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	fns := m.observerList()
	m.mu.Unlock()
	m.notify(Status{State: StateConnecting, Time: m.now()}, fns)

	start := m.now()
	conn, err := m.dialer.Dial(ctx, id)
	if err != nil {
		metrics.LiveConnectAttemptsTotal.WithLabelValues("error").Inc()
		logging.Warn("live connect failed", "error", err)
		m.journal.Error(otel.KindLiveError, "live", err)
		m.setState(StateDisconnected, err)
		return fmt.Errorf("live dial: %w", err)
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		conn.Close()
		m.setState(StateDisconnected, nil)
		return ctx.Err()
	}
	m.conn = conn
	m.mu.Unlock()

	metrics.LiveConnectAttemptsTotal.WithLabelValues("ok").Inc()
	m.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveConnected, Comp: "live", Dur: m.now().Sub(start)})
	m.setState(StateConnected, nil)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.read(ctx, conn)
	}()
	return nil
}

// read pumps frames until the connection fails or is closed.
func (m *Manager) read(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			conn.Close()
			m.mu.Lock()
			owned := m.conn == conn
			if owned {
				m.conn = nil
			}
			m.mu.Unlock()

			// Stop clears m.conn before closing it.
			if !owned || ctx.Err() != nil {
				err = nil
			} else {
				logging.Warn("live connection lost", "error", err)
				m.journal.Error(otel.KindLiveClosed, "live", err)
			}
			m.setState(StateDisconnected, err)
			return
		}

		if m.journal.Enabled(otel.LevelTrace) {
			m.journal.Emit(otel.Event{Level: otel.LevelTrace, Kind: otel.KindLiveFrame, Comp: "live", Count: len(data)})
		}

		ev, err := event.DecodeLive(data)
		if err != nil {
			logging.Warn("skipping malformed live frame", "error", err)
			m.journal.Error(otel.KindLiveMalformed, "live", err)
			continue
		}
		if m.handler != nil {
			m.handler(ev)
		}
	}
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	if m.state == s && err == nil {
		m.mu.Unlock()
		return
	}
	m.state = s
	fns := m.observerList()
	m.mu.Unlock()
	m.notify(Status{State: s, Err: err, Time: m.now()}, fns)
}

// observerList snapshots the observers. Caller must hold m.mu.
func (m *Manager) observerList() []func(Status) {
	fns := make([]func(Status), 0, len(m.order))
	for _, id := range m.order {
		fns = append(fns, m.observers[id])
	}
	return fns
}

func (m *Manager) notify(st Status, fns []func(Status)) {
	metrics.LiveState.Set(float64(st.State))
	if st.State == StateConnecting {
		m.journal.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindLiveConnecting, Comp: "live", State: st.State.String()})
	}
	for _, fn := range fns {
		fn(st)
	}
}
