package catchup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// ErrStopped is returned when a fetch completes after the runner was
// stopped. Its result has been discarded.
var ErrStopped = errors.New("catchup: runner stopped")

const (
	DefaultLimit    = 100
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 30 * time.Second
)

// Runner schedules catch-up fetches and hands results to a sink.
type Runner struct {
	source   Source
	sink     func([]model.Item)
	limit    int
	interval time.Duration
	timeout  time.Duration
	journal  *otel.Logger

	trigger chan string

	mu      sync.Mutex
	running bool
	gen     uint64 // bumped on every Start and Stop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithLimit sets how many items each fetch asks for.
func WithLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithInterval sets the periodic schedule. 0 disables it.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithTimeout bounds a single fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithJournal sets the status journal.
func WithJournal(j *otel.Logger) Option {
	return func(r *Runner) { r.journal = j }
}

// NewRunner creates a Runner that passes fetched items to sink.
func NewRunner(source Source, sink func([]model.Item), opts ...Option) *Runner {
	r := &Runner{
		source:   source,
		sink:     sink,
		limit:    DefaultLimit,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		trigger:  make(chan string, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the schedule until Stop or ctx cancellation. No-op if running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, gen)
	}()
}

// Trigger requests a fetch as soon as possible. Requests arriving while one
// is pending are coalesced. Returns false if the runner is not running.
func (r *Runner) Trigger(reason string) bool {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return false
	}
	select {
	case r.trigger <- reason:
	default:
	}
	return true
}

// Stop ends the schedule. It does not abort a fetch in flight; that fetch's
// result is discarded when it lands. Use Wait to block until it has.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.gen++
	r.cancel()
}

// Wait blocks until the schedule goroutine has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Running reports whether the schedule is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context, gen uint64) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.run(ctx, gen, "schedule")
		case reason := <-r.trigger:
			r.run(ctx, gen, reason)
		}
	}
}

func (r *Runner) run(ctx context.Context, gen uint64, reason string) {
	if _, err := r.fetch(ctx, gen, reason); err != nil && !errors.Is(err, ErrStopped) {
		logging.Warn("catch-up fetch failed", "reason", reason, "error", err)
	}
}

// fetch performs one fetch and delivers the result if the runner is still on
// generation gen. The fetch outlives Stop; only its result is dropped.
func (r *Runner) fetch(ctx context.Context, gen uint64, reason string) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	r.journal.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindCatchupStart, Comp: "catchup", Msg: reason})
	start := time.Now()
	items, err := r.source.FetchRecent(ctx, r.limit)
	dur := time.Since(start)
	metrics.CatchupDuration.Observe(dur.Seconds())

	if !r.current(gen) {
		logging.Debug("discarding catch-up result after stop", "reason", reason, "items", len(items))
		return 0, ErrStopped
	}
	if err != nil {
		metrics.CatchupErrorsTotal.Inc()
		r.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindCatchupError, Comp: "catchup", Msg: reason, Err: err.Error(), Dur: dur})
		return 0, err
	}

	r.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindCatchupComplete, Comp: "catchup", Msg: reason, Count: len(items), Dur: dur})
	if len(items) == 0 {
		logging.Warn("catch-up fetch returned no items", "reason", reason)
		return 0, nil
	}
	if r.sink != nil {
		r.sink(items)
	}
	return len(items), nil
}

func (r *Runner) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && r.gen == gen
}
