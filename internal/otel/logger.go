package otel

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/vinewatch/internal/metrics"
)

// queueSize bounds the events waiting for the writer goroutine.
const queueSize = 4096

type entry struct {
	line []byte
	ev   Event // kept whole for the ring; Dur does not survive JSON
}

// Logger appends events to a JSONL journal from a single writer goroutine.
// Emit never blocks: when the queue is full the event is counted as
// dropped. A nil *Logger discards everything.
type Logger struct {
	session string
	w       io.Writer
	queue   chan entry
	done    chan struct{}

	ring     atomic.Pointer[RingBuffer]
	minLevel atomic.Int32
	dropped  atomic.Uint64
	closed   atomic.Bool
	once     sync.Once
}

// Option configures a Logger.
type Option func(*Logger)

// WithSession stamps every event with id instead of a random session id.
// vinewatch passes the tab id so journals of several tabs can be told
// apart.
func WithSession(id string) Option {
	return func(l *Logger) { l.session = id }
}

// WithMinLevel discards events below lvl.
func WithMinLevel(lvl Level) Option {
	return func(l *Logger) { l.minLevel.Store(int32(lvl.rank())) }
}

// NewLogger starts a journal writing to w. Close flushes it.
func NewLogger(w io.Writer, opts ...Option) *Logger {
	l := &Logger{
		w:     w,
		queue: make(chan entry, queueSize),
		done:  make(chan struct{}),
	}
	l.minLevel.Store(int32(LevelDebug.rank()))
	for _, opt := range opts {
		opt(l)
	}
	if l.session == "" {
		var b [8]byte
		_, _ = rand.Read(b[:])
		l.session = hex.EncodeToString(b[:])
	}
	go l.write()
	return l
}

// NewNullLogger returns a journal that keeps nothing on disk. A ring
// attached to it still fills.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) write() {
	defer close(l.done)
	for e := range l.queue {
		if _, err := l.w.Write(e.line); err != nil {
			l.drop()
		}
		if rb := l.ring.Load(); rb != nil {
			rb.Push(e.ev)
		}
	}
}

func (l *Logger) drop() {
	l.dropped.Add(1)
	metrics.JournalDroppedTotal.Inc()
}

// Enabled reports whether events at lvl are kept. Callers building costly
// events check it first.
func (l *Logger) Enabled(lvl Level) bool {
	return l != nil && int32(lvl.rank()) >= l.minLevel.Load()
}

// SetMinLevel changes the level threshold.
func (l *Logger) SetMinLevel(lvl Level) {
	l.minLevel.Store(int32(lvl.rank()))
}

// Emit queues e. Time defaults to now and SessionID is always overwritten.
// Emit may race with Close; a send on the closed queue counts as a drop.
func (l *Logger) Emit(e Event) {
	if !l.Enabled(e.Level) {
		return
	}
	if l.closed.Load() {
		l.drop()
		return
	}
	defer func() {
		if recover() != nil {
			l.drop()
		}
	}()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.session

	line, err := json.Marshal(e)
	if err != nil {
		l.drop()
		return
	}
	line = append(line, '\n')

	select {
	case l.queue <- entry{line: line, ev: e}:
	default:
		l.drop()
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. A nil err leaves Err empty.
func (l *Logger) Error(kind EventKind, comp string, err error) {
	e := Event{Level: LevelError, Kind: kind, Comp: comp}
	if err != nil {
		e.Err = err.Error()
	}
	l.Emit(e)
}

// Item emits a debug event about one item.
func (l *Logger) Item(kind EventKind, comp, asin, msg string) {
	l.Emit(Event{Level: LevelDebug, Kind: kind, Comp: comp, ASIN: asin, Msg: msg})
}

// SetRingBuffer mirrors written events into buf for the debug pane.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.ring.Store(buf)
}

// Session returns the id stamped on every event.
func (l *Logger) Session() string {
	return l.session
}

// Dropped returns the number of events lost so far.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close drains the queue and stops the writer. Idempotent.
func (l *Logger) Close() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.queue)
		<-l.done
		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "vinewatch: %d journal events dropped in session %s\n", d, l.session)
		}
	})
}
