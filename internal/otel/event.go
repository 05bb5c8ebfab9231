// Package otel provides the status journal for vinewatch.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the status pane.
package otel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelTrace Level = "trace" // per-frame detail, off unless asked for
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// rank orders levels. An empty level ranks with debug.
func (l Level) rank() int {
	switch l {
	case LevelTrace:
		return 0
	case LevelInfo:
		return 2
	case LevelWarn:
		return 3
	case LevelError:
		return 4
	default:
		return 1
	}
}

// ParseLevel maps a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	}
	return "", fmt.Errorf("otel: unknown level %q", s)
}

// EventKind identifies the category of a journal event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Live channel
	KindLiveConnecting EventKind = "live.connecting"
	KindLiveConnected  EventKind = "live.connected"
	KindLiveClosed     EventKind = "live.disconnected"
	KindLiveError      EventKind = "live.error"
	KindLiveFrame      EventKind = "live.frame"
	KindLiveMalformed  EventKind = "live.malformed"

	// Catch-up fetches
	KindCatchupStart    EventKind = "catchup.start"
	KindCatchupComplete EventKind = "catchup.complete"
	KindCatchupError    EventKind = "catchup.error"

	// Filter pipeline
	KindPipelineDrop EventKind = "pipeline.drop"
	KindStageFailure EventKind = "pipeline.stage_failure"
	KindPushIntent   EventKind = "pipeline.push_intent"

	// Item store
	KindStoreEvict    EventKind = "store.evict"
	KindStoreOverflow EventKind = "store.overflow"
	KindStoreClear    EventKind = "store.clear"
	KindStoreError    EventKind = "store.error"

	// Tab coordination
	KindRoleChange   EventKind = "tabs.role"
	KindRelayError   EventKind = "tabs.relay_error"
	KindRelayReceive EventKind = "tabs.relay_recv"

	// Notifications
	KindNotifySent       EventKind = "notify.sent"
	KindNotifySuppressed EventKind = "notify.suppressed"
	KindNotifyError      EventKind = "notify.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal journal record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "live", "monitor", "catchup", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire process run
	ASIN      string         `json:"asin,omitempty"`
	Role      string         `json:"role,omitempty"`
	State     string         `json:"state,omitempty"` // live channel state
	Dur       time.Duration  `json:"-"`               // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
