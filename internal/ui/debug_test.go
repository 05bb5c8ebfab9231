package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/vinewatch/internal/otel"
	"github.com/abelbrown/vinewatch/internal/trend"
)

func TestDebugOverlayNilRing(t *testing.T) {
	result := debugOverlay(nil, nil, 80, 24)
	if result != "" {
		t.Errorf("debugOverlay(nil) should return empty string, got %q", result)
	}
}

func TestDebugOverlayRendersStats(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	ring.Push(otel.Event{Kind: otel.KindLiveConnected, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindLiveConnected, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindLiveError, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindNotifySent, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindNotifySuppressed, Time: time.Now()})

	result := debugOverlay(ring, nil, 120, 40)

	if !strings.Contains(result, "Monitor Stats") {
		t.Error("overlay should contain 'Monitor Stats' header")
	}
	if !strings.Contains(result, "2 connected, 0 closed, 1 errors") {
		t.Errorf("overlay should show live stats, got:\n%s", result)
	}
	if !strings.Contains(result, "1 sent, 1 suppressed") {
		t.Errorf("overlay should show notify stats, got:\n%s", result)
	}
	if !strings.Contains(result, "5 / 64 events") {
		t.Errorf("overlay should show buffer stats, got:\n%s", result)
	}
}

func TestDebugOverlayRecentEvents(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	ring.Push(otel.Event{Kind: otel.KindPushIntent, Time: time.Now(), Msg: "hello world"})
	ring.Push(otel.Event{Kind: otel.KindCatchupError, Time: time.Now(), Err: "timeout"})
	ring.Push(otel.Event{Kind: otel.KindStoreEvict, Time: time.Now(), ASIN: "B0EVICTED"})

	result := debugOverlay(ring, nil, 120, 40)

	if !strings.Contains(result, "Recent Events") {
		t.Error("overlay should contain 'Recent Events' header")
	}
	if !strings.Contains(result, "hello world") {
		t.Errorf("overlay should show event message, got:\n%s", result)
	}
	if !strings.Contains(result, "ERR:timeout") {
		t.Errorf("overlay should show error, got:\n%s", result)
	}
	if !strings.Contains(result, "B0EVICTED") {
		t.Errorf("overlay should show the ASIN, got:\n%s", result)
	}
}

func TestDebugOverlayTruncation(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	// Push 30 events
	for i := 0; i < 30; i++ {
		ring.Push(otel.Event{Kind: otel.KindLiveFrame, Time: time.Now()})
	}

	// Very small height should still render without panic
	result := debugOverlay(ring, nil, 80, 10)
	if result == "" {
		t.Error("overlay should still render with small height")
	}

	// Count the lines (approximately) â€” should be limited
	lines := strings.Count(result, "\n")
	// With height=10, maxHeight=6, so at most ~6 content lines (plus border/padding)
	if lines > 20 { // generous bound accounting for lipgloss borders
		t.Errorf("overlay should be truncated, got %d lines", lines)
	}
}

func TestDebugToggle(t *testing.T) {
	ring := otel.NewRingBuffer(16)
	app := NewApp(newFakeController(), NewRenderer(0), ring)
	app.ready = true
	app.width = 80
	app.height = 24

	if app.showDebug {
		t.Error("debug should be hidden initially")
	}

	model, _ := app.Update(keyRune('D'))
	updated := model.(App)
	if !updated.showDebug {
		t.Error("D should show debug overlay")
	}

	view := updated.View()
	if !strings.Contains(view, "[DEBUG]") {
		t.Errorf("debug view should contain '[DEBUG]', got:\n%s", view)
	}

	model, _ = updated.Update(keyRune('D'))
	updated = model.(App)
	if updated.showDebug {
		t.Error("second D should hide debug overlay")
	}
}

func TestDebugToggleWithoutRing(t *testing.T) {
	app := NewApp(newFakeController(), NewRenderer(0), nil)
	model, _ := app.Update(keyRune('D'))
	if model.(App).showDebug {
		t.Error("debug pane should stay hidden without a ring buffer")
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		dur  time.Duration
		want string
	}{
		{0, "0ms"},
		{50 * time.Millisecond, "50ms"},
		{999 * time.Millisecond, "999ms"},
		{1500 * time.Millisecond, "1.5s"},
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "2m"}, // 1.5 minutes rounds to 2 with %.0f
		{5 * time.Minute, "5m"},
	}
	for _, tt := range tests {
		got := formatAge(tt.dur)
		if got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.dur, got, tt.want)
		}
	}
}

func TestFormatAgeNegative(t *testing.T) {
	got := formatAge(-5 * time.Second)
	if got != "0ms" {
		t.Errorf("formatAge(-5s) = %q, want \"0ms\"", got)
	}
}

func TestDebugOverlayLastIssue(t *testing.T) {
	ring := otel.NewRingBuffer(16)
	ring.Push(otel.Event{Level: otel.LevelWarn, Kind: otel.KindCatchupError, Time: time.Now(), Err: "timeout"})
	ring.Push(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveConnected, Time: time.Now()})

	result := debugOverlay(ring, nil, 120, 40)
	if !strings.Contains(result, "Last issue: catchup.error timeout") {
		t.Errorf("overlay should show the last warning, got:\n%s", result)
	}

	quiet := otel.NewRingBuffer(16)
	quiet.Push(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveConnected, Time: time.Now()})
	if strings.Contains(debugOverlay(quiet, nil, 120, 40), "Last issue") {
		t.Error("no issue line without warnings")
	}
}

func TestDebugOverlayTrending(t *testing.T) {
	ring := otel.NewRingBuffer(4)
	words := []trend.Word{{Word: "lamp", Count: 4}, {Word: "desk", Count: 2}}
	result := debugOverlay(ring, words, 120, 40)
	if !strings.Contains(result, "Trending:   lamp(4) desk(2)") {
		t.Errorf("overlay should list trending words, got:\n%s", result)
	}
	if strings.Contains(debugOverlay(ring, nil, 120, 40), "Trending") {
		t.Error("no trending line without words")
	}
}
