package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/vinewatch/internal/otel"
	"github.com/abelbrown/vinewatch/internal/trend"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// trendCount is how many trending words the pane lists.
const trendCount = 8

// debugOverlay renders the debug panel showing monitor stats and recent events.
// Pure function with no side effects. Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, trends []trend.Word, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Monitor Stats"))
	lines = append(lines, fmt.Sprintf("  Live:       %d connected, %d closed, %d errors, %d malformed",
		stats[otel.KindLiveConnected], stats[otel.KindLiveClosed], stats[otel.KindLiveError], stats[otel.KindLiveMalformed]))
	lines = append(lines, fmt.Sprintf("  Catch-up:   %d complete, %d errors",
		stats[otel.KindCatchupComplete], stats[otel.KindCatchupError]))
	lines = append(lines, fmt.Sprintf("  Pipeline:   %d dropped, %d stage failures, %d pushes",
		stats[otel.KindPipelineDrop], stats[otel.KindStageFailure], stats[otel.KindPushIntent]))
	lines = append(lines, fmt.Sprintf("  Store:      %d evictions, %d overflows, %d clears",
		stats[otel.KindStoreEvict], stats[otel.KindStoreOverflow], stats[otel.KindStoreClear]))
	lines = append(lines, fmt.Sprintf("  Notify:     %d sent, %d suppressed, %d errors",
		stats[otel.KindNotifySent], stats[otel.KindNotifySuppressed], stats[otel.KindNotifyError]))
	lines = append(lines, fmt.Sprintf("  Tabs:       %d role changes, %d relay errors",
		stats[otel.KindRoleChange], stats[otel.KindRelayError]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	if p := ring.Problems(1); len(p) > 0 {
		last := p[0]
		msg := last.Err
		if msg == "" {
			msg = last.Msg
		}
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("  Last issue: %s %s (%s ago)",
			last.Kind, truncateRunes(msg, 40), formatAge(time.Since(last.Time)))))
	}
	if len(trends) > 0 {
		words := make([]string, len(trends))
		for i, w := range trends {
			words[i] = fmt.Sprintf("%s(%d)", w.Word, w.Count)
		}
		lines = append(lines, "  Trending:   "+truncateRunes(strings.Join(words, " "), 80))
	}
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-24s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.ASIN != "" {
			line += "  " + e.ASIN
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("D") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
