package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"
)

// eventRecord mirrors otel.Event for JSON decoding, so old journal lines
// still decode after the event schema changes.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	ASIN      string         `json:"asin"`
	Role      string         `json:"role"`
	State     string         `json:"state"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "trace":
		return 0
	case "info":
		return 2
	case "warn":
		return 3
	case "error":
		return 4
	default:
		return 1
	}
}

type eventFilter struct {
	kind  string
	level string
	comp  string
	asin  string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.asin != "" && ev.ASIN != f.asin {
		return false
	}
	return true
}

func (c *cli) events(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	tail := fs.Int("tail", 50, "Number of recent lines to show")
	follow := fs.Bool("f", false, "Follow mode (like tail -f)")
	var filter eventFilter
	fs.StringVar(&filter.kind, "kind", "", "Filter by event kind prefix (e.g. 'live')")
	fs.StringVar(&filter.level, "level", "", "Minimum level: trace, debug, info, warn, error")
	fs.StringVar(&filter.comp, "comp", "", "Filter by component name")
	fs.StringVar(&filter.asin, "asin", "", "Filter by item ASIN")
	rawJSON := fs.Bool("json", false, "Output raw JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := c.cfg.JournalPath()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w (run vinewatch first to create the journal)", err)
	}
	defer f.Close()

	emit := func(ev eventRecord, raw []byte) {
		if *rawJSON {
			fmt.Fprintln(c.out, string(raw))
			return
		}
		fmt.Fprintln(c.out, formatEvent(ev))
	}

	for _, l := range readTailLines(f, *tail, filter.match) {
		emit(l.ev, l.raw)
	}
	if !*follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := bufio.NewReader(f)
	var pending []byte
	for ctx.Err() == nil {
		chunk, err := reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		if err == io.EOF {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		line := trimLine(pending)
		pending = nil
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.match(ev) {
			emit(ev, line)
		}
	}
	return nil
}

func formatEvent(ev eventRecord) string {
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-22s", ev.Time.Local().Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.ASIN != "" {
		parts = append(parts, "asin="+ev.ASIN)
	}
	if ev.Role != "" {
		parts = append(parts, "role="+ev.Role)
	}
	if ev.State != "" {
		parts = append(parts, "state="+ev.State)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads r and returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	if n <= 0 {
		return nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]parsedLine, 0, n)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil || !match(ev) {
			continue
		}
		line := parsedLine{ev: ev, raw: append([]byte(nil), raw...)}
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			copy(ring, ring[1:])
			ring[n-1] = line
		}
	}
	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
