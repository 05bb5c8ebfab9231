package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/visibility"
)

// Settings keys written through PersistIntent.
const (
	KeyView = "monitor.view"
	KeySort = "monitor.sort"
)

// PersistIntent asks the settings store to save a value. The monitor never
// writes settings itself.
type PersistIntent struct {
	Key   string
	Value string
}

// View filters which stored items are visible.
type View struct {
	Queue           model.Queue `json:"queue,omitempty"` // empty shows every queue
	HighlightOnly   bool        `json:"highlight_only,omitempty"`
	HideUnavailable bool        `json:"hide_unavailable,omitempty"`
}

// Shows reports whether it passes the view.
func (v View) Shows(it model.Item) bool {
	if v.Queue != "" && it.Queue != v.Queue {
		return false
	}
	if v.HighlightOnly && !it.HighlightMatch.Matched() {
		return false
	}
	if v.HideUnavailable && it.Unavailable {
		return false
	}
	return true
}

// ParseView decodes a persisted view. An empty string is the zero View.
func ParseView(s string) (View, error) {
	var v View
	if s == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return View{}, err
	}
	if v.Queue != "" && !v.Queue.Known() {
		return View{}, fmt.Errorf("unknown queue %q", v.Queue)
	}
	return v, nil
}

// View returns the active view filter.
func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// SetView changes the view filter. Visibility is recomputed for every
// stored item and the visible count is reset from the result.
func (m *Monitor) SetView(v View) {
	m.mu.Lock()
	if m.closed || v == m.view {
		m.mu.Unlock()
		return
	}
	m.view = v
	for _, e := range m.store.Recent() {
		if visible := v.Shows(e.Item); visible != e.Visible {
			m.store.SetVisible(e.Item.ASIN, visible)
			m.render.RenderUpdate(e.Item, visible)
		}
	}
	m.counter.Set(m.store.VisibleLen())
	m.relayoutLocked()
	m.mu.Unlock()

	if data, err := json.Marshal(v); err == nil {
		m.emitPersist(PersistIntent{Key: KeyView, Value: string(data)})
	}
}

// SetSort changes the sort order. Placeholders only apply to most recent
// first.
func (m *Monitor) SetSort(s layout.Sort) {
	m.mu.Lock()
	if m.closed || s == m.sort {
		m.mu.Unlock()
		return
	}
	m.sort = s
	m.relayoutLocked()
	m.mu.Unlock()

	m.emitPersist(PersistIntent{Key: KeySort, Value: string(s)})
}

// Sort returns the active sort order.
func (m *Monitor) Sort() layout.Sort {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sort
}

// SetPaused pauses or resumes the feed display. Placeholders are cleared
// while paused.
func (m *Monitor) SetPaused(p bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || p == m.paused {
		return
	}
	m.paused = p
	m.relayoutLocked()
}

// Paused reports whether the feed display is paused.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Relayout recomputes placeholders, e.g. after the container was resized.
func (m *Monitor) Relayout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.relayoutLocked()
}

// Placeholders returns the leading placeholder count last rendered.
func (m *Monitor) Placeholders() int {
	return m.layout.Rendered()
}

// countChanged observes the visible counter. The counter is only mutated
// with m.mu held, so this runs under the lock.
func (m *Monitor) countChanged(c visibility.Change) {
	metrics.VisibleItems.Set(float64(c.Count))
	m.recomputeLocked(c.Count)
}

func (m *Monitor) relayoutLocked() {
	m.recomputeLocked(m.counter.Count())
}

func (m *Monitor) recomputeLocked(visible int) {
	containerPx, tilePx := m.render.Measure()
	n, changed := m.layout.Recompute(layout.Input{
		Visible:     visible,
		ContainerPx: containerPx,
		TilePx:      tilePx,
		Sort:        m.sort,
		Paused:      m.paused,
	})
	if changed {
		m.render.RenderPlaceholders(n)
	}
}

func (m *Monitor) emitPersist(pi PersistIntent) {
	if m.persist == nil {
		return
	}
	logging.Debug("persist intent", "key", pi.Key)
	m.persist(pi)
}

func statusFromRelay(p event.Status, sent time.Time) live.Status {
	st := live.Status{State: live.ParseState(p.State), Time: sent}
	if p.Err != "" {
		st.Err = errors.New(p.Err)
	}
	return st
}
