package monitor

import (
	"slices"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/items"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// Origins label where an item came from.
const (
	OriginLive    = "live"
	OriginCatchup = "catchup"
	OriginRelay   = "relay"
)

// HandleLive applies one event from the live channel. This is the master
// path: new records go through the full pipeline and the processed result
// is relayed to the other processes. Events arriving after a demotion are
// dropped.
func (m *Monitor) HandleLive(ev event.Live) {
	m.mu.Lock()
	if m.closed || m.role != model.RoleMaster {
		m.mu.Unlock()
		logging.Debug("dropping live event, not master", "type", ev.Type())
		return
	}

	var out event.Payload
	switch e := ev.(type) {
	case event.NewItem:
		if it, ok := m.ingestLocked(e.Item, OriginLive); ok {
			out = event.PreprocessedItem{Item: it}
		}
	case event.Last100:
		out = event.Batch{Items: m.ingestManyLocked(e.Items, OriginLive)}
	case event.NewETV:
		if m.updateETVLocked(e.ASIN, e.ETVMin, e.ETVMax) {
			out = event.ETVUpdate{ASIN: e.ASIN, ETVMin: e.ETVMin, ETVMax: e.ETVMax}
		}
	case event.NewVariants:
		if m.updateVariantsLocked(e.ASIN, e.Title, e.Variants) {
			out = event.VariantsUpdate{ASIN: e.ASIN, Title: e.Title, Variants: e.Variants}
		}
	case event.UnavailableItem:
		if m.markUnavailableLocked(e.ASIN) {
			out = event.Unavailable{ASIN: e.ASIN}
		}
	case event.ReloadPage:
		cu := m.catchup
		m.mu.Unlock()
		if cu != nil {
			cu.Trigger("reload")
		}
		return
	default:
		logging.Warn("unhandled live event", "type", ev.Type())
	}
	m.mu.Unlock()

	if out != nil {
		m.publish(out)
	}
}

// IngestBatch is the catch-up sink. Each record takes the same path as a
// live newItem, and the processed batch is relayed.
func (m *Monitor) IngestBatch(batch []model.Item) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	processed := m.ingestManyLocked(batch, OriginCatchup)
	master := m.role == model.RoleMaster
	m.mu.Unlock()

	if master && len(processed) > 0 {
		m.publish(event.Batch{Items: processed})
	}
}

// HandleRelay applies a message from another process. Items in it were
// already processed by the master; they are stored without running the
// pipeline or any side effect.
func (m *Monitor) HandleRelay(msg event.Message) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.journal.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindRelayReceive, Comp: "monitor", Msg: string(msg.Type())})

	switch p := msg.Payload.(type) {
	case event.PreprocessedItem:
		m.applyLocked(p.Item, OriginRelay)
	case event.Batch:
		for _, it := range slices.Backward(p.Items) {
			m.applyLocked(it, OriginRelay)
		}
	case event.ETVUpdate:
		m.updateETVLocked(p.ASIN, p.ETVMin, p.ETVMax)
	case event.VariantsUpdate:
		m.updateVariantsLocked(p.ASIN, p.Title, p.Variants)
	case event.Unavailable:
		m.markUnavailableLocked(p.ASIN)
	case event.Status:
		if m.role != model.RoleMaster {
			m.status = statusFromRelay(p, msg.Sent)
			m.render.RenderStatus(m.status)
		}
	case event.FetchRequest:
		master, cu := m.role == model.RoleMaster, m.catchup
		m.mu.Unlock()
		if master && cu != nil {
			cu.Trigger("relay:" + p.Reason)
		}
		return
	}
	m.mu.Unlock()
}

// MarkUnavailable annotates an item as no longer orderable. It stays in the
// store; it only stops being visible when the view hides unavailable items.
func (m *Monitor) MarkUnavailable(asin string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ok := m.markUnavailableLocked(asin)
	master := m.role == model.RoleMaster
	m.mu.Unlock()

	if ok && master {
		m.publish(event.Unavailable{ASIN: asin})
	}
}

// UpdateETV sets an item's estimated value and re-runs the keyword stages
// on it. An item that a hide rule now matches is removed.
func (m *Monitor) UpdateETV(asin string, etvMin, etvMax float64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ok := m.updateETVLocked(asin, etvMin, etvMax)
	master := m.role == model.RoleMaster
	m.mu.Unlock()

	if ok && master {
		m.publish(event.ETVUpdate{ASIN: asin, ETVMin: etvMin, ETVMax: etvMax})
	}
}

// UpdateVariants stores the variant list of a parent item.
func (m *Monitor) UpdateVariants(asin, title string, variants []model.Variant) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ok := m.updateVariantsLocked(asin, title, variants)
	master := m.role == model.RoleMaster
	m.mu.Unlock()

	if ok && master {
		m.publish(event.VariantsUpdate{ASIN: asin, Title: title, Variants: variants})
	}
}

// Clear removes the listed ASINs, or with keep set every ASIN not listed.
// Clear(nil, true) empties the feed.
func (m *Monitor) Clear(asins []string, keep bool) items.Removal {
	set := make(map[string]struct{}, len(asins))
	for _, a := range asins {
		set[a] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return items.Removal{}
	}

	r := m.store.RemoveMany(set, keep)
	for _, asin := range r.Removed {
		m.render.RenderRemove(asin)
	}
	if m.store.Len() == 0 {
		m.layout.ResetTrailing()
	}
	m.counter.Decrement(r.VisibleRemoved)
	m.relayoutLocked()
	metrics.StoredItems.Set(float64(m.store.Len()))

	logging.Info("feed cleared", "removed", len(r.Removed), "visible", r.VisibleRemoved, "keep", keep)
	m.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStoreClear, Comp: "monitor", Count: len(r.Removed)})
	return r
}

// Reapply re-runs the annotation stages on every stored item, e.g. after a
// rule change. Items a hide rule now matches are removed. No notifications
// are sent.
func (m *Monitor) Reapply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	for _, e := range m.store.Recent() {
		res := m.pipe.Annotate(e.Item)
		if res.Dropped {
			m.removeLocked(e.Item.ASIN)
			continue
		}
		stored, _ := m.store.Upsert(res.Item)
		m.showLocked(stored, e.Visible, false)
	}
	m.counter.Set(m.store.VisibleLen())
	metrics.StoredItems.Set(float64(m.store.Len()))
}

// ingestManyLocked ingests a batch and returns the processed records that
// were kept, in batch order. Batches list the newest item first, so they are
// stored oldest first: the newest ends up on top and eviction drops the
// oldest.
func (m *Monitor) ingestManyLocked(batch []model.Item, origin string) []model.Item {
	out := make([]model.Item, 0, len(batch))
	for _, raw := range slices.Backward(batch) {
		if raw.ASIN == "" {
			continue
		}
		if it, ok := m.ingestLocked(raw, origin); ok {
			out = append(out, it)
		}
	}
	slices.Reverse(out)
	return out
}

// ingestLocked runs raw through the pipeline and stores the result. A new
// ASIN gets the full pipeline including the notify stage; a known ASIN is
// merged with the stored record and re-annotated without notifying, so
// repeated deliveries never notify twice. Returns the stored record and
// whether the item was kept.
func (m *Monitor) ingestLocked(raw model.Item, origin string) (model.Item, bool) {
	prev, exists := m.store.Get(raw.ASIN)

	var dropped bool
	var processed model.Item
	if exists {
		res := m.pipe.Annotate(items.Merge(prev.Item, raw))
		dropped, processed = res.Dropped, res.Item
	} else {
		res := m.pipe.Process(raw)
		dropped, processed = res.Dropped, res.Item
	}

	if dropped {
		metrics.ItemsIngestedTotal.WithLabelValues(origin, "dropped").Inc()
		if exists {
			m.removeLocked(raw.ASIN)
		}
		return model.Item{}, false
	}
	return m.storeLocked(processed, origin, exists && prev.Visible), true
}

// applyLocked stores an already-processed record.
func (m *Monitor) applyLocked(it model.Item, origin string) {
	if it.ASIN == "" {
		return
	}
	prev, exists := m.store.Get(it.ASIN)
	m.storeLocked(it, origin, exists && prev.Visible)
}

func (m *Monitor) storeLocked(it model.Item, origin string, wasVisible bool) model.Item {
	stored, inserted := m.store.Upsert(it)
	if inserted {
		metrics.ItemsIngestedTotal.WithLabelValues(origin, "inserted").Inc()
		if m.trends != nil && stored.Title != "" {
			m.trends.Observe(stored.Title)
		}
	} else {
		metrics.ItemsIngestedTotal.WithLabelValues(origin, "updated").Inc()
	}
	m.showLocked(stored, wasVisible, inserted)
	if inserted {
		m.evictLocked()
	}
	metrics.StoredItems.Set(float64(m.store.Len()))
	return stored
}

// showLocked applies the view to a stored record, renders it and adjusts
// the visible count by the delta.
func (m *Monitor) showLocked(it model.Item, wasVisible, inserted bool) {
	visible := m.view.Shows(it)
	m.store.SetVisible(it.ASIN, visible)
	if inserted {
		m.render.RenderAdd(it, visible)
	} else {
		m.render.RenderUpdate(it, visible)
	}
	switch {
	case visible && !wasVisible:
		m.counter.Increment(1)
	case !visible && wasVisible:
		m.counter.Decrement(1)
	}
}

// SetCapacity changes the retention bound and evicts down to it at once.
func (m *Monitor) SetCapacity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || n == m.store.Capacity() {
		return
	}
	m.store.SetCapacity(n)
	m.evictLocked()
	metrics.StoredItems.Set(float64(m.store.Len()))
}

// evictLocked enforces the store capacity. Evicted visible tiles leave the
// end of the grid and are counted as trailing placeholders.
func (m *Monitor) evictLocked() {
	evicted := m.store.Evict()
	if len(evicted) == 0 {
		return
	}

	visible := 0
	for _, e := range evicted {
		m.render.RenderRemove(e.ASIN)
		if e.Visible {
			visible++
		}
	}
	metrics.EvictionsTotal.Add(float64(len(evicted)))
	m.journal.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindStoreEvict, Comp: "monitor", Count: len(evicted)})

	m.layout.AddTrailing(visible)
	m.counter.Decrement(visible)

	if n, c := m.store.Len(), m.store.Capacity(); n > c {
		logging.Warn("item store over capacity after eviction", "items", n, "capacity", c)
		m.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreOverflow, Comp: "monitor", Count: n})
	}
}

func (m *Monitor) removeLocked(asin string) {
	removed, wasVisible := m.store.Remove(asin)
	if !removed {
		return
	}
	m.render.RenderRemove(asin)
	if wasVisible {
		m.counter.Decrement(1)
	}
	metrics.StoredItems.Set(float64(m.store.Len()))
}

// markUnavailableLocked reports whether the store knew asin.
func (m *Monitor) markUnavailableLocked(asin string) bool {
	if !m.store.MarkUnavailable(asin) {
		logging.Debug("unavailable for unknown item", "asin", asin)
		return false
	}
	m.render.RenderSetUnavailable(asin)

	e, _ := m.store.Get(asin)
	if e.Visible && !m.view.Shows(e.Item) {
		m.showLocked(e.Item, true, false)
	}
	return true
}

func (m *Monitor) updateETVLocked(asin string, etvMin, etvMax float64) bool {
	e, ok := m.store.Get(asin)
	if !ok {
		logging.Debug("etv for unknown item", "asin", asin)
		return false
	}
	it := e.Item
	it.ETVMin, it.ETVMax = model.Float(etvMin), model.Float(etvMax)

	res := m.pipe.Reannotate(it)
	if res.Dropped {
		m.removeLocked(asin)
		return true
	}
	stored, _ := m.store.Upsert(res.Item)
	m.showLocked(stored, e.Visible, false)
	// An ETV can decide a highlight rule the first pass could not. The
	// master notifies once, when the highlight first appears.
	if m.role == model.RoleMaster && !e.Item.HighlightMatch.Matched() {
		m.pipe.NotifyHighlight(stored)
	}
	return true
}

func (m *Monitor) updateVariantsLocked(asin, title string, variants []model.Variant) bool {
	e, ok := m.store.Get(asin)
	if !ok {
		logging.Debug("variants for unknown item", "asin", asin)
		return false
	}
	it := e.Item
	it.Variants = variants
	it.IsParentASIN = true

	if !it.HasTitle() && title != "" {
		// A title that arrives late makes the keyword stages decidable.
		it.Title = title
		res := m.pipe.Annotate(it)
		if res.Dropped {
			m.removeLocked(asin)
			return true
		}
		it = res.Item
	}
	stored, _ := m.store.Upsert(it)
	m.showLocked(stored, e.Visible, false)
	return true
}
