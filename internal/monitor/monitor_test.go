package monitor

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/items"
	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/pipeline"
	"github.com/abelbrown/vinewatch/internal/tabs"
)

type fakeRenderer struct {
	mu           sync.Mutex
	added        []string
	updated      []string
	removed      []string
	unavailable  []string
	placeholders []int
	statuses     []live.Status
	visible      map[string]bool
	width, tile  int
}

func newRenderer() *fakeRenderer {
	return &fakeRenderer{visible: make(map[string]bool), width: 1000, tile: 199}
}

func (r *fakeRenderer) RenderAdd(it model.Item, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, it.ASIN)
	r.visible[it.ASIN] = visible
}

func (r *fakeRenderer) RenderUpdate(it model.Item, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, it.ASIN)
	r.visible[it.ASIN] = visible
}

func (r *fakeRenderer) RenderRemove(asin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, asin)
	delete(r.visible, asin)
}

func (r *fakeRenderer) RenderSetUnavailable(asin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = append(r.unavailable, asin)
}

func (r *fakeRenderer) RenderPlaceholders(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholders = append(r.placeholders, n)
}

func (r *fakeRenderer) RenderStatus(st live.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *fakeRenderer) Measure() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.tile
}

func (r *fakeRenderer) lastPlaceholders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.placeholders) == 0 {
		return 0
	}
	return r.placeholders[len(r.placeholders)-1]
}

func (r *fakeRenderer) statusCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

type intentRecorder struct {
	mu  sync.Mutex
	got []pipeline.Intent
}

func (r *intentRecorder) Push(in pipeline.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
}

func (r *intentRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type fakeLive struct {
	mu       sync.Mutex
	starts   int
	stops    int
	observer func(live.Status)
}

func (f *fakeLive) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeLive) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeLive) Subscribe(fn func(live.Status)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = fn
	return func() {}
}

func (f *fakeLive) emit(st live.Status) {
	f.mu.Lock()
	fn := f.observer
	f.mu.Unlock()
	fn(st)
}

func (f *fakeLive) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeCatchUp struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	triggers []string
}

func (f *fakeCatchUp) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
}

func (f *fakeCatchUp) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeCatchUp) Trigger(reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, reason)
	return f.running
}

func (f *fakeCatchUp) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

type fakeRoles struct {
	mu   sync.Mutex
	role model.Role
	fns  []func(model.Role)
}

func (f *fakeRoles) Role() model.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

func (f *fakeRoles) Subscribe(fn func(model.Role)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
	return func() {}
}

func (f *fakeRoles) set(r model.Role) {
	f.mu.Lock()
	f.role = r
	fns := slices.Clone(f.fns)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// collect joins hub as a peer and records everything it receives.
type collector struct {
	mu   sync.Mutex
	msgs []event.Message
}

func collect(t *testing.T, hub *tabs.Hub, id string) *collector {
	t.Helper()
	c := &collector{}
	peer := hub.Join(id)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		peer.Close()
	})
	go peer.Subscribe(ctx, func(m event.Message) {
		c.mu.Lock()
		c.msgs = append(c.msgs, m)
		c.mu.Unlock()
	})
	return c
}

func (c *collector) types() []event.RelayType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.RelayType, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type()
	}
	return out
}

type fixture struct {
	m       *Monitor
	r       *fakeRenderer
	store   *items.Store
	book    *keyword.Book
	intents *intentRecorder
}

func newFixture(t *testing.T, capacity int, opts ...Option) *fixture {
	t.Helper()
	book := keyword.NewBook()
	rec := &intentRecorder{}
	pipe := pipeline.New(book,
		pipeline.WithIntents(rec),
		pipeline.WithSettings(func() pipeline.Settings {
			return pipeline.Settings{HighlightPush: true, LastChancePush: true}
		}),
	)
	r := newRenderer()
	st := items.New(capacity)
	m := New(pipe, st, append([]Option{WithRenderer(r)}, opts...)...)
	t.Cleanup(m.Close)
	return &fixture{m: m, r: r, store: st, book: book, intents: rec}
}

func newItem(asin, title string, etv float64) event.NewItem {
	return event.NewItem{Item: model.Item{
		ASIN:   asin,
		Title:  title,
		Queue:  model.QueuePotluck,
		ETVMin: model.Float(etv),
		ETVMax: model.Float(etv),
		Date:   "2024-05-01 12:00:00",
	}}
}

func TestNewItemIsStoredRenderedAndRelayed(t *testing.T) {
	hub := tabs.NewHub()
	peer := collect(t, hub, "peer")
	f := newFixture(t, 10, WithRelay(hub.Join("self")))

	f.m.HandleLive(newItem("A", "Desk Lamp", 20))

	if f.store.Len() != 1 || f.m.Counter().Count() != 1 {
		t.Fatalf("store=%d visible=%d, want 1/1", f.store.Len(), f.m.Counter().Count())
	}
	e, _ := f.store.Get("A")
	if e.Item.Timestamp == 0 || e.Item.SearchPhrase == "" {
		t.Errorf("item not processed: %+v", e.Item)
	}
	if len(f.r.added) != 1 || !f.r.visible["A"] {
		t.Errorf("render add = %v visible=%v", f.r.added, f.r.visible)
	}

	waitFor(t, "relay", func() bool { return len(peer.types()) == 1 })
	if got := peer.types()[0]; got != event.RelayPreprocessedItem {
		t.Errorf("relayed %s, want %s", got, event.RelayPreprocessedItem)
	}
}

func TestHiddenItemNeverReachesStore(t *testing.T) {
	f := newFixture(t, 10)
	f.book.Update(model.RuleHide, []model.Rule{{Contains: "cable"}})

	f.m.HandleLive(newItem("A", "USB Cable", 5))

	if f.store.Len() != 0 || len(f.r.added) != 0 {
		t.Errorf("hidden item stored or rendered: store=%d added=%v", f.store.Len(), f.r.added)
	}
}

func TestRepeatedDeliveryNotifiesOnceAndKeepsOrder(t *testing.T) {
	f := newFixture(t, 10)
	f.book.Update(model.RuleHighlight, []model.Rule{{Contains: "lamp"}})

	f.m.HandleLive(newItem("A", "Desk Lamp", 20))
	f.m.HandleLive(newItem("B", "Chair", 20))
	f.m.IngestBatch([]model.Item{newItem("A", "Desk Lamp", 25).Item})

	if n := f.intents.len(); n != 1 {
		t.Errorf("intents = %d, want 1", n)
	}
	recent := f.store.Recent()
	if recent[0].Item.ASIN != "B" || recent[1].Item.ASIN != "A" {
		t.Errorf("order changed: %s, %s", recent[0].Item.ASIN, recent[1].Item.ASIN)
	}
	if *recent[1].Item.ETVMax != 25 {
		t.Errorf("update not merged: etv=%v", *recent[1].Item.ETVMax)
	}
	if f.m.Counter().Count() != 2 {
		t.Errorf("visible = %d, want 2", f.m.Counter().Count())
	}
}

func TestCapacityEvictionFeedsTrailing(t *testing.T) {
	f := newFixture(t, 3)

	for i := 0; i < 5; i++ {
		f.m.HandleLive(newItem(fmt.Sprintf("A%d", i), "Thing", 1))
	}

	if f.store.Len() != 3 {
		t.Fatalf("store len = %d, want 3", f.store.Len())
	}
	if f.m.Counter().Count() != 3 {
		t.Errorf("visible = %d, want 3", f.m.Counter().Count())
	}
	if len(f.r.removed) != 2 || f.r.removed[0] != "A0" || f.r.removed[1] != "A1" {
		t.Errorf("removed = %v, want [A0 A1]", f.r.removed)
	}
	if got := f.m.layout.Trailing(); got != 2 {
		t.Errorf("trailing = %d, want 2", got)
	}
	// 5 per row, 3 visible + 2 trailing fills the row exactly.
	if got := f.r.lastPlaceholders(); got != 0 {
		t.Errorf("placeholders = %d, want 0", got)
	}
}

func TestSetCapacityEvictsImmediately(t *testing.T) {
	f := newFixture(t, 10)
	for i := 0; i < 6; i++ {
		f.m.HandleLive(newItem(fmt.Sprintf("A%d", i), "Thing", 1))
	}

	f.m.SetCapacity(4)

	if f.store.Len() != 4 || f.m.Counter().Count() != 4 {
		t.Errorf("store=%d visible=%d, want 4/4", f.store.Len(), f.m.Counter().Count())
	}
	if f.store.Has("A0") || f.store.Has("A1") {
		t.Error("oldest arrivals should be evicted first")
	}
}

func TestPlaceholdersFollowVisibleCountAndSort(t *testing.T) {
	var persisted []PersistIntent
	f := newFixture(t, 100, WithPersist(func(pi PersistIntent) { persisted = append(persisted, pi) }))

	for i := 0; i < 7; i++ {
		f.m.HandleLive(newItem(fmt.Sprintf("A%d", i), "Thing", 1))
	}
	if got := f.m.Placeholders(); got != 3 {
		t.Fatalf("placeholders = %d, want 3", got)
	}

	calls := len(f.r.placeholders)
	f.m.Relayout()
	if len(f.r.placeholders) != calls {
		t.Error("relayout with unchanged input re-rendered placeholders")
	}

	f.m.SetSort(layout.SortPriceAsc)
	if got := f.r.lastPlaceholders(); got != 0 {
		t.Errorf("placeholders after sort = %d, want 0", got)
	}
	if len(persisted) != 1 || persisted[0].Key != KeySort || persisted[0].Value != string(layout.SortPriceAsc) {
		t.Errorf("persisted = %+v", persisted)
	}

	f.m.SetSort(layout.SortRecentFirst)
	f.m.SetPaused(true)
	if got := f.r.lastPlaceholders(); got != 0 {
		t.Errorf("placeholders while paused = %d, want 0", got)
	}
	f.m.SetPaused(false)
	if got := f.r.lastPlaceholders(); got != 3 {
		t.Errorf("placeholders after resume = %d, want 3", got)
	}
}

func TestClearReconcilesVisibleCount(t *testing.T) {
	f := newFixture(t, 10, WithView(View{Queue: model.QueuePotluck}))

	f.m.HandleLive(newItem("A", "Lamp", 1))
	b := newItem("B", "Chair", 1)
	b.Item.Queue = model.QueueEncore
	f.m.HandleLive(b)
	f.m.HandleLive(newItem("C", "Table", 1))

	if f.m.Counter().Count() != 2 {
		t.Fatalf("visible = %d, want 2", f.m.Counter().Count())
	}

	r := f.m.Clear([]string{"A", "B"}, false)
	if r.VisibleRemoved != 1 || len(r.Removed) != 2 {
		t.Errorf("removal = %+v, want 2 removed, 1 visible", r)
	}
	if f.store.Len() != 1 || f.m.Counter().Count() != 1 {
		t.Errorf("store=%d visible=%d, want 1/1", f.store.Len(), f.m.Counter().Count())
	}

	f.m.Clear(nil, true)
	if f.store.Len() != 0 || f.m.Counter().Count() != 0 {
		t.Errorf("after clear all: store=%d visible=%d", f.store.Len(), f.m.Counter().Count())
	}
}

func TestSetViewRecountsAndPersists(t *testing.T) {
	var persisted []PersistIntent
	f := newFixture(t, 10, WithPersist(func(pi PersistIntent) { persisted = append(persisted, pi) }))
	f.book.Update(model.RuleHighlight, []model.Rule{{Contains: "lamp"}})

	f.m.HandleLive(newItem("A", "Desk Lamp", 1))
	f.m.HandleLive(newItem("B", "Chair", 1))
	f.m.HandleLive(newItem("C", "Floor Lamp", 1))

	f.m.SetView(View{HighlightOnly: true})
	if got := f.m.Counter().Count(); got != 2 {
		t.Errorf("visible = %d, want 2", got)
	}
	if f.r.visible["B"] {
		t.Error("B still rendered visible")
	}
	if len(persisted) != 1 || persisted[0].Key != KeyView {
		t.Fatalf("persisted = %+v", persisted)
	}
	v, err := ParseView(persisted[0].Value)
	if err != nil || !v.HighlightOnly {
		t.Errorf("ParseView(%q) = %+v, %v", persisted[0].Value, v, err)
	}

	f.m.SetView(View{})
	if got := f.m.Counter().Count(); got != 3 {
		t.Errorf("visible after reset = %d, want 3", got)
	}
}

func TestUnavailableIsAnnotatedNotRemoved(t *testing.T) {
	f := newFixture(t, 10, WithView(View{HideUnavailable: true}))

	f.m.HandleLive(newItem("A", "Lamp", 1))
	f.m.HandleLive(event.UnavailableItem{ASIN: "A"})

	e, ok := f.store.Get("A")
	if !ok || !e.Item.Unavailable {
		t.Fatalf("item missing or not marked: %+v", e)
	}
	if f.m.Counter().Count() != 0 {
		t.Errorf("visible = %d, want 0", f.m.Counter().Count())
	}
	if len(f.r.unavailable) != 1 {
		t.Errorf("RenderSetUnavailable calls = %d", len(f.r.unavailable))
	}

	// Unknown ASIN is a no-op.
	f.m.MarkUnavailable("nope")
	if f.store.Len() != 1 {
		t.Errorf("store len = %d", f.store.Len())
	}
}

func TestETVUpdateReannotates(t *testing.T) {
	f := newFixture(t, 10)
	f.book.Update(model.RuleHide, []model.Rule{{Contains: "lamp", ETVMax: model.BoundOf(10)}})
	f.book.Update(model.RuleHighlight, []model.Rule{{Contains: "chair", ETVMin: model.BoundOf(50)}})

	lamp := model.Item{ASIN: "A", Title: "Desk Lamp", Queue: model.QueuePotluck}
	chair := model.Item{ASIN: "B", Title: "Office Chair", Queue: model.QueuePotluck}
	f.m.IngestBatch([]model.Item{lamp, chair})
	if f.store.Len() != 2 {
		t.Fatalf("unknown-ETV items should pass hide, store=%d", f.store.Len())
	}

	f.m.HandleLive(event.NewETV{ASIN: "A", ETVMin: 5, ETVMax: 5})
	if f.store.Has("A") {
		t.Error("lamp should be removed once its ETV is under the hide bound")
	}

	f.m.UpdateETV("B", 80, 90)
	e, _ := f.store.Get("B")
	if e.Item.HighlightMatch.Keyword != "chair" {
		t.Errorf("highlight after etv = %+v", e.Item.HighlightMatch)
	}
	if f.m.Counter().Count() != 1 {
		t.Errorf("visible = %d, want 1", f.m.Counter().Count())
	}
	if n := f.intents.len(); n != 1 {
		t.Fatalf("late highlight intents = %d, want 1", n)
	}

	f.m.UpdateETV("B", 85, 95)
	if n := f.intents.len(); n != 1 {
		t.Errorf("repeated etv update notified again, intents = %d", n)
	}
}

func TestSlaveETVUpdateDoesNotNotify(t *testing.T) {
	roles := &fakeRoles{role: model.RoleSlave}
	f := newFixture(t, 10, WithRoles(roles))
	f.book.Update(model.RuleHighlight, []model.Rule{{Contains: "chair", ETVMin: model.BoundOf(50)}})

	chair := model.Item{ASIN: "B", Title: "Office Chair", Queue: model.QueuePotluck}
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.PreprocessedItem{Item: chair}})
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.ETVUpdate{ASIN: "B", ETVMin: 80, ETVMax: 90}})

	e, _ := f.store.Get("B")
	if !e.Item.HighlightMatch.Matched() {
		t.Errorf("relayed etv not reannotated: %+v", e.Item.HighlightMatch)
	}
	if n := f.intents.len(); n != 0 {
		t.Errorf("slave produced %d intents", n)
	}
}

func TestBatchIsStoredOldestFirst(t *testing.T) {
	hub := tabs.NewHub()
	peer := collect(t, hub, "peer")
	f := newFixture(t, 3, WithRelay(hub.Join("self")))

	// Newest first, as the catch-up source returns it.
	var batch []model.Item
	for i := 5; i >= 1; i-- {
		batch = append(batch, newItem(fmt.Sprintf("N%d", i), "Thing", 1).Item)
	}
	f.m.IngestBatch(batch)

	var got []string
	for _, e := range f.store.Recent() {
		got = append(got, e.Item.ASIN)
	}
	if !slices.Equal(got, []string{"N5", "N4", "N3"}) {
		t.Errorf("retained = %v, want [N5 N4 N3]", got)
	}
	if !slices.Equal(f.r.removed, []string{"N1", "N2"}) {
		t.Errorf("evicted = %v, want [N1 N2]", f.r.removed)
	}

	waitFor(t, "relay", func() bool { return len(peer.types()) == 1 })
	peer.mu.Lock()
	relayed := peer.msgs[0].Payload.(event.Batch).Items
	peer.mu.Unlock()
	if len(relayed) == 0 || relayed[0].ASIN != "N5" {
		t.Errorf("relayed batch should stay newest first: %v", relayed)
	}

	slave := newFixture(t, 3, WithRoles(&fakeRoles{role: model.RoleSlave}))
	slave.m.HandleRelay(event.Message{Sender: "master", Payload: event.Batch{Items: batch}})
	got = got[:0]
	for _, e := range slave.store.Recent() {
		got = append(got, e.Item.ASIN)
	}
	if !slices.Equal(got, []string{"N5", "N4", "N3"}) {
		t.Errorf("slave retained = %v, want [N5 N4 N3]", got)
	}
}

func TestLast100IsStoredOldestFirst(t *testing.T) {
	f := newFixture(t, 10)
	f.m.HandleLive(event.Last100{Items: []model.Item{
		newItem("C", "Thing", 1).Item,
		newItem("B", "Thing", 1).Item,
		newItem("A", "Thing", 1).Item,
	}})

	recent := f.store.Recent()
	if len(recent) != 3 || recent[0].Item.ASIN != "C" || recent[2].Item.ASIN != "A" {
		t.Errorf("order = %v", recent)
	}
}

func TestUnknownUnavailableIsNotRelayed(t *testing.T) {
	hub := tabs.NewHub()
	peer := collect(t, hub, "peer")
	f := newFixture(t, 10, WithRelay(hub.Join("self")))

	f.m.HandleLive(event.UnavailableItem{ASIN: "nope"})
	f.m.HandleLive(newItem("A", "Lamp", 1))
	f.m.HandleLive(event.UnavailableItem{ASIN: "A"})

	waitFor(t, "relay", func() bool { return len(peer.types()) == 2 })
	got := peer.types()
	if got[0] != event.RelayPreprocessedItem || got[1] != event.RelayUnavailable {
		t.Errorf("relayed %v, want [%s %s]", got, event.RelayPreprocessedItem, event.RelayUnavailable)
	}
}

func TestVariantsMarkParent(t *testing.T) {
	f := newFixture(t, 10)
	f.m.HandleLive(newItem("P", "Shirt", 10))

	f.m.HandleLive(event.NewVariants{ASIN: "P", Variants: []model.Variant{{ASIN: "P1"}, {ASIN: "P2"}}})

	e, _ := f.store.Get("P")
	if !e.Item.IsParentASIN || len(e.Item.Variants) != 2 {
		t.Errorf("variants not applied: %+v", e.Item)
	}
}

func TestSlaveAppliesRelayWithoutSideEffects(t *testing.T) {
	roles := &fakeRoles{role: model.RoleSlave}
	f := newFixture(t, 10, WithRoles(roles))
	f.book.Update(model.RuleHighlight, []model.Rule{{Contains: "lamp"}})

	// Live events are ignored off-master.
	f.m.HandleLive(newItem("X", "Desk Lamp", 1))
	if f.store.Len() != 0 {
		t.Fatal("slave ingested a live event")
	}

	processed := newItem("A", "Desk Lamp", 1).Item
	processed.HighlightMatch = model.MatchOf("lamp")
	processed.SearchPhrase = "Desk Lamp"
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.PreprocessedItem{Item: processed}})
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.PreprocessedItem{Item: processed}})
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.Batch{Items: []model.Item{newItem("B", "Chair", 1).Item}}})
	f.m.HandleRelay(event.Message{Sender: "master", Payload: event.Status{State: "connected"}})

	if f.store.Len() != 2 || f.m.Counter().Count() != 2 {
		t.Errorf("store=%d visible=%d, want 2/2", f.store.Len(), f.m.Counter().Count())
	}
	e, _ := f.store.Get("A")
	if e.Item.HighlightMatch.Keyword != "lamp" {
		t.Errorf("relayed annotation lost: %+v", e.Item.HighlightMatch)
	}
	if n := f.intents.len(); n != 0 {
		t.Errorf("slave produced %d intents", n)
	}
	if f.m.Status().State != live.StateConnected {
		t.Errorf("status = %v, want connected", f.m.Status().State)
	}
}

func TestRoleChangesDriveLiveAndCatchUp(t *testing.T) {
	roles := &fakeRoles{}
	f := newFixture(t, 10, WithRoles(roles))
	lc, cu := &fakeLive{}, &fakeCatchUp{}
	f.m.Attach(lc, cu)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.Run(ctx) }()

	waitFor(t, "subscription", func() bool {
		roles.mu.Lock()
		defer roles.mu.Unlock()
		return len(roles.fns) == 1
	})
	if starts, _ := lc.counts(); starts != 0 {
		t.Fatalf("live started while undetermined")
	}

	roles.set(model.RoleMaster)
	if starts, _ := lc.counts(); starts != 1 {
		t.Errorf("live starts = %d, want 1", starts)
	}
	if got := cu.triggered(); len(got) != 1 || got[0] != "master" {
		t.Errorf("catch-up triggers = %v", got)
	}

	lc.emit(live.Status{State: live.StateConnected})
	if got := cu.triggered(); len(got) != 2 || got[1] != "reconnect" {
		t.Errorf("catch-up triggers after connect = %v", got)
	}
	if f.r.statusCount() == 0 {
		t.Error("status not rendered")
	}

	roles.set(model.RoleSlave)
	if _, stops := lc.counts(); stops == 0 {
		t.Error("live not stopped on demotion")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	f.m.HandleLive(newItem("A", "Lamp", 1))
	if f.store.Len() != 0 {
		t.Error("closed monitor ingested an item")
	}
}

func TestSlaveFetchRequestReachesMaster(t *testing.T) {
	hub := tabs.NewHub()
	master := newFixture(t, 10, WithRelay(hub.Join("master")))
	cu := &fakeCatchUp{}
	master.m.Attach(nil, cu)

	slaveRoles := &fakeRoles{role: model.RoleSlave}
	slave := newFixture(t, 10, WithRelay(hub.Join("slave")), WithRoles(slaveRoles))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go master.m.Run(ctx)
	go slave.m.Run(ctx)
	waitFor(t, "master catch-up start", func() bool {
		cu.mu.Lock()
		defer cu.mu.Unlock()
		return cu.starts == 1
	})

	slave.m.RequestFetch("user")
	waitFor(t, "relayed fetch request", func() bool {
		for _, r := range cu.triggered() {
			if r == "relay:user" {
				return true
			}
		}
		return false
	})

	master.m.HandleLive(newItem("A", "Lamp", 1))
	waitFor(t, "slave copy", func() bool { return slave.store.Has("A") })
	if n := slave.intents.len(); n != 0 {
		t.Errorf("slave intents = %d", n)
	}
}

func TestRulesChangeReapplied(t *testing.T) {
	f := newFixture(t, 10)
	f.m.HandleLive(newItem("A", "USB Cable", 1))
	f.m.HandleLive(newItem("B", "Lamp", 1))

	f.book.Update(model.RuleHide, []model.Rule{{Contains: "cable"}})
	f.book.Update(model.RuleBlur, []model.Rule{{Contains: "lamp"}})
	f.m.Reapply()

	if f.store.Has("A") {
		t.Error("newly hidden item kept")
	}
	e, _ := f.store.Get("B")
	if !e.Item.BlurMatch.Matched() {
		t.Error("blur not applied on reapply")
	}
	if f.m.Counter().Count() != 1 {
		t.Errorf("visible = %d, want 1", f.m.Counter().Count())
	}
}

type titleRecorder struct{ titles []string }

func (r *titleRecorder) Observe(title string) { r.titles = append(r.titles, title) }

func TestNewTitlesFeedTrends(t *testing.T) {
	rec := &titleRecorder{}
	f := newFixture(t, 10, WithTrends(rec))
	f.book.Update(model.RuleHide, []model.Rule{{Contains: "cable"}})

	f.m.HandleLive(newItem("A", "Desk Lamp", 20))
	f.m.HandleLive(newItem("A", "Desk Lamp", 25))
	f.m.HandleLive(newItem("B", "USB Cable", 5))

	if len(rec.titles) != 1 || rec.titles[0] != "Desk Lamp" {
		t.Errorf("observed %v, want only the first insert", rec.titles)
	}
}
