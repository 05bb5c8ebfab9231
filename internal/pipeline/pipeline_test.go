package pipeline

import (
	"testing"

	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/model"
)

type intentRecorder struct {
	got []Intent
}

func (r *intentRecorder) Push(in Intent) { r.got = append(r.got, in) }

func newBook(hide, highlight, blur []model.Rule) *keyword.Book {
	b := keyword.NewBook()
	b.Update(model.RuleHide, hide)
	b.Update(model.RuleHighlight, highlight)
	b.Update(model.RuleBlur, blur)
	return b
}

func item(asin, title string, etv float64) model.Item {
	return model.Item{ASIN: asin, Title: title, ETVMin: model.Float(etv), ETVMax: model.Float(etv)}
}

func TestHideDropsMatchingItem(t *testing.T) {
	p := New(newBook([]model.Rule{{Contains: "cable"}}, nil, nil))

	res := p.Process(item("A", "USB Cable 2m", 5))
	if !res.Dropped || res.DroppedBy != StageHide {
		t.Fatalf("expected drop by hide, got %+v", res)
	}
	if res.Item.HideMatch.Keyword != "cable" {
		t.Errorf("hide match = %q", res.Item.HideMatch.Keyword)
	}
}

func TestHidePassesThroughWhenUnevaluable(t *testing.T) {
	p := New(newBook([]model.Rule{{Contains: "cable"}}, nil, nil))

	tests := []struct {
		name string
		it   model.Item
	}{
		{"no etv", model.Item{ASIN: "A", Title: "USB Cable"}},
		{"no title", model.Item{ASIN: "B", ETVMin: model.Float(1), ETVMax: model.Float(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := p.Process(tt.it); res.Dropped {
				t.Errorf("item should pass through, got %+v", res)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	p := New(newBook(nil,
		[]model.Rule{{Contains: "lego"}},
		[]model.Rule{{Contains: "lingerie"}, {Contains: "lego", ETVMin: model.BoundOf(1)}},
	))

	res := p.Process(item("A", "LEGO Technic Car Set", 30))
	if res.Dropped {
		t.Fatal("unexpected drop")
	}
	if res.Item.HighlightMatch.Keyword != "lego" {
		t.Errorf("highlight = %+v", res.Item.HighlightMatch)
	}
	// blur matches on title only, so the ETV-bounded rule is skipped
	if res.Item.BlurMatch.Matched() {
		t.Errorf("blur should not match, got %+v", res.Item.BlurMatch)
	}
	if res.Item.SearchPhrase != "LEGO Technic Car" {
		t.Errorf("search phrase = %q", res.Item.SearchPhrase)
	}
}

func TestSearchPhrase(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Cool Widget Deluxe", "Cool Widget"},
		{"Widget", "Widget"},
		{"Kid's Bike, Blue 16 inch", "Kid's Bike, Blue 16"},
		{"Stainless Steel Water Bottle Insulated Double Wall 32oz", "Stainless Steel Water Bottle Insulated"},
		{"[Pack] Widget", "[Pack] Widget"},
	}
	for _, tt := range tests {
		if got := SearchPhrase(tt.title); got != tt.want {
			t.Errorf("SearchPhrase(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestTimestampIsUTC(t *testing.T) {
	p := New(newBook(nil, nil, nil))

	it := item("A", "Thing", 1)
	it.Date = "2024-05-01 12:00:00"
	res := p.Process(it)
	if res.Item.Timestamp != 1714564800 {
		t.Errorf("timestamp = %d, want 1714564800", res.Item.Timestamp)
	}
}

func TestFailingStageForwardsItemUnchanged(t *testing.T) {
	rec := &intentRecorder{}
	p := New(newBook(nil, []model.Rule{{Contains: "thing"}}, nil),
		WithIntents(rec),
		WithSettings(func() Settings { return Settings{HighlightPush: true} }),
	)

	it := item("A", "Thing Pro", 1)
	it.Date = "not a date"
	res := p.Process(it)
	if res.Dropped {
		t.Fatal("stage failure must not drop the item")
	}
	if res.Item.Timestamp != 0 || res.Item.Date != "not a date" {
		t.Errorf("failed stage leaked changes: %+v", res.Item)
	}
	if len(rec.got) != 1 {
		t.Errorf("later stages should still run, got %d intents", len(rec.got))
	}
}

func TestPanickingStageIsRecovered(t *testing.T) {
	p := New(newBook(nil, nil, nil))
	p.stages[1].fn = func(_ *Pipeline, _ *pass, it *model.Item) (bool, error) {
		it.Title = "mutated"
		panic("boom")
	}

	res := p.Process(item("A", "Original Title Here", 1))
	if res.Item.Title != "Original Title Here" {
		t.Errorf("title = %q, want snapshot restored", res.Item.Title)
	}
	if res.Item.SearchPhrase == "" {
		t.Error("stages after the panic should still run")
	}
}

func TestNotifyDecision(t *testing.T) {
	highlight := []model.Rule{{Contains: "drone"}}

	tests := []struct {
		name     string
		settings Settings
		it       model.Item
		want     int
	}{
		{"highlight push on", Settings{HighlightPush: true}, item("A", "Mini Drone", 10), 1},
		{"highlight push off", Settings{}, item("A", "Mini Drone", 10), 0},
		{"last chance on", Settings{LastChancePush: true}, model.Item{ASIN: "B", Title: "Socks", Queue: model.QueueLastChance}, 1},
		{"last chance wrong queue", Settings{LastChancePush: true}, model.Item{ASIN: "B", Title: "Socks", Queue: model.QueueEncore}, 0},
		{"both match once", Settings{HighlightPush: true, LastChancePush: true}, model.Item{ASIN: "C", Title: "Drone", Queue: model.QueueLastChance}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &intentRecorder{}
			set := tt.settings
			p := New(newBook(nil, highlight, nil), WithIntents(rec), WithSettings(func() Settings { return set }))
			p.Process(tt.it)
			if len(rec.got) != tt.want {
				t.Fatalf("intents = %d, want %d", len(rec.got), tt.want)
			}
			if tt.want == 1 && rec.got[0].Item.ASIN != tt.it.ASIN {
				t.Errorf("projection asin = %q", rec.got[0].Item.ASIN)
			}
		})
	}
}

func TestAnnotateNeverNotifies(t *testing.T) {
	rec := &intentRecorder{}
	p := New(newBook(nil, []model.Rule{{Contains: "drone"}}, nil),
		WithIntents(rec),
		WithSettings(func() Settings { return Settings{HighlightPush: true} }),
	)

	res := p.Annotate(item("A", "Drone", 1))
	if !res.Item.HighlightMatch.Matched() {
		t.Error("annotate should still highlight")
	}
	if len(rec.got) != 0 {
		t.Errorf("annotate pushed %d intents", len(rec.got))
	}
}

func TestReannotateAfterETVUpdate(t *testing.T) {
	p := New(newBook([]model.Rule{{Contains: "case", ETVMax: model.BoundOf(5)}}, nil, nil))

	it := model.Item{ASIN: "A", Title: "Phone Case"}
	if res := p.Process(it); res.Dropped {
		t.Fatal("unknown etv must pass the hide stage")
	}

	it.ETVMin, it.ETVMax = model.Float(2), model.Float(3)
	res := p.Reannotate(it)
	if !res.Dropped {
		t.Error("known etv inside the bound should now hide")
	}
}

func TestNotifyHighlight(t *testing.T) {
	rec := &intentRecorder{}
	push := true
	p := New(newBook(nil, []model.Rule{{Contains: "chair", ETVMin: model.BoundOf(50)}}, nil),
		WithIntents(rec),
		WithSettings(func() Settings { return Settings{HighlightPush: push} }),
	)

	if p.NotifyHighlight(model.Item{ASIN: "A", Title: "Office Chair"}) {
		t.Error("unhighlighted item notified")
	}
	res := p.Reannotate(item("A", "Office Chair", 80))
	if !p.NotifyHighlight(res.Item) {
		t.Fatal("late highlight did not notify")
	}
	if len(rec.got) != 1 || !rec.got[0].Highlight || rec.got[0].Item.ASIN != "A" {
		t.Errorf("intents = %+v", rec.got)
	}

	push = false
	if p.NotifyHighlight(res.Item) {
		t.Error("notified with highlight push off")
	}
}

func TestRulesChangeIsSeenNextPass(t *testing.T) {
	b := newBook(nil, nil, nil)
	p := New(b)

	if res := p.Process(item("A", "Gadget", 1)); res.Dropped {
		t.Fatal("no rules yet")
	}
	b.Update(model.RuleHide, []model.Rule{{Contains: "gadget"}})
	if res := p.Process(item("A", "Gadget", 1)); !res.Dropped {
		t.Error("new hide rule should apply on the next pass")
	}
}
