// Package pipeline runs incoming items through the ordered filter stages.
//
// Stages, in order: hide, highlight, blur, search, timestamp, notify.
// Each stage sees the previous stage's output and only adds annotations.
// The hide stage may drop the item, which ends the pass. A stage that
// errors or panics is logged as a recoverable failure and the item moves on
// exactly as it entered that stage.
package pipeline

import (
	"fmt"
	"time"

	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageHide      Stage = "hide"
	StageHighlight Stage = "highlight"
	StageBlur      Stage = "blur"
	StageSearch    Stage = "search"
	StageTimestamp Stage = "timestamp"
	StageNotify    Stage = "notify"
)

// Settings are the feature toggles read at the start of every pass.
type Settings struct {
	HighlightPush  bool // push a notification for highlighted items
	LastChancePush bool // push a notification for last-chance queue items
}

// Intent is a push-notification request produced by the notify stage.
type Intent struct {
	Title     string
	Item      model.Projection
	Highlight bool // triggered by a highlight rule rather than the queue
}

// Intents receives notification intents. Push must not block.
type Intents interface {
	Push(Intent)
}

// Rules supplies the compiled rule sets for one pass. *keyword.Book
// implements it.
type Rules interface {
	Snapshot() keyword.Snapshot
}

// Result is the outcome of one pass.
type Result struct {
	Item      model.Item
	Dropped   bool
	DroppedBy Stage
}

// pass carries the per-pass context shared by all stages.
type pass struct {
	rules    keyword.Snapshot
	settings Settings
}

type stageFunc func(p *Pipeline, ps *pass, it *model.Item) (drop bool, err error)

type stage struct {
	name Stage
	fn   stageFunc
}

// Pipeline is safe for concurrent use; it holds no per-item state.
type Pipeline struct {
	rules    Rules
	settings func() Settings
	intents  Intents
	journal  *otel.Logger
	stages   []stage
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSettings sets the toggle source read at each pass.
func WithSettings(fn func() Settings) Option {
	return func(p *Pipeline) { p.settings = fn }
}

// WithIntents sets the sink for notification intents.
func WithIntents(in Intents) Option {
	return func(p *Pipeline) { p.intents = in }
}

// WithJournal sets the status journal for drops and stage failures.
func WithJournal(j *otel.Logger) Option {
	return func(p *Pipeline) { p.journal = j }
}

// New creates a Pipeline over rules.
func New(rules Rules, opts ...Option) *Pipeline {
	p := &Pipeline{
		rules:    rules,
		settings: func() Settings { return Settings{} },
		stages: []stage{
			{StageHide, hideStage},
			{StageHighlight, highlightStage},
			{StageBlur, blurStage},
			{StageSearch, searchStage},
			{StageTimestamp, timestampStage},
			{StageNotify, notifyStage},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs every stage, including the notify side effect. Used for
// items the store has not seen yet.
func (p *Pipeline) Process(it model.Item) Result {
	return p.run(it, len(p.stages))
}

// Annotate runs every stage except notify. Used for records of an ASIN that
// is already stored, so repeated deliveries never notify twice.
func (p *Pipeline) Annotate(it model.Item) Result {
	return p.run(it, len(p.stages)-1)
}

// Reannotate re-runs only the keyword stages (hide, highlight, blur). Used
// when an ETV update changes what the rules can see.
func (p *Pipeline) Reannotate(it model.Item) Result {
	return p.run(it, 3)
}

func (p *Pipeline) run(it model.Item, n int) Result {
	ps := &pass{settings: p.settings()}
	if p.rules != nil {
		ps.rules = p.rules.Snapshot()
	}

	cur := it.Clone()
	for _, st := range p.stages[:n] {
		snapshot := cur.Clone()
		drop, err := p.runStage(st, ps, &cur)
		if err != nil {
			cur = snapshot
			p.stageFailed(st.name, cur.ASIN, err)
			continue
		}
		if drop {
			metrics.PipelineDropsTotal.WithLabelValues(string(st.name)).Inc()
			p.journal.Item(otel.KindPipelineDrop, "pipeline", cur.ASIN, string(st.name))
			return Result{Item: cur, Dropped: true, DroppedBy: st.name}
		}
	}
	return Result{Item: cur}
}

func (p *Pipeline) runStage(st stage, ps *pass, it *model.Item) (drop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			drop = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.fn(p, ps, it)
}

func (p *Pipeline) stageFailed(name Stage, asin string, err error) {
	metrics.StageFailuresTotal.WithLabelValues(string(name)).Inc()
	logging.Warn("filter stage failed", "stage", name, "asin", asin, "error", err)
	p.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStageFailure, Comp: "pipeline", ASIN: asin, Msg: string(name), Err: err.Error()})
}

func hideStage(_ *Pipeline, ps *pass, it *model.Item) (bool, error) {
	it.HideMatch = model.Match{}
	// Cannot evaluate without both; an ETV update re-runs this stage later.
	if !it.HasTitle() || !it.HasETV() {
		return false, nil
	}
	rule, ok := ps.rules.Hide.Match(it.Title, it.ETVMin, it.ETVMax)
	if !ok {
		return false, nil
	}
	it.HideMatch = model.MatchOf(rule.Contains)
	return true, nil
}

func highlightStage(_ *Pipeline, ps *pass, it *model.Item) (bool, error) {
	it.HighlightMatch = model.Match{}
	if !it.HasTitle() {
		return false, nil
	}
	if rule, ok := ps.rules.Highlight.Match(it.Title, it.ETVMin, it.ETVMax); ok {
		it.HighlightMatch = model.MatchOf(rule.Contains)
	}
	return false, nil
}

func blurStage(_ *Pipeline, ps *pass, it *model.Item) (bool, error) {
	it.BlurMatch = model.Match{}
	if !it.HasTitle() {
		return false, nil
	}
	if rule, ok := ps.rules.Blur.MatchTitle(it.Title); ok {
		it.BlurMatch = model.MatchOf(rule.Contains)
	}
	return false, nil
}

func searchStage(_ *Pipeline, _ *pass, it *model.Item) (bool, error) {
	if it.HasTitle() {
		it.SearchPhrase = SearchPhrase(it.Title)
	}
	return false, nil
}

func timestampStage(_ *Pipeline, _ *pass, it *model.Item) (bool, error) {
	if it.Date == "" {
		return false, nil
	}
	ts, err := ParseDate(it.Date)
	if err != nil {
		return false, err
	}
	it.Timestamp = ts.Unix()
	return false, nil
}

func notifyStage(p *Pipeline, ps *pass, it *model.Item) (bool, error) {
	if p.intents == nil {
		return false, nil
	}
	switch {
	case it.HighlightMatch.Matched() && ps.settings.HighlightPush:
		p.push(highlightIntent(*it))
	case it.Queue == model.QueueLastChance && ps.settings.LastChancePush:
		p.push(Intent{Title: "New last-chance item", Item: it.Projection()})
	}
	return false, nil
}

// NotifyHighlight pushes the highlight intent for a stored item whose
// highlight was only decided later, e.g. by an ETV update. Reports whether
// an intent was pushed.
func (p *Pipeline) NotifyHighlight(it model.Item) bool {
	if p.intents == nil || !it.HighlightMatch.Matched() || !p.settings().HighlightPush {
		return false
	}
	p.push(highlightIntent(it))
	return true
}

func highlightIntent(it model.Item) Intent {
	return Intent{
		Title:     "Highlighted item: " + it.HighlightMatch.Keyword,
		Item:      it.Projection(),
		Highlight: true,
	}
}

func (p *Pipeline) push(in Intent) {
	p.intents.Push(in)
	p.journal.Item(otel.KindPushIntent, "pipeline", in.Item.ASIN, in.Title)
}

// ParseDate parses a source date string as UTC. Accepts
// "2006-01-02 15:04:05" and RFC 3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateTime, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}
