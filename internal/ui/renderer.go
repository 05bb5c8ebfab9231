package ui

import (
	"cmp"
	"slices"
	"sync"

	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/model"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultTileWidth is the tile width in terminal columns, borders included.
const DefaultTileWidth = 28

// TileState is one rendered tile.
type TileState struct {
	Item    model.Item
	Visible bool
}

// Frame is a consistent copy of the renderer state.
type Frame struct {
	Tiles        []TileState // visible tiles in display order
	Total        int         // all tiles, hidden included
	Placeholders int
	Status       live.Status
}

// Renderer receives feed mutations from the monitor and keeps the state the
// App draws. It never blocks: mutations update a snapshot under its own lock
// and wake the App through a one-slot channel.
type Renderer struct {
	mu           sync.Mutex
	tiles        map[string]*TileState
	order        []string // arrival order, newest first
	placeholders int
	status       live.Status
	width        int
	tileWidth    int

	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRenderer creates a Renderer. tileWidth <= 0 uses DefaultTileWidth.
func NewRenderer(tileWidth int) *Renderer {
	if tileWidth <= 0 {
		tileWidth = DefaultTileWidth
	}
	return &Renderer{
		tiles:     make(map[string]*TileState),
		tileWidth: tileWidth,
		changed:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// RenderAdd places a new tile at the front. The monitor calls the Render*
// methods with its lock held.
func (r *Renderer) RenderAdd(it model.Item, visible bool) {
	r.mu.Lock()
	r.putLocked(it, visible)
	r.mu.Unlock()
	r.signal()
}

func (r *Renderer) RenderUpdate(it model.Item, visible bool) {
	r.RenderAdd(it, visible)
}

func (r *Renderer) putLocked(it model.Item, visible bool) {
	if t, ok := r.tiles[it.ASIN]; ok {
		t.Item, t.Visible = it, visible
		return
	}
	r.tiles[it.ASIN] = &TileState{Item: it, Visible: visible}
	r.order = append([]string{it.ASIN}, r.order...)
}

func (r *Renderer) RenderRemove(asin string) {
	r.mu.Lock()
	if _, ok := r.tiles[asin]; ok {
		delete(r.tiles, asin)
		r.order = slices.DeleteFunc(r.order, func(a string) bool { return a == asin })
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Renderer) RenderSetUnavailable(asin string) {
	r.mu.Lock()
	if t, ok := r.tiles[asin]; ok {
		t.Item.Unavailable = true
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Renderer) RenderPlaceholders(n int) {
	r.mu.Lock()
	r.placeholders = n
	r.mu.Unlock()
	r.signal()
}

func (r *Renderer) RenderStatus(st live.Status) {
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
	r.signal()
}

// Measure returns the grid width and the tile width in terminal columns.
func (r *Renderer) Measure() (containerPx, tilePx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.tileWidth
}

// SetWidth records the terminal width. The caller should ask the monitor to
// relayout afterwards.
func (r *Renderer) SetWidth(w int) {
	r.mu.Lock()
	r.width = w
	r.mu.Unlock()
}

// TileWidth returns the tile width in columns.
func (r *Renderer) TileWidth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tileWidth
}

// Unavailable returns the ASINs of every tile marked unavailable.
func (r *Renderer) Unavailable() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, asin := range r.order {
		if r.tiles[asin].Item.Unavailable {
			out = append(out, asin)
		}
	}
	return out
}

// Snapshot returns the visible tiles ordered by s.
func (r *Renderer) Snapshot(s layout.Sort) Frame {
	r.mu.Lock()
	f := Frame{
		Total:        len(r.order),
		Placeholders: r.placeholders,
		Status:       r.status,
	}
	for _, asin := range r.order {
		t := r.tiles[asin]
		if t.Visible {
			f.Tiles = append(f.Tiles, TileState{Item: t.Item.Clone(), Visible: true})
		}
	}
	r.mu.Unlock()

	sortTiles(f.Tiles, s)
	return f
}

// Wait returns a command that delivers FeedChanged on the next mutation.
func (r *Renderer) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-r.changed:
			return FeedChanged{}
		case <-r.done:
			return rendererClosed{}
		}
	}
}

// Close releases any pending Wait.
func (r *Renderer) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Renderer) signal() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// sortTiles orders tiles, which arrive newest first. Price sorts use the
// upper ETV bound; items without an ETV sort last.
func sortTiles(tiles []TileState, s layout.Sort) {
	switch s {
	case layout.SortOldestFirst:
		slices.Reverse(tiles)
	case layout.SortPriceDesc, layout.SortPriceAsc:
		slices.SortStableFunc(tiles, func(a, b TileState) int {
			av, aok := etvKey(a.Item)
			bv, bok := etvKey(b.Item)
			switch {
			case !aok && !bok:
				return 0
			case !aok:
				return 1
			case !bok:
				return -1
			}
			if s == layout.SortPriceDesc {
				return cmp.Compare(bv, av)
			}
			return cmp.Compare(av, bv)
		})
	}
}

func etvKey(it model.Item) (float64, bool) {
	switch {
	case it.ETVMax != nil:
		return *it.ETVMax, true
	case it.ETVMin != nil:
		return *it.ETVMin, true
	}
	return 0, false
}
