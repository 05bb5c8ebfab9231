// Package layout computes grid placeholder counts.
//
// New items are inserted at the front of a "most recent first" grid. Filler
// tiles at the start keep existing tiles pinned to their column as the grid
// grows. A separate trailing counter stands in for tiles that were evicted
// from the end, so alignment survives capacity trimming.
package layout

import "sync"

// TilesPerRow returns floor(containerPx / tilePx), or 0 if either
// measurement is unusable.
func TilesPerRow(containerPx, tilePx int) int {
	if containerPx <= 0 || tilePx <= 0 {
		return 0
	}
	return containerPx / tilePx
}

// LeadingPlaceholders returns how many filler tiles go before the first real
// tile. Pure function of its inputs.
func LeadingPlaceholders(visible, trailing, containerPx, tilePx int) int {
	perRow := TilesPerRow(containerPx, tilePx)
	if perRow <= 0 {
		return 0
	}
	theoretical := visible + trailing
	if theoretical < 0 {
		theoretical = 0
	}
	return (perRow - theoretical%perRow) % perRow
}

// Sort is the active feed ordering.
type Sort string

const (
	SortRecentFirst Sort = "date_desc"
	SortOldestFirst Sort = "date_asc"
	SortPriceDesc   Sort = "price_desc"
	SortPriceAsc    Sort = "price_asc"
)

// Input is everything Recompute depends on.
type Input struct {
	Visible     int
	ContainerPx int
	TilePx      int
	Sort        Sort
	Paused      bool
}

// Engine tracks the trailing counter and the last rendered placeholder
// count so callers only touch the renderer when the count changes.
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	trailing int
	perRow   int // tiles per row at the last Recompute
	rendered int
}

// NewEngine creates an Engine with nothing rendered.
func NewEngine() *Engine {
	return &Engine{}
}

// AddTrailing records n tiles removed from the end. The counter wraps modulo
// the last known tiles per row so it stays bounded.
func (e *Engine) AddTrailing(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trailing += n
	if e.perRow > 0 {
		e.trailing %= e.perRow
	}
}

// Trailing returns the current trailing counter.
func (e *Engine) Trailing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trailing
}

// ResetTrailing zeroes the trailing counter, e.g. after a full clear.
func (e *Engine) ResetTrailing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trailing = 0
}

// Rendered returns the placeholder count last reported by Recompute.
func (e *Engine) Rendered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rendered
}

// Recompute returns the placeholder count for in and whether it differs from
// the previously rendered count. When the grid is paused or not sorted most
// recent first the count is 0, so existing placeholders get cleared.
// Calling it twice with the same input reports no change the second time.
func (e *Engine) Recompute(in Input) (count int, changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if perRow := TilesPerRow(in.ContainerPx, in.TilePx); perRow > 0 {
		e.perRow = perRow
		e.trailing %= perRow
	}

	if in.Sort == SortRecentFirst && !in.Paused {
		count = LeadingPlaceholders(in.Visible, e.trailing, in.ContainerPx, in.TilePx)
	}
	changed = count != e.rendered
	e.rendered = count
	return count, changed
}
