package ui

import (
	"fmt"
	"time"

	"github.com/abelbrown/vinewatch/internal/items"
	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/monitor"
	"github.com/abelbrown/vinewatch/internal/otel"
	"github.com/abelbrown/vinewatch/internal/trend"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of the monitor the App drives. *monitor.Monitor
// implements it.
type Controller interface {
	Role() model.Role
	View() monitor.View
	SetView(monitor.View)
	Sort() layout.Sort
	SetSort(layout.Sort)
	Paused() bool
	SetPaused(bool)
	Relayout()
	RequestFetch(reason string)
	Clear(asins []string, keep bool) items.Removal
}

// sortCycle is the order the sort key steps through.
var sortCycle = []layout.Sort{
	layout.SortRecentFirst,
	layout.SortOldestFirst,
	layout.SortPriceDesc,
	layout.SortPriceAsc,
}

const noticeTTL = 3 * time.Second

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the item store. It draws Renderer snapshots
// and sends user actions to the Controller.
type App struct {
	ctl    Controller
	render *Renderer
	ring   *otel.RingBuffer
	trends TrendSource

	keys keyMap
	help help.Model

	frame     Frame
	cursor    int
	width     int
	height    int
	ready     bool
	showDebug bool

	notice    string
	noticeSeq int
}

// NewApp creates the App. ring may be nil, which disables the debug pane.
func NewApp(ctl Controller, r *Renderer, ring *otel.RingBuffer) App {
	return App{
		ctl:    ctl,
		render: r,
		ring:   ring,
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
}

// TrendSource reports the words trending in item titles.
// *trend.Tracker implements it.
type TrendSource interface {
	Top(n int) []trend.Word
}

// WithTrends adds the trending words list to the debug pane.
func (a App) WithTrends(src TrendSource) App {
	a.trends = src
	return a
}

// Init starts waiting for renderer changes.
func (a App) Init() tea.Cmd {
	return a.render.Wait()
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.help.Width = msg.Width
		a.render.SetWidth(msg.Width)
		a.ctl.Relayout()
		a.refresh()
		return a, nil

	case FeedChanged:
		a.refresh()
		return a, a.render.Wait()

	case rendererClosed:
		return a, nil

	case noticeExpired:
		if msg.seq == a.noticeSeq {
			a.notice = ""
		}
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showDebug {
		switch {
		case key.Matches(msg, a.keys.Debug):
			a.showDebug = false
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		}
		return a, nil
	}

	perRow := layout.TilesPerRow(a.width, a.render.TileWidth())
	if perRow < 1 {
		perRow = 1
	}
	n := len(a.frame.Tiles)

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Left):
		a.moveCursor(-1)
	case key.Matches(msg, a.keys.Right):
		a.moveCursor(1)
	case key.Matches(msg, a.keys.Up):
		a.moveCursor(-perRow)
	case key.Matches(msg, a.keys.Down):
		a.moveCursor(perRow)
	case key.Matches(msg, a.keys.Top):
		a.cursor = 0
	case key.Matches(msg, a.keys.Bottom):
		if n > 0 {
			a.cursor = n - 1
		}

	case key.Matches(msg, a.keys.AllQueues):
		return a.setQueue("")
	case key.Matches(msg, a.keys.Potluck):
		return a.setQueue(model.QueuePotluck)
	case key.Matches(msg, a.keys.LastChance):
		return a.setQueue(model.QueueLastChance)
	case key.Matches(msg, a.keys.Encore):
		return a.setQueue(model.QueueEncore)

	case key.Matches(msg, a.keys.HighlightOnly):
		v := a.ctl.View()
		v.HighlightOnly = !v.HighlightOnly
		a.ctl.SetView(v)
		a.refresh()

	case key.Matches(msg, a.keys.HideUnavailable):
		v := a.ctl.View()
		v.HideUnavailable = !v.HideUnavailable
		a.ctl.SetView(v)
		a.refresh()

	case key.Matches(msg, a.keys.Sort):
		a.ctl.SetSort(nextSort(a.ctl.Sort()))
		a.refresh()
		return a.flash("sort: " + string(a.ctl.Sort()))

	case key.Matches(msg, a.keys.Pause):
		a.ctl.SetPaused(!a.ctl.Paused())
		a.refresh()

	case key.Matches(msg, a.keys.Fetch):
		a.ctl.RequestFetch("manual")
		return a.flash("fetching recent items")

	case key.Matches(msg, a.keys.ClearUnavailable):
		r := a.ctl.Clear(a.render.Unavailable(), false)
		a.refresh()
		return a.flash(fmt.Sprintf("cleared %d unavailable", len(r.Removed)))

	case key.Matches(msg, a.keys.ClearAll):
		r := a.ctl.Clear(nil, true)
		a.refresh()
		return a.flash(fmt.Sprintf("cleared %d items", len(r.Removed)))

	case key.Matches(msg, a.keys.Debug):
		a.showDebug = a.ring != nil

	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
	}

	return a, nil
}

func (a App) setQueue(q model.Queue) (tea.Model, tea.Cmd) {
	v := a.ctl.View()
	v.Queue = q
	a.ctl.SetView(v)
	a.refresh()
	return a, nil
}

// flash shows a notice in the status bar for noticeTTL.
func (a App) flash(text string) (tea.Model, tea.Cmd) {
	a.noticeSeq++
	a.notice = text
	seq := a.noticeSeq
	return a, tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpired{seq: seq} })
}

func (a *App) moveCursor(delta int) {
	n := len(a.frame.Tiles)
	if n == 0 {
		a.cursor = 0
		return
	}
	c := a.cursor + delta
	if c < 0 {
		c = 0
	}
	if c >= n {
		c = n - 1
	}
	a.cursor = c
}

func (a *App) refresh() {
	a.frame = a.render.Snapshot(a.ctl.Sort())
	if a.cursor >= len(a.frame.Tiles) {
		a.cursor = len(a.frame.Tiles) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func nextSort(s layout.Sort) layout.Sort {
	for i, c := range sortCycle {
		if c == s {
			return sortCycle[(i+1)%len(sortCycle)]
		}
	}
	return sortCycle[0]
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.showDebug {
		var words []trend.Word
		if a.trends != nil {
			words = a.trends.Top(trendCount)
		}
		return debugOverlay(a.ring, words, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	helpView := a.help.View(a.keys)
	contentHeight := a.height - 1 - lipgloss.Height(helpView)
	if a.notice != "" {
		contentHeight--
	}

	grid := RenderGrid(a.frame, a.cursor, a.width, contentHeight, a.render.TileWidth())
	grid = lipgloss.NewStyle().Height(contentHeight).MaxHeight(contentHeight).Render(grid)

	statusBar := RenderStatusBar(a.ctl.Role(), a.frame, a.cursor, a.ctl.Sort(), a.ctl.Paused(), viewLabel(a.ctl.View()), a.width)

	out := grid + "\n"
	if a.notice != "" {
		out += StatusBarText.Render(a.notice) + "\n"
	}
	return out + statusBar + "\n" + helpView
}

func viewLabel(v monitor.View) string {
	label := "all"
	if v.Queue != "" {
		label = queueLabel(v.Queue)
	}
	if v.HighlightOnly {
		label += " ★"
	}
	if v.HideUnavailable {
		label += " -unavail"
	}
	return label
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Frame returns the last drawn frame (for testing).
func (a App) Frame() Frame {
	return a.frame
}
