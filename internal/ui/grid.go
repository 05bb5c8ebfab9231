package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// tileLines is the content height of a tile; borders add two more.
const tileLines = 3

const rowHeight = tileLines + 2

// RenderGrid lays out placeholders followed by tiles, tileWidth columns
// each, scrolled so that the cursor row is visible within height lines.
func RenderGrid(f Frame, cursor, width, height, tileWidth int) string {
	if len(f.Tiles) == 0 {
		return HelpStyle.Render("Waiting for items. Press 'f' to fetch recent items.")
	}

	perRow := layout.TilesPerRow(width, tileWidth)
	if perRow < 1 {
		perRow = 1
	}
	slots := f.Placeholders + len(f.Tiles)
	rows := (slots + perRow - 1) / perRow

	visibleRows := height / rowHeight
	if visibleRows < 1 {
		visibleRows = 1
	}
	first := scrollRow((f.Placeholders+cursor)/perRow, rows, visibleRows)

	var out []string
	for row := first; row < rows && row < first+visibleRows; row++ {
		var cells []string
		for col := 0; col < perRow; col++ {
			slot := row*perRow + col
			if slot >= slots {
				break
			}
			if slot < f.Placeholders {
				cells = append(cells, renderPlaceholder(tileWidth))
				continue
			}
			i := slot - f.Placeholders
			cells = append(cells, renderTile(f.Tiles[i].Item, i == cursor, tileWidth))
		}
		out = append(out, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

// scrollRow returns the first row to draw so that cursorRow is on screen.
func scrollRow(cursorRow, rows, visibleRows int) int {
	if cursorRow < visibleRows {
		return 0
	}
	first := cursorRow - visibleRows + 1
	if last := rows - visibleRows; first > last && last >= 0 {
		first = last
	}
	return first
}

func renderPlaceholder(tileWidth int) string {
	return PlaceholderTile.Width(tileWidth - 2).Render("")
}

func renderTile(it model.Item, selected bool, tileWidth int) string {
	inner := tileWidth - 2
	if inner < 4 {
		inner = 4
	}

	head := QueueBadge.Render(queueLabel(it.Queue)) + " " + renderETV(it)
	if flags := tileFlags(it); flags != "" {
		head += " " + MetaItem.Render(flags)
	}

	title := it.Title
	if title == "" {
		title = it.ASIN
	}
	title = truncateRunes(title, inner*(tileLines-1))

	var body string
	switch {
	case it.Unavailable:
		body = TileUnavailable.Render(title)
	case it.BlurMatch.Matched():
		body = TileBlurred.Render(blurText(title))
	default:
		body = TileTitle.Render(title)
	}

	style := Tile
	switch {
	case selected:
		style = SelectedTile
	case it.HighlightMatch.Matched():
		style = HighlightedTile
	}
	return style.Width(inner).Render(head + "\n" + body)
}

func queueLabel(q model.Queue) string {
	switch q {
	case model.QueuePotluck:
		return "RFY"
	case model.QueueLastChance:
		return "AFA"
	case model.QueueEncore:
		return "AI"
	}
	return "?"
}

// renderETV formats the ETV bounds as a single value or a range.
func renderETV(it model.Item) string {
	if !it.HasETV() {
		return MetaItem.Render("$?")
	}
	lo, hi := *it.ETVMin, *it.ETVMax
	text := fmt.Sprintf("$%.2f", hi)
	if lo != hi {
		text = fmt.Sprintf("$%.2f-%.2f", lo, hi)
	}
	if hi == 0 {
		return ETVZero.Render(text)
	}
	return ETVBadge.Render(text)
}

func tileFlags(it model.Item) string {
	var f []string
	if it.IsParentASIN {
		f = append(f, fmt.Sprintf("+%d", len(it.Variants)))
	}
	if it.IsPreRelease {
		f = append(f, "pre")
	}
	if it.Timestamp > 0 {
		f = append(f, formatAgeShort(time.Unix(it.Timestamp, 0)))
	}
	return strings.Join(f, " ")
}

// blurText replaces letters and digits, keeping word shapes.
func blurText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return '░'
		}
		return r
	}, s)
}

func formatAgeShort(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "now"
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

// truncateRunes shortens s to at most n runes, ending in "…" when cut.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// RenderStatusBar renders the bottom bar: role, live state, counts, view.
func RenderStatusBar(role model.Role, f Frame, cursor int, sort layout.Sort, paused bool, filter string, width int) string {
	var state string
	switch f.Status.State {
	case live.StateConnected:
		state = LiveConnected.Render("● live")
	case live.StateConnecting:
		state = LiveConnecting.Render("◌ connecting")
	default:
		state = LiveDisconnected.Render("○ offline")
	}
	if role != model.RoleMaster {
		state = StatusBarText.Render(role.String()) + " " + state
	}

	pos := "0/0"
	if len(f.Tiles) > 0 {
		pos = fmt.Sprintf("%d/%d", cursor+1, len(f.Tiles))
	}
	parts := []string{
		state,
		StatusBarText.Render(pos),
		StatusBarText.Render(fmt.Sprintf("%d stored", f.Total)),
		StatusBarKey.Render(filter),
		StatusBarText.Render(string(sort)),
	}
	if paused {
		parts = append(parts, StatusBarKey.Render("PAUSED"))
	}
	return StatusBar.Width(width).Render(strings.Join(parts, "  "))
}
