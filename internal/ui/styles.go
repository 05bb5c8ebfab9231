package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
)

// Tile is the base style for one feed tile. Width and border color are set
// per tile at render time.
var Tile = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted).
	Height(tileLines).
	MaxHeight(tileLines + 2)

// SelectedTile overrides the border of the tile under the cursor.
var SelectedTile = Tile.
	BorderForeground(colorPrimary).
	BorderStyle(lipgloss.ThickBorder())

// HighlightedTile marks tiles matched by a highlight rule.
var HighlightedTile = Tile.BorderForeground(colorHighlight)

// PlaceholderTile is an empty filler tile.
var PlaceholderTile = Tile.
	BorderForeground(lipgloss.Color("236")).
	BorderStyle(lipgloss.HiddenBorder())

// TileTitle style for the item title.
var TileTitle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// TileBlurred style for titles hidden by a blur rule.
var TileBlurred = lipgloss.NewStyle().
	Foreground(colorMuted)

// TileUnavailable style for items no longer available.
var TileUnavailable = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Strikethrough(true)

// ETVBadge style for the estimated tax value.
var ETVBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// ETVZero marks items with a zero ETV.
var ETVZero = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// QueueBadge style for the queue label.
var QueueBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236"))

// MetaItem style for secondary tile text (age, flags).
var MetaItem = lipgloss.NewStyle().
	Foreground(colorMuted)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// Live connection indicators.
var (
	LiveConnected    = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	LiveConnecting   = lipgloss.NewStyle().Foreground(colorWarning)
	LiveDisconnected = lipgloss.NewStyle().Foreground(colorError)
)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers in the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)
