// Package ui provides the Bubble Tea terminal grid for vinewatch.
package ui

// FeedChanged is sent when the Renderer has new state to draw.
type FeedChanged struct{}

// rendererClosed is sent once the Renderer is closed; the App stops waiting.
type rendererClosed struct{}

// noticeExpired clears a transient status bar notice.
type noticeExpired struct {
	seq int
}
