package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/model"
)

// TerminalNotifier writes one line per notification. It is the fallback
// when no desktop notifier is available.
type TerminalNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminalNotifier creates a TerminalNotifier writing to w.
func NewTerminalNotifier(w io.Writer) *TerminalNotifier {
	return &TerminalNotifier{w: w}
}

// Notify implements Notifier.
func (n *TerminalNotifier) Notify(_ context.Context, title string, item model.Projection) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	logging.Info("notification", "title", title, "asin", item.ASIN, "queue", item.Queue)
	_, err := fmt.Fprintf(n.w, "[%s] %s: %s (%s)\n", item.Queue, title, item.Title, item.ASIN)
	return err
}

// BellPlayer rings the terminal bell: once for a regular item, twice for a
// highlighted one.
type BellPlayer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellPlayer creates a BellPlayer writing to w.
func NewBellPlayer(w io.Writer) *BellPlayer {
	return &BellPlayer{w: w}
}

// Play implements SoundPlayer.
func (b *BellPlayer) Play(_ context.Context, s Sound) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bell := "\a"
	if s == SoundHighlight {
		bell = "\a\a"
	}
	_, err := io.WriteString(b.w, bell)
	return err
}

// Multi fans a notification out to several notifiers. All are tried; the
// first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, title string, item model.Projection) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, title, item); err != nil && first == nil {
			first = err
		}
	}
	return first
}
