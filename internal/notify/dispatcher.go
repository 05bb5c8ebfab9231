package notify

import (
	"context"
	"sync/atomic"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/pipeline"
)

// DefaultQueueSize bounds the number of pending intents.
const DefaultQueueSize = 64

// Dispatcher decouples the pipeline's notify stage from slow notifiers.
// Push never blocks; a full queue drops the intent.
type Dispatcher struct {
	queue    chan pipeline.Intent
	notifier Notifier
	player   SoundPlayer
	dropped  atomic.Uint64
}

// NewDispatcher creates a Dispatcher delivering to notifier and player,
// normally a Gate for both.
func NewDispatcher(notifier Notifier, player SoundPlayer, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue:    make(chan pipeline.Intent, size),
		notifier: notifier,
		player:   player,
	}
}

// Push implements pipeline.Intents.
func (d *Dispatcher) Push(in pipeline.Intent) {
	select {
	case d.queue <- in:
	default:
		d.dropped.Add(1)
		metrics.NotificationsTotal.WithLabelValues("notify", "dropped").Inc()
		logging.Warn("notification queue full, dropping", "asin", in.Item.ASIN)
	}
}

// Dropped returns how many intents were dropped because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers queued intents until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-d.queue:
			d.deliver(ctx, in)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, in pipeline.Intent) {
	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, in.Title, in.Item); err != nil {
			logging.Warn("notification failed", "asin", in.Item.ASIN, "error", err)
		}
	}
	if d.player != nil {
		sound := SoundRegular
		if in.Highlight {
			sound = SoundHighlight
		}
		if err := d.player.Play(ctx, sound); err != nil {
			logging.Warn("sound failed", "error", err)
		}
	}
}
