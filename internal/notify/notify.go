// Package notify delivers push notifications and audio cues.
//
// Every side effect goes through a Gate that asks the tab coordinator
// whether this process is the master. Anything else, including the
// undetermined startup state, drops the call. Nothing is queued for later.
package notify

import (
	"context"
	"sync/atomic"

	"github.com/abelbrown/vinewatch/internal/metrics"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/otel"
)

// Notifier shows a push notification for an item.
type Notifier interface {
	Notify(ctx context.Context, title string, item model.Projection) error
}

// Sound identifies an audio cue.
type Sound string

const (
	SoundRegular   Sound = "regular"
	SoundHighlight Sound = "highlight"
)

// SoundPlayer plays an audio cue.
type SoundPlayer interface {
	Play(ctx context.Context, s Sound) error
}

// RoleSource reports whether side effects may fire. *tabs.Coordinator
// implements it.
type RoleSource interface {
	AllowSideEffects() bool
}

// Gate passes calls through only while roles reports master.
type Gate struct {
	notifier   Notifier
	player     SoundPlayer
	roles      RoleSource
	journal    *otel.Logger
	suppressed atomic.Uint64
}

// NewGate wraps notifier and player. Either may be nil.
func NewGate(roles RoleSource, notifier Notifier, player SoundPlayer, journal *otel.Logger) *Gate {
	return &Gate{notifier: notifier, player: player, roles: roles, journal: journal}
}

// Notify implements Notifier.
func (g *Gate) Notify(ctx context.Context, title string, item model.Projection) error {
	if !g.allowed("notify", item.ASIN) || g.notifier == nil {
		return nil
	}
	if err := g.notifier.Notify(ctx, title, item); err != nil {
		metrics.NotificationsTotal.WithLabelValues("notify", "error").Inc()
		g.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindNotifyError, Comp: "notify", ASIN: item.ASIN, Err: err.Error()})
		return err
	}
	metrics.NotificationsTotal.WithLabelValues("notify", "sent").Inc()
	g.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindNotifySent, Comp: "notify", ASIN: item.ASIN, Msg: title})
	return nil
}

// Play implements SoundPlayer.
func (g *Gate) Play(ctx context.Context, s Sound) error {
	if !g.allowed("sound", "") || g.player == nil {
		return nil
	}
	if err := g.player.Play(ctx, s); err != nil {
		metrics.NotificationsTotal.WithLabelValues("sound", "error").Inc()
		return err
	}
	metrics.NotificationsTotal.WithLabelValues("sound", "sent").Inc()
	return nil
}

// Suppressed returns how many calls were dropped for lack of the master role.
func (g *Gate) Suppressed() uint64 {
	return g.suppressed.Load()
}

func (g *Gate) allowed(kind, asin string) bool {
	if g.roles != nil && g.roles.AllowSideEffects() {
		return true
	}
	g.suppressed.Add(1)
	metrics.NotificationsTotal.WithLabelValues(kind, "suppressed").Inc()
	g.journal.Item(otel.KindNotifySuppressed, "notify", asin, kind)
	return false
}
