package store

import (
	"context"
	"time"

	"github.com/abelbrown/vinewatch/internal/logging"
)

// DefaultWatchInterval is the polling period of Watch.
const DefaultWatchInterval = 2 * time.Second

// Watch polls the revision every interval and calls fn whenever it moved,
// starting with the current revision. It returns when ctx is done. Read
// errors are logged and retried on the next tick.
func (s *Store) Watch(ctx context.Context, interval time.Duration, fn func(rev int64)) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	last := int64(-1)
	check := func() {
		rev, err := s.Rev()
		if err != nil {
			logging.Warn("settings revision read failed", "error", err)
			return
		}
		if rev != last {
			last = rev
			fn(rev)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
