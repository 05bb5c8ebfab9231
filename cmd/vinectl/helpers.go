package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/vinewatch/internal/store"
)

// openStore opens the settings database, creating the data directory if
// needed.
func (c *cli) openStore() (*store.Store, error) {
	if err := os.MkdirAll(c.cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.Open(c.cfg.DBPath())
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
