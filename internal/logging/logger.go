// Package logging is the process-wide diagnostic log. It is separate from
// the event journal in otel: this is free-form text for humans.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// KeepDays is how many daily log files Init leaves behind.
const KeepDays = 7

var (
	// Logger is the global logger. Nil until Init or SetOutput.
	Logger *log.Logger

	logFile *os.File
)

// Init logs to dir/vinewatch-<date>.log at the given level and removes
// daily files beyond KeepDays.
func Init(dir string, level log.Level) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, fileName(time.Now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f

	SetOutput(f, level)
	Logger.Info("vinewatch started", "pid", os.Getpid())

	if removed, err := Prune(dir, KeepDays); err != nil {
		Logger.Warn("log pruning failed", "error", err)
	} else if removed > 0 {
		Logger.Debug("pruned old logs", "count", removed)
	}
	return nil
}

func fileName(day time.Time) string {
	return "vinewatch-" + day.Format("2006-01-02") + ".log"
}

// Prune deletes all but the newest keep daily log files in dir.
func Prune(dir string, keep int) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "vinewatch-*.log"))
	if err != nil {
		return 0, err
	}
	if len(matches) <= keep {
		return 0, nil
	}
	// Dates in the name sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	removed := 0
	for _, p := range matches[keep:] {
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SetOutput points the global logger at w. Headless runs log to stderr.
func SetOutput(w io.Writer, level log.Level) {
	Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
}

// ParseLevel maps a config level name to a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Close closes the log file.
func Close() {
	if Logger != nil {
		Logger.Info("vinewatch shutting down")
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func Info(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Debug(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}
