package slogutil

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// DynamicLeveler is a slog.Leveler whose level can change at runtime, wired
// to configuration reloads.
type DynamicLeveler struct {
	level atomic.Value
}

// NewDynamicLeveler creates a leveler starting at the parsed level.
func NewDynamicLeveler(level string) *DynamicLeveler {
	dl := &DynamicLeveler{}
	dl.level.Store(ParseLevel(level))
	return dl
}

// Level returns the current logging level.
func (dl *DynamicLeveler) Level() slog.Level {
	return dl.level.Load().(slog.Level)
}

// SetLevel updates the logging level.
func (dl *DynamicLeveler) SetLevel(level slog.Level) {
	dl.level.Store(level)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
