package slogutil

import (
	"io"
	"log/slog"
	"os"

	"github.com/floodgatehq/floodgate/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds the process logger from the log configuration. With a file
// configured, records go to both stdout and a rotated file; otherwise stdout
// only. The returned leveler follows configuration reloads.
func Setup(logConfig config.LogConfig) (*slog.Logger, *DynamicLeveler) {
	var writer io.Writer = os.Stdout
	if logConfig.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   logConfig.File,
			MaxSize:    logConfig.MaxSize,
			MaxBackups: logConfig.MaxBackups,
			MaxAge:     logConfig.MaxAge,
			Compress:   logConfig.Compress,
		}
		writer = io.MultiWriter(os.Stdout, fileWriter)
	}

	leveler := NewDynamicLeveler(logConfig.Level)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: leveler,
	})
	return slog.New(WrapHandler(handler)), leveler
}
