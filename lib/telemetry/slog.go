package telemetry

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// InitSlog installs the default logger. Verbose mode keeps the stock
// handler at debug level, otherwise a compact colored handler is used.
func InitSlog(verbose bool) {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		return
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}
