package elektroid

import (
	"os"

	"github.com/charmbracelet/log"
)

// logger is the package-wide structured logger. The original C
// implementation threaded a global "debug_level" through debug_print and
// error_print; we keep one shared *log.Logger instead and let callers
// narrow it with With() for a component tag.
var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Level:           log.InfoLevel,
})

// SetLogLevel adjusts the package-wide verbosity. level follows
// charmbracelet/log's level names: "debug", "info", "warn", "error".
func SetLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, leaving unchanged", "level", level)
		return
	}
	logger.SetLevel(lvl)
}

func componentLogger(name string) *log.Logger {
	return logger.With("component", name)
}
