package logging

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing to stderr, filtered at the given level
// ("debug", "info", "warn" or "error"; anything else means info).
func New(service, lvl string) log.Logger {
	return NewWithWriter(os.Stderr, service, lvl)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, service, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, option(lvl))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "service", service, "caller", log.DefaultCaller)
}

// Nop discards everything. Used when a component is built without a logger.
func Nop() log.Logger {
	return log.NewNopLogger()
}

func option(lvl string) level.Option {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
