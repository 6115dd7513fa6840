// ABOUTME: Structured logger construction for offroute
// ABOUTME: Wraps charmbracelet/log with the tool prefix and a configurable level

package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

var levels = map[string]log.Level{
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

// New returns a timestamped logger writing to w at the named level.
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "offroute",
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
