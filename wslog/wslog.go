// Package wslog is the logging seam the endpoint and worker write
// through: a single-method interface so callers can plug in whatever
// structured logger they already run, with Std covering the common case
// of stdlib log output.
package wslog

import (
	"fmt"
	"log"
	"os"
)

// Sink receives one log line per event. Implementations must be safe for
// concurrent use; the I/O worker and the public API goroutines both log.
type Sink interface {
	Logf(format string, args ...any)
}

// Std wraps a *log.Logger as a Sink. Construct it with NewStd; NewStd(nil)
// wraps a logger writing to os.Stderr with no special prefix.
type Std struct {
	logger *log.Logger
}

// NewStd returns a Std wrapping logger, or a default stderr logger if
// logger is nil.
func NewStd(logger *log.Logger) *Std {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Std{logger: logger}
}

func (s *Std) Logf(format string, args ...any) {
	s.logger.Output(2, fmt.Sprintf(format, args...))
}

// Discard is a Sink that drops everything, used as the default when no
// Sink is configured.
type discard struct{}

func (discard) Logf(string, ...any) {}

// Discard is the zero-cost default Sink.
var Discard Sink = discard{}
