// Package diag provides the single diagnostic sink: one logger built at
// startup and passed down explicitly to the packages that log
// (internal/daemon and internal/loop), rather than packages reaching for a
// global logger. The other packages return errors instead of logging.
package diag

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a *logrus.Logger configured the way the daemon wants
// diagnostics formatted, regardless of whether output ends up on the
// terminal or a redirected log file: a single-line, timestamped text
// formatter so daemonizing never changes how a line reads.
func New(out io.Writer, debug bool) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Discard returns a logger that drops everything, for tests that don't
// want diagnostic noise but still need to satisfy a *logrus.Logger field.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
