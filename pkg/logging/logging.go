package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface consumed by the download engine. It is
// satisfied by both *logrus.Logger and *logrus.Entry, so callers can hand the
// engine a pre-scoped entry.
type Logger = logrus.FieldLogger

// Discard returns a Logger that drops everything. It is the default for
// components whose callers did not supply a logger.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
