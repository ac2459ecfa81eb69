// Package observability provides the server's ambient logging and metrics
// surface: a logrus-backed structured logger and a lock-free counter set,
// wired through the server façade, static responder and app bridge so
// none of those packages reach for log.Printf directly. The reactor does
// not log.
package observability

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a structured logger in the pack's logrus idiom
// (nabbar-golib and the gin-based repos in this corpus all reach for
// logrus for exactly this role). Text output keeps the server's own
// terminal output grep-able; callers that want JSON can swap the
// formatter before the first log call.
func NewLogger(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

// Discard returns a logger that drops everything, for tests and for
// embedders who wire their own sink through server.Options.Logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
