package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var _log = logrus.New()

// Init configures the process logger. Debug mode logs human-readable text at
// debug level; otherwise JSON lines at info level for log shippers.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	_log.SetLevel(logrus.InfoLevel)
	_log.SetFormatter(&logrus.JSONFormatter{})
}

// Log returns a bare entry on the process logger.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}

// Component tags entries from a long-running subsystem such as the scheduler.
func Component(name string) *logrus.Entry {
	return Log().WithField("component", name)
}

// ForEntity tags entries about a single platform, app or component.
func ForEntity(kind, id string) *logrus.Entry {
	return Log().WithFields(logrus.Fields{"entity_kind": kind, "entity_id": id})
}
