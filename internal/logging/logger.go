// Package logging provides the process-wide Logger interface and its
// default logrus-backed implementation: Info/Infof/Warn/Warnf/Error/
// Errorf/Debug/Debugf/Fatal/Fatalf plus ToggleDebug, backed by
// github.com/sirupsen/logrus rather than the bare standard library
// log.Logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface every component depends on instead of the
// concrete logrus type, so tests can substitute a recording stub.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	// ToggleDebug flips debug-level logging on or off and returns the
	// new state.
	ToggleDebug(enabled bool) bool

	// WithFields attaches structured fields to subsequent entries,
	// following logrus's own WithFields idiom.
	WithFields(fields map[string]interface{}) Logger

	// EventNewView, EventUnreachable and EventCrashing emit the three
	// exact protocol-observable lines through EventFormatter rather than
	// the logger's normal text formatter.
	EventNewView(procID, viewID, leader uint32, members []uint32)
	EventUnreachable(procID, viewID, leader, peer uint32)
	EventCrashing(procID, viewID, leader uint32)
}

// DefaultLogger wraps a *logrus.Logger for ordinary traffic and holds a
// second logrus.Logger instance, formatted with EventFormatter, for the
// pinned protocol event lines.
type DefaultLogger struct {
	entry    *logrus.Entry
	log      *logrus.Logger
	event    *logrus.Logger
	testcase bool
}

// SetTestcase marks every subsequent event line emitted by this logger
// with a "testcase: true" field, letting a harness correlating logs
// from many processes filter down to instrumented runs started with
// -t.
func (l *DefaultLogger) SetTestcase(enabled bool) {
	l.testcase = enabled
}

// New builds the default logger, writing ordinary text-formatted lines
// and pinned-format event lines both to w (stderr in production).
func New(w io.Writer) *DefaultLogger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)

	event := logrus.New()
	event.SetOutput(w)
	event.SetFormatter(&EventFormatter{})
	event.SetLevel(logrus.InfoLevel)

	return &DefaultLogger{entry: logrus.NewEntry(log), log: log, event: event}
}

// NewDefault builds a DefaultLogger writing to stderr, the process
// default.
func NewDefault() *DefaultLogger {
	return New(os.Stderr)
}

func (l *DefaultLogger) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *DefaultLogger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }
func (l *DefaultLogger) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *DefaultLogger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l *DefaultLogger) Error(args ...interface{})                { l.entry.Error(args...) }
func (l *DefaultLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
func (l *DefaultLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *DefaultLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *DefaultLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *DefaultLogger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *DefaultLogger) ToggleDebug(enabled bool) bool {
	if enabled {
		l.log.SetLevel(logrus.DebugLevel)
	} else {
		l.log.SetLevel(logrus.InfoLevel)
	}
	return enabled
}

func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	return &DefaultLogger{
		entry:    l.entry.WithFields(logrus.Fields(fields)),
		log:      l.log,
		event:    l.event,
		testcase: l.testcase,
	}
}

func (l *DefaultLogger) EventNewView(procID, viewID, leader uint32, members []uint32) {
	fields := logrus.Fields{
		fieldKind:   kindNewView,
		"proc_id":   procID,
		"view_id":   viewID,
		"leader":    leader,
		"memb_list": members,
	}
	l.withTestcase(fields)
	l.event.WithFields(fields).Info()
}

func (l *DefaultLogger) EventUnreachable(procID, viewID, leader, peer uint32) {
	fields := logrus.Fields{
		fieldKind: kindUnreachable,
		"peer_id": procID,
		"view_id": viewID,
		"leader":  leader,
		"message": unreachableMessage(peer),
	}
	l.withTestcase(fields)
	l.event.WithFields(fields).Info()
}

func (l *DefaultLogger) EventCrashing(procID, viewID, leader uint32) {
	fields := logrus.Fields{
		fieldKind: kindCrashing,
		"peer_id": procID,
		"view_id": viewID,
		"leader":  leader,
		"message": "crashing",
	}
	l.withTestcase(fields)
	l.event.WithFields(fields).Info()
}

func (l *DefaultLogger) withTestcase(fields logrus.Fields) {
	if l.testcase {
		fields["testcase"] = true
	}
}
