package logger

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Logger type is interface for available logging methods.
type Logger interface {
	Trace(...interface{})
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
	Panic(...interface{})
	Fatal(...interface{})
}

// LoggerImpl is a struct that extends sirupsen/logrus.
type LoggerImpl struct {
	Logger         *log.Entry
	Service        string
	LogLevelStr    string
	PrintStackDump bool
}

// NewServerLogger creates a logger for the long running serve mode.
// exitHandlerFn is called by logrus before Fatal exits the process.
func NewServerLogger(serviceName string, level string, stackDumpOnPanic bool, exitHandlerFn func()) (*LoggerImpl, error) {
	l, err := NewLogger(serviceName, level, stackDumpOnPanic)
	if err != nil {
		return nil, err
	}
	log.SetFormatter(&log.JSONFormatter{})
	log.RegisterExitHandler(exitHandlerFn)
	return l, nil
}

// NewLogger will create a new logger implementation.
func NewLogger(serviceName string, level string, stackDumpOnPanic bool) (*LoggerImpl, error) {
	log.SetOutput(os.Stderr)
	logLevel, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("error setting up logging: %w", err)
	}
	log.SetLevel(logLevel)
	logger := log.WithFields(log.Fields{
		"service": serviceName,
	})
	return &LoggerImpl{Logger: logger, Service: serviceName, LogLevelStr: level, PrintStackDump: stackDumpOnPanic}, nil
}

// NewNullLogger returns a logger that discards output, used by tests.
func NewNullLogger() *LoggerImpl {
	l := log.New()
	l.SetOutput(io.Discard)
	return &LoggerImpl{Logger: log.NewEntry(l), Service: "null", LogLevelStr: "panic"}
}

// Trace log.
func (l *LoggerImpl) Trace(message ...interface{}) {
	l.Logger.Trace(message...)
}

// Debug log.
func (l *LoggerImpl) Debug(message ...interface{}) {
	l.Logger.Debug(message...)
}

// Info log.
func (l *LoggerImpl) Info(message ...interface{}) {
	l.Logger.Info(message...)
}

// Warn log.
func (l *LoggerImpl) Warn(message ...interface{}) {
	l.Logger.Warn(message...)
}

// Error (with stack trace in trace mode or if PrintStackDump is set).
func (l *LoggerImpl) Error(message ...interface{}) {
	if l.PrintStackDump {
		l.Logger.WithField("stackTrace", string(debug.Stack())).Error(message...)
		return
	}
	l.Logger.Error(message...)
}

// Panic (with stack trace in debug mode, or if user explicitly sets PrintStackDump).
func (l *LoggerImpl) Panic(message ...interface{}) {
	if l.PrintStackDump {
		l.Logger.WithField("stackTrace", string(debug.Stack())).Panic(message...)
		return
	}
	l.Logger.Panic(message...)
}

// Fatal (with stack trace in debug mode).
// This causes exit(1) without a stack dump by default.
func (l *LoggerImpl) Fatal(message ...interface{}) {
	if l.LogLevelStr == "debug" || l.LogLevelStr == "trace" {
		l.Logger.WithField("stackTrace", string(debug.Stack())).Fatal(message...)
	} else {
		l.Logger.Fatal(message...)
	}
}

// WithField returns a child logger carrying an extra structured field, e.g. the table being loaded.
func (l *LoggerImpl) WithField(key string, value interface{}) *LoggerImpl {
	return &LoggerImpl{
		Logger:         l.Logger.WithField(key, value),
		Service:        l.Service,
		LogLevelStr:    l.LogLevelStr,
		PrintStackDump: l.PrintStackDump,
	}
}

// SetOutput will set the log output to the Writer supplied.
func (l *LoggerImpl) SetOutput(writer io.Writer) {
	l.Logger.Logger.SetOutput(writer)
}

// SetFormatter sets the formatter of the underlying logrus logger.
func (l *LoggerImpl) SetFormatter(f log.Formatter) {
	l.Logger.Logger.SetFormatter(f)
}
