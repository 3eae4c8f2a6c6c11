// Package log wraps logrus behind a small Logger interface so the rest
// of the engine never touches the backend directly.
package log

import "sync"

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	once   sync.Once
	logger Logger
)

// GetLogger returns the process logger, nil before Init.
func GetLogger() Logger {
	return logger
}

// Init configures the process logger once; later calls are no-ops.
func Init(cfg *Config) error {
	var err error
	once.Do(func() {
		logger, err = newLogrusLogger(cfg)
	})
	return err
}
