package internal

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logLevel = LogLevelInfo
	logger   = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "codetask",
		Level:           log.InfoLevel,
	})
)

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logLevel = level
	logger.SetLevel(charmLevel(level))
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// SetLogOutput redirects log output
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

func charmLevel(level LogLevel) log.Level {
	switch level {
	case LogLevelError:
		return log.ErrorLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelDebug:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	if logLevel >= LogLevelError {
		logger.Errorf(format, args...)
	}
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	if logLevel >= LogLevelWarn {
		logger.Warnf(format, args...)
	}
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	if logLevel >= LogLevelInfo {
		logger.Infof(format, args...)
	}
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	if logLevel >= LogLevelDebug {
		logger.Debugf(format, args...)
	}
}
