package log

import (
	"io"
	"log/slog"
	"os"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/bombsimon/logrusr/v4"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelVar = &slog.LevelVar{}

// InitLogger will initialize the default logger instance.
func InitLogger() {
	levelVar.Set(slog.LevelInfo)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar, AddSource: true}))

	slog.SetDefault(logger)
}

// SetLevel will set the logging level of the default logger at runtime.
func SetLevel(loglevel string) {
	switch Level(loglevel) {
	case LevelDebug, LevelTrace:
		levelVar.Set(slog.LevelDebug)
	case LevelInfo, "":
		levelVar.Set(slog.LevelInfo)
	case LevelWarn:
		levelVar.Set(slog.LevelWarn)
	case LevelError:
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
		slog.Warn("Unknown log level, defaulting to info", "loglevel", loglevel)
	}
}

// ParseLevel maps a configured level to a logrus level.
func ParseLevel(logLevel string) (logrus.Level, bool) {
	switch Level(logLevel) {
	case LevelTrace:
		return logrus.TraceLevel, true
	case LevelDebug:
		return logrus.DebugLevel, true
	case LevelInfo, "":
		return logrus.InfoLevel, true
	case LevelWarn:
		return logrus.WarnLevel, true
	case LevelError:
		return logrus.ErrorLevel, true
	default:
		return logrus.InfoLevel, false
	}
}

// NewLogrusLogger will generate a new logrus logger instance writing to stderr,
// stdout is kept for command output.
func NewLogrusLogger(logLevel string) *logrus.Logger {
	return newLogrusLogger(os.Stderr, logLevel)
}

func newLogrusLogger(out io.Writer, logLevel string) *logrus.Logger {
	logger := logrus.New()

	logger.SetOutput(out)

	level, ok := ParseLevel(logLevel)
	logger.Level = level

	if !ok {
		logger.WithField("logLevel", logLevel).Warn("Unknown log level, defaulting to info")
	}

	runtimeFormatter := &runtime.Formatter{
		ChildFormatter: &logrus.JSONFormatter{},
		File:           true,
		Line:           true,
		BaseNameOnly:   true,
	}

	logger.SetFormatter(runtimeFormatter)

	return logger
}

// NewLogr wraps the logrus logger for libraries logging through logr.
func NewLogr(logger *logrus.Logger) logr.Logger {
	return logrusr.New(logger)
}

// Discard returns an entry that drops everything, for tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logrus.NewEntry(logger)
}
