package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry is a single log record handed to an Appender.
type Entry struct {
	Time       time.Time
	Level      Level
	LoggerName string
	Message    string
}

// Appender receives formatted log entries. Implementations must be safe
// for concurrent use.
type Appender interface {
	Write(e Entry) error
	Sync() error
}

func levelToZap(l Level) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// stdoutAppender writes entries to stdout via a zap logger, matching the
// structured-logging convention the rest of the ambient stack follows.
type stdoutAppender struct {
	core *zap.Logger
}

// NewStdoutAppender returns an Appender backed by a production zap config
// writing to stdout.
func NewStdoutAppender() Appender {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	core, err := cfg.Build()
	if err != nil {
		// Falls back to a no-op logger; stdout construction only fails on
		// malformed config, which NewProductionConfig never produces.
		core = zap.NewNop()
	}
	return &stdoutAppender{core: core}
}

func (a *stdoutAppender) Write(e Entry) error {
	if ce := a.core.Check(levelToZap(e.Level), e.Message); ce != nil {
		ce.Time = e.Time
		ce.LoggerName = e.LoggerName
		ce.Write()
	}
	return nil
}

func (a *stdoutAppender) Sync() error {
	return a.core.Sync()
}
