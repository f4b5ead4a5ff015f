// Package logging builds the service logger: zap over a lumberjack rotating
// file, optionally teed to stdout.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level       string // debug, info, warn, error (default info)
	Format      string // json or console (default json)
	ServiceName string
	File        string // empty disables the file sink
	ToConsole   bool
}

// Rotation settings for the log file.
const (
	maxSizeMB  = 5
	maxBackups = 3
	maxAgeDays = 28
)

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoder(format string) zapcore.Encoder {
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// NewLogger returns the logger and the closer of its file sink.
func NewLogger(opts Options) (*zap.Logger, io.Closer, error) {
	return newLogger(opts, os.Stdout)
}

func newLogger(opts Options, console io.Writer) (*zap.Logger, io.Closer, error) {
	var writers []zapcore.WriteSyncer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		writers = append(writers, zapcore.AddSync(file))
		closer = file
	}
	if opts.ToConsole || opts.File == "" {
		writers = append(writers, zapcore.AddSync(console))
	}

	core := zapcore.NewCore(encoder(opts.Format), zapcore.NewMultiWriteSyncer(writers...), zap.NewAtomicLevelAt(parseLevel(opts.Level)))
	logger := zap.New(core, zap.AddCaller())

	if opts.ServiceName != "" {
		logger = logger.With(zap.String("service_name", opts.ServiceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
