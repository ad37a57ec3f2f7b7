// Package logger provides structured logging with request correlation.
// Console output goes to stderr; an optional rotating file receives the same JSON lines.
package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// Options configures the process logger.
type Options struct {
	Level string
	JSON  bool

	// FilePath enables a rotating log file when set.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a zap logger from options.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %s: %w", opts.Level, err)
		}
		level = l
	}

	encCfg := encoderConfig()
	var consoleEnc zapcore.Encoder
	if opts.JSON {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level)}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// StdLogger returns a logger for startup and shutdown before configuration is
// loaded. JSON when LOG_JSON=1.
func StdLogger() *zap.Logger {
	l, err := New(Options{JSON: os.Getenv("LOG_JSON") == "1"})
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// RequestLog writes a single line for an HTTP request after the response is sent.
func RequestLog(log *zap.Logger, reqID, method, path string, status int, duration time.Duration, errMsg string) {
	fields := []zap.Field{
		zap.String("request_id", reqID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
	}
	if errMsg != "" {
		fields = append(fields, zap.String("error", errMsg))
	}
	switch {
	case status >= 500:
		log.Error("request", fields...)
	case status >= 400:
		log.Warn("request", fields...)
	default:
		log.Info("request", fields...)
	}
}

// FromContext returns the request ID from context, or empty string.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequest returns log annotated with the request ID carried by ctx, if any.
func WithRequest(ctx context.Context, log *zap.Logger) *zap.Logger {
	if id := FromContext(ctx); id != "" {
		return log.With(zap.String("request_id", id))
	}
	return log
}
