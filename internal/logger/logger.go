// Package logger emits one JSON object per line on stdout, keyed by a
// machine-readable action name plus a per-service tag.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	z *zap.Logger
}

func New(service string) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		MessageKey:    "action",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
		NameKey:       "logger",
		StacktraceKey: "",
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	z := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname()),
	)
	return &Logger{z: z}
}

func (l *Logger) Info(action string, fields map[string]any) {
	l.z.Info(action, zapFields(fields, nil)...)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.z.Debug(action, zapFields(fields, nil)...)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.z.Error(action, zapFields(fields, err)...)
}

// Sync flushes buffered entries; call before process exit.
func (l *Logger) Sync() { _ = l.z.Sync() }

func zapFields(m map[string]any, err error) []zap.Field {
	fs := make([]zap.Field, 0, len(m)+1)
	for k, v := range m {
		fs = append(fs, zap.Any(k, v))
	}
	if err != nil {
		fs = append(fs, zap.Error(err))
	}
	return fs
}

func hostname() string { h, _ := os.Hostname(); return h }
