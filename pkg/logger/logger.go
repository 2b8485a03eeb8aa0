package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

func init() {
	// default logger so packages can log before Init runs (tests mostly)
	build("info")
}

// Init configures the global logger with the given level
// ("debug", "info", "warn", "error"). Empty or unknown levels fall back
// to the CHATSYNC_LOG_LEVEL env var, then to info.
func Init(level string) {
	if level == "" {
		level = os.Getenv("CHATSYNC_LOG_LEVEL")
	}
	build(level)
}

func build(level string) {
	var lv zapcore.Level
	switch level {
	case "debug":
		lv = zapcore.DebugLevel
	case "warn", "warning":
		lv = zapcore.WarnLevel
	case "error":
		lv = zapcore.ErrorLevel
	default:
		lv = zapcore.InfoLevel
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		MessageKey:    "msg",
		CallerKey:     "caller",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		lv,
	)
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugar = log.Sugar()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() { _ = log.Sync() }

// Debug logs an event name followed by alternating key/value pairs.
func Debug(msg string, kv ...any) { sugar.Debugw(msg, kv...) }

// Info logs an event name followed by alternating key/value pairs.
func Info(msg string, kv ...any) { sugar.Infow(msg, kv...) }

// Warn logs an event name followed by alternating key/value pairs.
func Warn(msg string, kv ...any) { sugar.Warnw(msg, kv...) }

// Error logs an event name followed by alternating key/value pairs.
func Error(msg string, kv ...any) { sugar.Errorw(msg, kv...) }
