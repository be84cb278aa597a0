// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// metastore writes lifecycle, mutation, and error events to one JSON log
// per day under `<root>/logs/YYYY-MM-DD.log`.  When running in an
// interactive TTY we tee the same events to stdout in console form.
// Rotation, compression, and retention are handled by Lumberjack; no
// external log-rotate job is required.
//
// Usage
// -----
//
//	log, err := logger.New(cfg.Paths.Root, logger.RunningInTTY(), cfg.Log.Level)
//	if err != nil { … }
//	log.Infow("metadata.create", "project_id", pid)
//
// Notes
// -----
//   - Zap core uses ISO-8601 timestamps and lowercase levels.
//   - Errors are written to the same sink via `ErrorOutput`.
//   - Before New runs, `Bootstrap` gives config loading a console logger.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var encCfg = zapcore.EncoderConfig{
	TimeKey:      "ts",
	LevelKey:     "level",
	NameKey:      "logger",
	MessageKey:   "msg",
	CallerKey:    "caller",
	EncodeTime:   zapcore.ISO8601TimeEncoder,
	EncodeLevel:  zapcore.LowercaseLevelEncoder,
	EncodeCaller: zapcore.ShortCallerEncoder,
}

// New returns a *zap.SugaredLogger that writes JSON to
// <rootDir>/logs/YYYY-MM-DD.log at level and above.  When tee == true, a
// console core is also attached.  The logger is installed as the
// process-wide default via zap.ReplaceGlobals.
func New(rootDir string, tee bool, level string) (*zap.SugaredLogger, error) {
	lvl := zap.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	logDir := filepath.Join(rootDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	fileName := time.Now().Format("2006-01-02") + ".log"
	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    50, // MB
		MaxBackups: 7,  // keep last seven files
		MaxAge:     14, // days
		Compress:   true,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), lvl),
	}
	if tee {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			lvl,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
	).Sugar()

	// Make this the global logger so zap.S() works everywhere after startup.
	zap.ReplaceGlobals(z.Desugar())

	z.Infow("logger online", "tee", tee, "level", lvl.String())
	return z, nil
}

// Bootstrap installs a console logger on stderr as the global default.
// It covers the window before the configured logger exists.
func Bootstrap() *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.InfoLevel,
	)
	z := zap.New(core)
	zap.ReplaceGlobals(z)
	return z.Sugar()
}

// RunningInTTY returns true when stdout is a character device.
func RunningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
