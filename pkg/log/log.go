// Package log provides the process-wide logger. It is a thin wrapper
// around zap so that call sites don't carry logger handles through every
// constructor.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = newLogger(level, zap.AddCallerSkip(1))
)

func newLogger(lvl zap.AtomicLevel, opts ...zap.Option) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, append([]zap.Option{zap.AddCaller()}, opts...)...)
}

// SetLevel changes the level of the process-wide logger. It is safe to call
// concurrently with logging.
func SetLevel(lvl zapcore.Level) {
	level.SetLevel(lvl)
}

// NewLoggerWithLevel returns a named logger with its own level, used by
// subsystems that adapt third-party log output.
func NewLoggerWithLevel(name string, lvl zapcore.Level, opts ...zap.Option) *zap.Logger {
	return newLogger(zap.NewAtomicLevelAt(lvl), opts...).Named(name)
}

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

func Fatal(args ...interface{}) { logger.Sugar().Fatal(args...) }

func Debugf(format string, args ...interface{}) { logger.Sugar().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logger.Sugar().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logger.Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logger.Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { logger.Sugar().Fatalf(format, args...) }
