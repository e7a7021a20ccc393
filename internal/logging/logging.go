// Package logging provides the structured logger used across pgflow.
//
// It mirrors the category shape of the teacher's hand-rolled logger
// (System / Connection / Replication / Audit) but is backed by
// go.uber.org/zap, the structured logger the rest of the retrieval pack
// reaches for (backube-volsync depends on it directly).
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups related log sites; each entry is tagged with its
// category as a "category" field. All categories share one level.
type Category string

const (
	CategorySystem       Category = "system"
	CategoryConnection   Category = "connection"
	CategoryReplication  Category = "replication"
	CategoryAudit        Category = "audit"
)

// Logger wraps a *zap.Logger and exposes one SugaredLogger per category.
type Logger struct {
	base *zap.Logger
}

// Config controls logger construction.
type Config struct {
	Level  zapcore.Level
	JSON   bool
	Output *os.File
}

// DefaultConfig returns sensible defaults: info level, text encoding, stderr.
func DefaultConfig() Config {
	return Config{Level: zapcore.InfoLevel, JSON: false, Output: os.Stderr}
}

// New builds a Logger from the given Config.
func New(cfg Config) *Logger {
	var enc zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), cfg.Level)
	return &Logger{base: zap.New(core)}
}

// Noop returns a Logger that discards everything.
func Noop() *Logger {
	return &Logger{base: zap.NewNop()}
}

// For returns the SugaredLogger for a category, pre-tagged with it.
func (l *Logger) For(cat Category) *zap.SugaredLogger {
	return l.base.Sugar().With("category", string(cat))
}

func (l *Logger) System() *zap.SugaredLogger      { return l.For(CategorySystem) }
func (l *Logger) Connection() *zap.SugaredLogger  { return l.For(CategoryConnection) }
func (l *Logger) Replication() *zap.SugaredLogger { return l.For(CategoryReplication) }
func (l *Logger) Audit() *zap.SugaredLogger       { return l.For(CategoryAudit) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.base.Sync() }
