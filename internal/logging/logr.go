package logging

import (
	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logrCore is a zapcore.Core that forwards every entry to a logr.Logger,
// so a caller already standardized on logr (as controller-runtime
// consumers are) can supply one without this module adopting logr as its
// own logging interface.
type logrCore struct {
	logger logr.Logger
	level  zapcore.Level
	fields []zapcore.Field
}

func newLogrCore(l logr.Logger, level zapcore.Level) *logrCore {
	return &logrCore{logger: l, level: level}
}

func (c *logrCore) Enabled(lvl zapcore.Level) bool { return lvl >= c.level }

func (c *logrCore) With(fields []zapcore.Field) zapcore.Core {
	cp := *c
	cp.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &cp
}

func (c *logrCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *logrCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range append(c.fields, fields...) {
		f.AddTo(enc)
	}
	kvs := make([]interface{}, 0, len(enc.Fields)*2)
	for k, v := range enc.Fields {
		kvs = append(kvs, k, v)
	}

	if ent.Level >= zapcore.ErrorLevel {
		c.logger.Error(nil, ent.Message, kvs...)
	} else {
		c.logger.Info(ent.Message, kvs...)
	}
	return nil
}

func (c *logrCore) Sync() error { return nil }

// FromLogr builds a Logger backed by an externally supplied logr.Logger
// instead of a zap encoder/writer pair.
func FromLogr(l logr.Logger) *Logger {
	core := newLogrCore(l, zapcore.DebugLevel)
	return &Logger{base: zap.New(core)}
}
