package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// slowQuery is the threshold above which a statement is logged at Warn.
const slowQuery = 200 * time.Millisecond

// GormLogger routes gorm's logging into zap.
type GormLogger struct {
	logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

func NewGormLogger(logger *zap.Logger) *GormLogger {
	return &GormLogger{logger: logger.Named("gorm"), LogLevel: gormlogger.Warn}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.LogLevel = level
	return &c
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs each statement: errors at Error, slow ones at Warn, the rest at Debug.
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed)}

	switch {
	case err != nil && l.LogLevel >= gormlogger.Error && !isNotFound(err):
		l.logger.Error("SQL execution failed", append(fields, zap.Error(err))...)
	case elapsed > slowQuery && l.LogLevel >= gormlogger.Warn:
		l.logger.Warn("Slow SQL", fields...)
	case l.LogLevel >= gormlogger.Info:
		l.logger.Debug("SQL executed", fields...)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gormlogger.ErrRecordNotFound)
}
