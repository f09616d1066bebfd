package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/alex65536/statboard/internal/util/slogx"
	"github.com/mattn/go-colorable"
	"gorm.io/gorm/logger"
)

type slogLogger struct {
	log   *slog.Logger
	slow  time.Duration
	level logger.LogLevel
}

// Logger adapts gorm logging to slog. Only failed and slow queries are reported. In debug mode,
// every query is printed by the gorm's own colorful logger.
func Logger(srcLog *slog.Logger, o Options) logger.Interface {
	if o.Debug {
		return logger.New(
			log.New(colorable.NewColorableStderr(), "", log.LstdFlags),
			logger.Config{
				SlowThreshold: o.SlowThreshold,
				LogLevel:      logger.Info,
				Colorful:      true,
			},
		)
	}
	return &slogLogger{
		log:   srcLog.With(slog.String("component", "gorm")),
		slow:  o.SlowThreshold,
		level: logger.Warn,
	}
}

func (l *slogLogger) LogMode(level logger.LogLevel) logger.Interface {
	res := *l
	res.level = level
	return &res
}

func (l *slogLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && !isDuplicate(err):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "sql error",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
			slogx.Err(err),
		)
	case l.slow > 0 && elapsed > l.slow:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow sql",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
		)
	}
}
