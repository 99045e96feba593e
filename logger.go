package orm

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type queryLogger struct {
	log    *zap.Logger
	query  bool
	params bool
}

func newQueryLogger(log *zap.Logger, flags []DebugFlag) queryLogger {
	return queryLogger{
		log:    log,
		query:  lo.Contains(flags, DebugQuery),
		params: lo.Contains(flags, DebugQueryParams),
	}
}

func (l queryLogger) logQuery(query string, args []any, start time.Time, err error) {
	if !l.query {
		return
	}

	fields := []zap.Field{zap.String("sql", query), zap.Duration("took", time.Since(start))}
	if l.params {
		fields = append(fields, zap.Any("params", args))
	}
	if err != nil {
		l.log.Warn("query failed", append(fields, zap.Error(err))...)
		return
	}
	l.log.Info("query", fields...)
}

// loggingRunner wraps a *sql.DB or *sql.Tx and logs every statement squirrel
// runs through it.
type loggingRunner struct {
	runner squirrel.StdSqlCtx
	log    queryLogger
}

var _ squirrel.StdSqlCtx = (*loggingRunner)(nil)

func (r *loggingRunner) Exec(query string, args ...any) (sql.Result, error) {
	return r.ExecContext(context.Background(), query, args...)
}

func (r *loggingRunner) Query(query string, args ...any) (*sql.Rows, error) {
	return r.QueryContext(context.Background(), query, args...)
}

func (r *loggingRunner) QueryRow(query string, args ...any) *sql.Row {
	return r.QueryRowContext(context.Background(), query, args...)
}

func (r *loggingRunner) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := r.runner.ExecContext(ctx, query, args...)
	r.log.logQuery(query, args, start, err)
	return res, err //nolint:wrapcheck // thin wrapper
}

func (r *loggingRunner) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := r.runner.QueryContext(ctx, query, args...)
	r.log.logQuery(query, args, start, err)
	return rows, err //nolint:wrapcheck // thin wrapper
}

func (r *loggingRunner) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := r.runner.QueryRowContext(ctx, query, args...)
	r.log.logQuery(query, args, start, row.Err())
	return row
}
