package orm

import (
	"context"

	"go.uber.org/zap"
)

// Collect runs q and scans every row into a new T. A failure to close the rows
// is logged to log.
func Collect[T any](ctx context.Context, log *zap.Logger, q Q, scans RowScan[T]) ([]*T, error) {
	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("Collect: failed to close rows", zap.Error(err))
		}
	}()

	var collection []*T
	for rows.Next() {
		t := new(T)
		pointers, actions := scans(t)
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		actions()
		collection = append(collection, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return collection, nil
}
