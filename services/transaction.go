package services

import (
	"context"

	"github.com/upb/sqlpilot/repositories"
)

// WithTransaction runs fn inside one database transaction. The ctx given to
// fn carries the transaction, so repository calls made with it join it.
// Commits on success, rolls back everything on error.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	return txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		return fn(txCtx)
	})
}

// WithTransactionResult is WithTransaction for functions returning a value.
// The zero value is returned when the transaction rolls back.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		var err error
		result, err = fn(txCtx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
