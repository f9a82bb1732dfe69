package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Querier is the subset of *sql.DB and *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type afterCommitKey struct{}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db
}

// InTx reports whether ctx already carries a transaction.
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok && tx != nil
}

// AfterCommit defers fn until the transaction carried by ctx commits. It is
// dropped on rollback. Without a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	hooks, ok := ctx.Value(afterCommitKey{}).(*[]func())
	if !ok || hooks == nil {
		fn()
		return
	}
	*hooks = append(*hooks, fn)
}

// Transactor runs functions inside a database transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlTransactor struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTransactor(db *sql.DB, l *zap.Logger) Transactor {
	return &sqlTransactor{db: db, logger: l}
}

// RunInTx commits when fn returns nil and rolls back otherwise.
// A context that already carries a transaction joins it.
func (t *sqlTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		t.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var hooks []func()
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("Panic during transaction, rolling back", zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				t.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
		} else {
			if err = tx.Commit(); err != nil {
				t.logger.Error("Failed to commit transaction", zap.Error(err))
				err = fmt.Errorf("failed to commit transaction: %w", err)
				return
			}
			for _, hook := range hooks {
				hook()
			}
		}
	}()

	txCtx := context.WithValue(ctx, txKey{}, tx)
	txCtx = context.WithValue(txCtx, afterCommitKey{}, &hooks)
	err = fn(txCtx)
	return err
}
