package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Rebind(query string) string
}

// Transaction is a struct that wraps the sqlx.Tx struct and provides additional functionality
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:       tx,
		logger:   logger,
		isClosed: false,
	}
}

// TxFromContext returns the open transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey).(Tx)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

// GetTx joins the transaction carried by ctx or begins a new one. The returned
// bool reports whether the caller owns the transaction and must finish it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, bool, error) {
	if ctxTx, ok := TxFromContext(ctx); ok {
		return ctx, ctxTx, false, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, false, fmt.Errorf("error while beginning transaction")
	}

	newTx := NewTx(tx, logger)
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, true, nil
}

// WithTx runs fn inside a transaction. When ctx already carries one, fn joins it
// and the outermost caller decides the outcome.
func WithTx(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) (err error) {
	txCtx, tx, owned, err := GetTx(ctx, logger, db, nil)
	if err != nil {
		return err
	}
	if !owned {
		return fn(txCtx)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(txCtx)
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit(txCtx)
}

// WithSavepoint runs fn inside the transaction carried by ctx behind a
// savepoint, so fn's error undoes only its own writes and leaves the outer
// transaction usable. Without a transaction it behaves as WithTx.
func WithSavepoint(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return WithTx(ctx, logger, db, fn)
	}

	name := "sp_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to create savepoint")
		return fmt.Errorf("error while creating savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).Error("Failed to roll back to savepoint")
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to release savepoint")
		return fmt.Errorf("error while releasing savepoint: %w", err)
	}
	return nil
}

// Conn returns the transaction carried by ctx, falling back to db.
func Conn(ctx context.Context, db DB) Executor {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	err := t.Tx.Rollback()
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	err := t.Tx.Commit()
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true

	return nil
}
