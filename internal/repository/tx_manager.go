package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
)

// Compile-time check
var _ interfaces.TxManager = (*pgxTxManager)(nil)

type pgxTxManager struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgxTxManager создает новый помощник транзакций.
func NewPgxTxManager(db *pgxpool.Pool, logger *zap.Logger) interfaces.TxManager {
	return &pgxTxManager{
		db:     db,
		logger: logger.Named("TxManager"),
	}
}

// WithTransaction выполняет функцию в транзакции с автоматическим rollback при ошибке.
func (m *pgxTxManager) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx interfaces.DBTX) error,
) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				m.logger.Error("Failed to rollback transaction after panic",
					zap.Error(rollbackErr),
					zap.Any("panic", p))
			}
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			m.logger.Error("Failed to rollback transaction",
				zap.Error(rollbackErr),
				zap.NamedError("original_error", err))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
