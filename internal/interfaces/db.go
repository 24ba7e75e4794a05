package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - минимальный контракт исполнителя запросов pgx. Ему удовлетворяют
// и *pgxpool.Pool, и pgx.Tx, поэтому один метод репозитория работает как
// вне, так и внутри транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager выполняет функцию внутри одной транзакции с единственной
// границей commit/rollback. Каскадные мутации графа обязаны проходить
// через него.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}
