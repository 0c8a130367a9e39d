// Package repository содержит реализации хранилища клиентов и заказов:
// PostgreSQL, in-memory и SQLite со снимками состояния.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrClientNotFound возвращается, если клиент с указанным идентификатором не найден.
	ErrClientNotFound = errors.New("client not found")
	// ErrOrderNotFound возвращается, если заказ с указанным идентификатором не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateEmail возвращается, если email уже занят другим клиентом.
	ErrDuplicateEmail = errors.New("client with this email already exists")
	// ErrDuplicateOrderNumber возвращается при коллизии номера заказа.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	// ErrClientHasOrders возвращается при попытке удалить клиента, у которого есть заказы.
	ErrClientHasOrders = errors.New("client has orders")
	// ErrStorage оборачивает непредвиденные ошибки хранилища.
	ErrStorage = errors.New("storage failure")
)

var domainErrors = []error{
	ErrClientNotFound,
	ErrOrderNotFound,
	ErrDuplicateEmail,
	ErrDuplicateOrderNumber,
	ErrClientHasOrders,
	ErrStorage,
}

// storageError оставляет доменные ошибки как есть, а остальные оборачивает в ErrStorage.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

const (
	retryAttempts = 3
	retryBase     = 200 * time.Millisecond
)

// withRetry повторяет fn ограниченное число раз при временных ошибках хранилища.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Ошибки контекста не повторяем
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// errCommitUnconfirmed означает, что COMMIT отправлен, но ответ сервера не получен.
// Транзакция могла примениться, поэтому повторять её нельзя.
var errCommitUnconfirmed = errors.New("commit outcome unknown")

// commitTx фиксирует транзакцию. Ответ сервера с ошибкой означает откат, обрыв связи оставляет исход неизвестным.
func commitTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Commit(ctx)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("commit tx: %w", err)
	}
	return fmt.Errorf("%w: %w", errCommitUnconfirmed, err)
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	if errors.Is(err, errCommitUnconfirmed) {
		return false
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
