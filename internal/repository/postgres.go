// Package repository содержит реализацию леджера партнёрской программы в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/partner-ledger/internal/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrPartnerNotFound возвращается, если партнёр не найден.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrPartnerExists возвращается, если у пользователя уже есть партнёрский аккаунт.
	ErrPartnerExists = errors.New("partner already exists for user")
	// ErrCodeTaken возвращается при коллизии партнёрского кода или кода погашения.
	ErrCodeTaken = errors.New("code already issued")
	// ErrInsufficientBalance возвращается при попытке вывода суммы, превышающей доступный баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrCommissionNotFound возвращается, если начисление не найдено.
	ErrCommissionNotFound = errors.New("commission not found")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrInvalidTransition возвращается при недопустимой смене статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyConfirmed сообщает, что начисление уже подтверждено другим запуском.
	ErrAlreadyConfirmed = errors.New("commission already settled")
)

// InsufficientBalanceError содержит запрошенную и доступную суммы в копейках.
type InsufficientBalanceError struct {
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d", e.Available, e.Requested)
}

// Is позволяет сравнивать ошибку с ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// PostgresRepository предоставляет доступ к леджеру в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// inTx выполняет fn в транзакции и повторяет её при конфликте сериализации, взаимоблокировке
// или обрыве соединения. fn должна быть идемпотентной по отношению к захваченным переменным.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.pool, fn)
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func checkViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}

// emit записывает доменное событие в исходящую таблицу в рамках транзакции tx.
func emit(ctx context.Context, tx pgx.Tx, kind events.Kind, partnerID int64, payload any) error {
	e, err := events.New(kind, partnerID, payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_events (id, kind, partner_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID.String(), string(e.Kind), e.PartnerID, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", kind, err)
	}
	return nil
}
