// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
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

	"github.com/mmeshcher/cleanbook/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrBookingNotFound возвращается, если бронирование не найдено.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingRejected возвращается, если база отвергла данные бронирования.
	ErrBookingRejected = errors.New("booking rejected")
)

// RejectedError описывает нарушенное ограничение таблицы бронирований.
type RejectedError struct {
	Constraint string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("booking rejected by constraint %q", e.Constraint)
}

// Is реализует сопоставление с ErrBookingRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrBookingRejected
}

// UserMessage возвращает текст ошибки для пользователя.
func (e *RejectedError) UserMessage() string {
	return "Some of your booking details were not accepted. Please review them and try again."
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
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

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

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

// withRetry повторяет операцию при временных ошибках. Повторять безопасно только
// идемпотентные операции: вставка бронирования идёт по ключу, созданному клиентом.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста, выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// classifyInsertError превращает нарушения ограничений в RejectedError.
func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation:
			return &RejectedError{Constraint: pgErr.ConstraintName}
		}
	}
	return fmt.Errorf("insert booking: %w", err)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность базы.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateBooking сохраняет бронирование и возвращает его идентификатор.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b model.Booking) (string, error) {
	adjustments := b.Pricing.Adjustments
	if adjustments == nil {
		adjustments = []model.Adjustment{}
	}
	adjJSON, err := json.Marshal(adjustments)
	if err != nil {
		return "", fmt.Errorf("encode adjustments: %w", err)
	}

	err = r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO bookings (
				id, clean_type, beds, baths, cleanliness, kids, pets,
				subtotal_cents, adjustments, total_cents,
				contact_name, contact_email, contact_phone, address, postal_code,
				scheduled_date, arrival_window, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (id) DO NOTHING`,
			b.ID, string(b.CleanType), b.Beds, b.Baths, int(b.Cleanliness), b.Kids, b.Pets,
			b.Pricing.SubtotalCents, string(adjJSON), b.Pricing.TotalCents,
			b.Contact.Name, b.Contact.Email, b.Contact.Phone, b.Contact.Address, b.Contact.PostalCode,
			b.Schedule.Date, b.Schedule.ArrivalWindow, b.Schedule.Notes, b.CreatedAt,
		)
		return err
	})
	if err != nil {
		return "", classifyInsertError(err)
	}

	return b.ID, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id::text, clean_type, beds, baths, cleanliness, kids, pets,
		        subtotal_cents, adjustments, total_cents,
		        contact_name, contact_email, contact_phone, address, postal_code,
		        scheduled_date, arrival_window, notes, created_at
		 FROM bookings
		 WHERE id = $1`,
		id,
	)

	var (
		b           model.Booking
		cleanType   string
		cleanliness int
		adjJSON     []byte
	)
	err := row.Scan(
		&b.ID, &cleanType, &b.Beds, &b.Baths, &cleanliness, &b.Kids, &b.Pets,
		&b.Pricing.SubtotalCents, &adjJSON, &b.Pricing.TotalCents,
		&b.Contact.Name, &b.Contact.Email, &b.Contact.Phone, &b.Contact.Address, &b.Contact.PostalCode,
		&b.Schedule.Date, &b.Schedule.ArrivalWindow, &b.Schedule.Notes, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	b.CleanType = model.CleanType(cleanType)
	b.Cleanliness = model.Cleanliness(cleanliness)
	if err := json.Unmarshal(adjJSON, &b.Pricing.Adjustments); err != nil {
		return nil, fmt.Errorf("decode adjustments: %w", err)
	}

	return &b, nil
}
