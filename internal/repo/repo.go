package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"attendly/internal/model"
)

var (
	ErrSessionFull           = errors.New("session is full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrRegistrationNotFound  = errors.New("registration not found")
)

const uniqueViolation = "23505"

type Repository interface {
	CountActive(ctx context.Context, attendDate string) (int, error)
	ApplyTx(ctx context.Context, reg *model.Registration, capacity int) (int64, error)
	FindActive(ctx context.Context, sid, attendDate string) (*model.Registration, error)
	CancelTx(ctx context.Context, aid int64) error
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) CountActive(ctx context.Context, attendDate string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM apply
		WHERE attend_date = $1 AND canceled = FALSE
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, attendDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	return count, nil
}

// ApplyTx runs the capacity check, the duplicate check, and the insert
// in one transaction. Concurrent applies for the same date serialize on
// an advisory lock keyed by the date, so the capacity count cannot be
// read stale by two inserts at once; the partial unique index on
// (sid, attend_date) backs the duplicate check as well.
func (r *repository) ApplyTx(ctx context.Context, reg *model.Registration, capacity int) (int64, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, reg.AttendDate); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to acquire session lock: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM apply
		WHERE attend_date = $1 AND canceled = FALSE
	`, reg.AttendDate).Scan(&count)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	if count >= capacity {
		_ = tx.Rollback()
		return 0, ErrSessionFull
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM apply
		WHERE sid = $1 AND attend_date = $2 AND canceled = FALSE
	`, reg.StudentID, reg.AttendDate).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return 0, ErrDuplicateRegistration
	}

	var aid int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO apply (sname, sid, attend_date, apply_timestamp, secret, canceled)
		VALUES ($1, $2, $3, NOW(), $4, FALSE)
		RETURNING aid
	`, reg.StudentName, reg.StudentID, reg.AttendDate, reg.SecretHash).Scan(&aid)
	if err != nil {
		_ = tx.Rollback()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return 0, ErrDuplicateRegistration
		}
		return 0, fmt.Errorf("failed to create registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return aid, nil
}

func (r *repository) FindActive(ctx context.Context, sid, attendDate string) (*model.Registration, error) {
	query := `
		SELECT aid, sname, sid, attend_date::text, apply_timestamp, secret, canceled
		FROM apply
		WHERE sid = $1 AND attend_date = $2 AND canceled = FALSE
	`
	row := r.db.QueryRowContext(ctx, query, sid, attendDate)

	var reg model.Registration
	if err := row.Scan(
		&reg.AID,
		&reg.StudentName,
		&reg.StudentID,
		&reg.AttendDate,
		&reg.AppliedAt,
		&reg.SecretHash,
		&reg.Canceled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to look up registration: %w", err)
	}

	return &reg, nil
}

// CancelTx flips canceled on one row, guarded by FOR UPDATE so a
// concurrent cancel of the same aid sees the flag already set. Canceled
// is terminal; there is no path back to active.
func (r *repository) CancelTx(ctx context.Context, aid int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var canceled bool
	err = tx.QueryRowContext(ctx, `
		SELECT canceled
		FROM apply
		WHERE aid = $1
		FOR UPDATE
	`, aid).Scan(&canceled)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to select registration for cancellation: %w", err)
	}

	if canceled {
		_ = tx.Rollback()
		return ErrRegistrationNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE apply
		SET canceled = TRUE
		WHERE aid = $1
	`, aid); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to cancel registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation transaction: %w", err)
	}

	return nil
}
