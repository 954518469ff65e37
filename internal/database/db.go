package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Alias1177/BTCPredictor/internal/ledger"
	"github.com/Alias1177/BTCPredictor/models"
)

// DB is a PostgreSQL-backed ledger store
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New opens a PostgreSQL connection and creates the predictions table if needed.
// The caller must import the lib/pq driver.
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &DB{db}
	if err := store.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Wrap uses an already opened connection
func Wrap(db *sql.DB) *DB {
	return &DB{db}
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS predictions (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			day DATE NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			model_score DOUBLE PRECISION NOT NULL,
			random_score DOUBLE PRECISION NOT NULL,
			model_correct BOOLEAN,
			random_correct BOOLEAN
		)
	`)
	if err != nil {
		return fmt.Errorf("creating predictions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS predictions_created_at_idx ON predictions (created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("creating predictions index: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS `+dayConstraint+` ON predictions (day)
	`)
	if err != nil {
		return fmt.Errorf("creating predictions day index: %w", err)
	}
	return nil
}

const (
	selectColumns = `id, created_at, price, model_score, random_score, model_correct, random_correct`

	dayConstraint   = "predictions_day_key"
	uniqueViolation = "23505"
)

// Insert stores a new prediction. The unique day index makes a second insert for
// the same day fail with ledger.ErrDuplicateDay, whichever process attempts it.
func (db *DB) Insert(ctx context.Context, day string, rec models.PredictionRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO predictions (id, created_at, day, price, model_score, random_score, model_correct, random_correct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID, rec.Date, day, rec.Price, rec.ModelScore, rec.RandomScore,
		toNullBool(rec.ModelOutcome), toNullBool(rec.RandomOutcome))

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == dayConstraint {
		return fmt.Errorf("insert %s for %s: %w", rec.ID, day, ledger.ErrDuplicateDay)
	}
	return err
}

// UpdateOutcome records both outcomes once; evaluated rows are left untouched
func (db *DB) UpdateOutcome(ctx context.Context, id string, modelOutcome, randomOutcome models.Outcome) error {
	res, err := db.ExecContext(ctx, `
		UPDATE predictions
		SET model_correct = $1, random_correct = $2
		WHERE id = $3 AND model_correct IS NULL AND random_correct IS NULL
	`, toNullBool(modelOutcome), toNullBool(randomOutcome), id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := db.Get(ctx, id); err != nil {
		return err
	}
	return ledger.ErrAlreadyEvaluated
}

// Get retrieves a prediction by id
func (db *DB) Get(ctx context.Context, id string) (*models.PredictionRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM predictions
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Latest retrieves the most recent prediction, or nil if there is none
func (db *DB) Latest(ctx context.Context) (*models.PredictionRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM predictions
		ORDER BY created_at DESC
		LIMIT 1
	`)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves all predictions, most recent first
func (db *DB) List(ctx context.Context) ([]models.PredictionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM predictions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.PredictionRecord, error) {
	var rec models.PredictionRecord
	var modelCorrect, randomCorrect sql.NullBool

	if err := s.Scan(
		&rec.ID, &rec.Date, &rec.Price, &rec.ModelScore, &rec.RandomScore,
		&modelCorrect, &randomCorrect,
	); err != nil {
		return nil, err
	}

	rec.ModelOutcome = fromNullBool(modelCorrect)
	rec.RandomOutcome = fromNullBool(randomCorrect)
	return &rec, nil
}

func toNullBool(o models.Outcome) sql.NullBool {
	switch o {
	case models.Correct:
		return sql.NullBool{Bool: true, Valid: true}
	case models.Incorrect:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func fromNullBool(b sql.NullBool) models.Outcome {
	if !b.Valid {
		return models.Unevaluated
	}
	if b.Bool {
		return models.Correct
	}
	return models.Incorrect
}
