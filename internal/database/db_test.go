package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/BTCPredictor/internal/ledger"
	"github.com/Alias1177/BTCPredictor/models"
)

var columns = []string{"id", "created_at", "price", "model_score", "random_score", "model_correct", "random_correct"}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB), mock
}

func TestCreateTables(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS predictions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS predictions_created_at_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS predictions_day_key").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.CreateTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO predictions").
		WithArgs("id-1", date, "2025-08-03", 100.0, 0.7, 0.2, sql.NullBool{}, sql.NullBool{}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := db.Insert(context.Background(), "2025-08-03", models.PredictionRecord{
		ID: "id-1", Date: date, Price: 100, ModelScore: 0.7, RandomScore: 0.2,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSameDayRejectedByIndex(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO predictions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "predictions_day_key"})

	err := db.Insert(context.Background(), "2025-08-03", models.PredictionRecord{ID: "id-2", Date: date})
	assert.ErrorIs(t, err, ledger.ErrDuplicateDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateIDIsNotDuplicateDay(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO predictions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "predictions_pkey"})

	err := db.Insert(context.Background(), "2025-08-03", models.PredictionRecord{ID: "id-1", Date: date})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrDuplicateDay)
}

// Another process inserted today's record after this ledger listed the table.
func TestLedgerOverPostgresLosesInsertRace(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)
	l := ledger.New(db, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM predictions ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectExec("INSERT INTO predictions").
		WithArgs("id-2", date, "2025-08-03", 0.0, 0.0, 0.0, sql.NullBool{}, sql.NullBool{}).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "predictions_day_key"})

	err := l.Append(context.Background(), models.PredictionRecord{ID: "id-2", Date: date})
	assert.ErrorIs(t, err, ledger.ErrDuplicateDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOutcome(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("UPDATE predictions").
		WithArgs(sql.NullBool{Bool: true, Valid: true}, sql.NullBool{Bool: false, Valid: true}, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateOutcome(context.Background(), "id-1", models.Correct, models.Incorrect))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOutcomeAlreadyEvaluated(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE predictions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM predictions WHERE id").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id-1", date, 100.0, 0.7, 0.2, true, false))

	err := db.UpdateOutcome(context.Background(), "id-1", models.Correct, models.Incorrect)
	assert.ErrorIs(t, err, ledger.ErrAlreadyEvaluated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOutcomeMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("UPDATE predictions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM predictions WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(columns))

	err := db.UpdateOutcome(context.Background(), "nope", models.Correct, models.Incorrect)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLatest(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM predictions ORDER BY created_at DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id-2", date, 120.0, 0.4, 0.9, nil, nil))

	rec, err := db.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "id-2", rec.ID)
	assert.Equal(t, 120.0, rec.Price)
	assert.Equal(t, models.Unevaluated, rec.ModelOutcome)
	assert.Equal(t, models.Unevaluated, rec.RandomOutcome)
}

func TestLatestEmpty(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM predictions ORDER BY created_at DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(columns))

	rec, err := db.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestList(t *testing.T) {
	db, mock := newMock(t)
	d2 := time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)
	d1 := d2.AddDate(0, 0, -1)

	mock.ExpectQuery("SELECT (.+) FROM predictions ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id-2", d2, 120.0, 0.4, 0.9, nil, nil).
			AddRow("id-1", d1, 100.0, 0.7, 0.2, true, false))

	records, err := db.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id-2", records[0].ID)
	assert.Equal(t, models.Correct, records[1].ModelOutcome)
	assert.Equal(t, models.Incorrect, records[1].RandomOutcome)
}

func TestLedgerOverPostgres(t *testing.T) {
	db, mock := newMock(t)
	date := time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)
	l := ledger.New(db, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM predictions ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id-1", date, 100.0, 0.7, 0.2, nil, nil))

	err := l.Append(context.Background(), models.PredictionRecord{ID: "id-2", Date: date.Add(3 * time.Hour)})
	assert.ErrorIs(t, err, ledger.ErrDuplicateDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}
