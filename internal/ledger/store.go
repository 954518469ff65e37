package ledger

import (
	"context"
	"errors"

	"github.com/Alias1177/BTCPredictor/models"
)

var (
	ErrDuplicateDay     = errors.New("a prediction already exists for this day")
	ErrAlreadyEvaluated = errors.New("prediction already evaluated")
	ErrNotFound         = errors.New("prediction not found")
	ErrInvalidOutcome   = errors.New("outcome must be correct or incorrect")
)

// Store is durable keyed storage for prediction records.
// Insert receives the record's calendar day as YYYY-MM-DD and must fail with
// ErrDuplicateDay when a record for that day exists, atomically with the write.
// List returns records sorted by date, most recent first.
// Latest returns nil when the store is empty.
type Store interface {
	Insert(ctx context.Context, day string, rec models.PredictionRecord) error
	UpdateOutcome(ctx context.Context, id string, modelOutcome, randomOutcome models.Outcome) error
	Get(ctx context.Context, id string) (*models.PredictionRecord, error)
	Latest(ctx context.Context) (*models.PredictionRecord, error)
	List(ctx context.Context) ([]models.PredictionRecord, error)
}
