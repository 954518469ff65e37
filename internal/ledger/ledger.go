package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/BTCPredictor/models"
)

// Ledger is the ordered history of predictions with accuracy statistics.
// Writers hold an exclusive lock, so readers see either the state before or after a
// write batch started with Do, never a partial one.
type Ledger struct {
	mu     sync.RWMutex
	store  Store
	loc    *time.Location
	logger zerolog.Logger
}

// New creates a ledger over store. Calendar days are evaluated in loc (time.Local if nil).
func New(store Store, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		store:  store,
		loc:    loc,
		logger: log.With().Str("component", "ledger").Logger(),
	}
}

// Tx exposes ledger writes inside Do. It must not be used after Do returns.
type Tx struct {
	l *Ledger
}

func (tx *Tx) Append(ctx context.Context, rec models.PredictionRecord) error {
	return tx.l.append(ctx, rec)
}

func (tx *Tx) MostRecent(ctx context.Context) (*models.PredictionRecord, error) {
	return tx.l.store.Latest(ctx)
}

func (tx *Tx) UpdateOutcome(ctx context.Context, id string, modelOutcome, randomOutcome models.Outcome) error {
	return tx.l.updateOutcome(ctx, id, modelOutcome, randomOutcome)
}

// Do runs fn while holding the write lock.
// Writes made by fn are not rolled back if fn fails.
func (l *Ledger) Do(ctx context.Context, fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&Tx{l: l})
}

// Append adds a new record
func (l *Ledger) Append(ctx context.Context, rec models.PredictionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(ctx, rec)
}

// MostRecent returns the record with the latest date, or nil
func (l *Ledger) MostRecent(ctx context.Context) (*models.PredictionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Latest(ctx)
}

// UpdateOutcome sets both outcomes of an unevaluated record
func (l *Ledger) UpdateOutcome(ctx context.Context, id string, modelOutcome, randomOutcome models.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateOutcome(ctx, id, modelOutcome, randomOutcome)
}

// List returns all records, most recent first
func (l *Ledger) List(ctx context.Context) ([]models.PredictionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.List(ctx)
}

// Accuracy computes correctness for the selected score
func (l *Ledger) Accuracy(ctx context.Context, sel models.Selector) (models.Accuracy, error) {
	records, err := l.List(ctx)
	if err != nil {
		return models.Accuracy{}, err
	}
	return ComputeAccuracy(records, sel), nil
}

// MostAccurate compares model and random accuracy
func (l *Ledger) MostAccurate(ctx context.Context) (models.Winner, error) {
	s, err := l.Status(ctx)
	if err != nil {
		return "", err
	}
	return s.MostAccurate, nil
}

// Status computes both accuracies and the winner from a single consistent read
func (l *Ledger) Status(ctx context.Context) (models.Status, error) {
	records, err := l.List(ctx)
	if err != nil {
		return models.Status{}, err
	}
	return StatusOf(records), nil
}

func (l *Ledger) append(ctx context.Context, rec models.PredictionRecord) error {
	records, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	for _, r := range records {
		if models.SameDay(r.Date, rec.Date, l.loc) {
			l.logger.Error().Str("id", rec.ID).Str("existing_id", r.ID).
				Time("date", rec.Date).Msg("Refusing second prediction for the same day")
			return fmt.Errorf("append %s: %w", rec.ID, ErrDuplicateDay)
		}
	}

	if err := l.store.Insert(ctx, DayKey(rec.Date, l.loc), rec); err != nil {
		if errors.Is(err, ErrDuplicateDay) {
			l.logger.Error().Err(err).Str("id", rec.ID).Time("date", rec.Date).
				Msg("Store rejected second prediction for the same day")
		}
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// DayKey is the calendar day of t in loc, formatted YYYY-MM-DD
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func (l *Ledger) updateOutcome(ctx context.Context, id string, modelOutcome, randomOutcome models.Outcome) error {
	if !modelOutcome.Evaluated() || !randomOutcome.Evaluated() {
		return fmt.Errorf("update %s: %w", id, ErrInvalidOutcome)
	}

	rec, err := l.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if rec.ModelOutcome.Evaluated() || rec.RandomOutcome.Evaluated() {
		l.logger.Error().Str("id", id).Msg("Refusing to re-evaluate prediction")
		return fmt.Errorf("update %s: %w", id, ErrAlreadyEvaluated)
	}

	if err := l.store.UpdateOutcome(ctx, id, modelOutcome, randomOutcome); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// ComputeAccuracy counts evaluated and correct outcomes. Ratio is 0 when nothing is evaluated.
func ComputeAccuracy(records []models.PredictionRecord, sel models.Selector) models.Accuracy {
	var acc models.Accuracy
	for _, r := range records {
		o := r.OutcomeFor(sel)
		if !o.Evaluated() {
			continue
		}
		acc.Total++
		if o == models.Correct {
			acc.Correct++
		}
	}
	if acc.Total > 0 {
		acc.Ratio = float64(acc.Correct) / float64(acc.Total)
	}
	return acc
}

// Compare returns the selector with the higher ratio, or a tie on exact equality
func Compare(model, random models.Accuracy) models.Winner {
	switch {
	case model.Ratio == random.Ratio:
		return models.WinnerTie
	case model.Ratio > random.Ratio:
		return models.WinnerModel
	default:
		return models.WinnerRandom
	}
}

// StatusOf summarises a record list ordered most recent first
func StatusOf(records []models.PredictionRecord) models.Status {
	s := models.Status{
		ModelAccuracy:  ComputeAccuracy(records, models.SelectModel),
		RandomAccuracy: ComputeAccuracy(records, models.SelectRandom),
	}
	s.MostAccurate = Compare(s.ModelAccuracy, s.RandomAccuracy)
	if len(records) > 0 {
		latest := records[0]
		s.Latest = &latest
	}
	return s
}
