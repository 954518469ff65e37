package cycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/BTCPredictor/internal/features"
	"github.com/Alias1177/BTCPredictor/internal/gate"
	"github.com/Alias1177/BTCPredictor/internal/ledger"
	"github.com/Alias1177/BTCPredictor/internal/outcome"
	"github.com/Alias1177/BTCPredictor/internal/verdict"
	"github.com/Alias1177/BTCPredictor/models"
)

var (
	ErrNoData          = errors.New("no market data available")
	ErrAlreadyRanToday = errors.New("prediction has already been run for today")
	ErrScoring         = errors.New("scoring model failed")
)

// Cycle results used for metrics labels
const (
	ResultOK          = "ok"
	ResultNoData      = "no_data"
	ResultAlreadyRan  = "already_ran"
	ResultScoringFail = "scoring_error"
	ResultError       = "error"
)

// Metrics receives cycle telemetry
type Metrics interface {
	RecordCycle(result string)
	RecordFetch(seconds float64)
	RecordPrice(price float64)
	RecordAccuracy(model, random models.Accuracy)
}

// Options configures a Runner. Source, Scorer and Ledger are required.
type Options struct {
	Source   models.MarketDataSource
	Scorer   models.Scorer
	Ledger   *ledger.Ledger
	Location *time.Location
	Epoch    time.Time // zero means features.DefaultEpoch

	Clock   func() time.Time
	Random  func() float64 // uniform in [0,1)
	NewID   func() string
	Metrics Metrics
}

// Runner executes prediction cycles one at a time
type Runner struct {
	mu      sync.Mutex
	source  models.MarketDataSource
	scorer  models.Scorer
	ledger  *ledger.Ledger
	deriver *features.Deriver
	loc     *time.Location
	clock   func() time.Time
	random  func() float64
	newID   func() string
	metrics Metrics
	logger  zerolog.Logger
}

// New creates a Runner
func New(opts Options) *Runner {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Random == nil {
		opts.Random = rand.Float64
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	deriver := features.NewDeriver(opts.Location)
	if !opts.Epoch.IsZero() {
		deriver.Epoch = opts.Epoch
	}

	return &Runner{
		source:  opts.Source,
		scorer:  opts.Scorer,
		ledger:  opts.Ledger,
		deriver: deriver,
		loc:     opts.Location,
		clock:   opts.Clock,
		random:  opts.Random,
		newID:   opts.NewID,
		metrics: opts.Metrics,
		logger:  log.With().Str("component", "cycle").Logger(),
	}
}

// Run performs one prediction cycle: fetch, gate, close out the previous prediction,
// derive features, score and record. A close-out stays in the ledger even if a later
// step fails.
func (r *Runner) Run(ctx context.Context) (*models.CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Market data unavailable")
		r.metrics.RecordCycle(ResultNoData)
		return nil, err
	}

	now := r.clock().In(r.loc)
	result := &models.CycleResult{}

	err = r.ledger.Do(ctx, func(tx *ledger.Tx) error {
		last, err := tx.MostRecent(ctx)
		if err != nil {
			return fmt.Errorf("reading latest prediction: %w", err)
		}

		var lastDate *time.Time
		if last != nil {
			lastDate = &last.Date
		}
		if !gate.CanRun(lastDate, now) {
			return ErrAlreadyRanToday
		}

		if last != nil {
			closed, err := r.closeOut(ctx, tx, *last, snap.CurrentPrice)
			if err != nil {
				return err
			}
			result.ClosedOut = closed
		}

		feats := r.deriver.Derive(*snap, now)
		r.logger.Debug().
			Int("date", feats.DayIndex).
			Float64("price", feats.Price).
			Float64("volume", feats.Volume).
			Float64("change_vs_yesterday", feats.PctChange24hFrac).
			Float64("change_7d", feats.PctChange7dFrac).
			Float64("ath", snap.AllTimeHigh).
			Int("is_ath", feats.IsATH).
			Int("growth_7d", feats.GrowthSign7d).
			Msg("Derived features")
		result.Features = feats

		score, err := r.scorer.Score(ctx, feats)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrScoring, err)
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return fmt.Errorf("%w: non-finite score %v", ErrScoring, score)
		}

		rec := models.PredictionRecord{
			ID:          r.newID(),
			Date:        now,
			Price:       snap.CurrentPrice,
			ModelScore:  score,
			RandomScore: r.random(),
		}
		if err := tx.Append(ctx, rec); err != nil {
			return fmt.Errorf("recording prediction: %w", err)
		}
		result.Record = rec
		return nil
	})
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.logger.Info().
		Str("id", result.Record.ID).
		Float64("price", result.Record.Price).
		Float64("score", result.Record.ModelScore).
		Float64("random", result.Record.RandomScore).
		Msg("Recorded prediction")

	// The record is stored from here on, so the cycle succeeded even if the summary
	// below cannot be computed.
	r.metrics.RecordCycle(ResultOK)
	r.metrics.RecordPrice(result.Record.Price)

	// Score is finite here, so Classify only clamps.
	result.Verdict, _ = verdict.Classify(result.Record.ModelScore)

	status, err := r.ledger.Status(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str("id", result.Record.ID).Msg("Prediction recorded but accuracy could not be read")
		return result, nil
	}
	result.ModelAccuracy = status.ModelAccuracy
	result.RandomAccuracy = status.RandomAccuracy
	result.MostAccurate = status.MostAccurate

	r.metrics.RecordAccuracy(status.ModelAccuracy, status.RandomAccuracy)
	return result, nil
}

// Status returns the accuracy summary without running a cycle
func (r *Runner) Status(ctx context.Context) (models.Status, error) {
	return r.ledger.Status(ctx)
}

func (r *Runner) fetch(ctx context.Context) (*models.MarketSnapshot, error) {
	start := time.Now()
	snap, err := r.source.FetchSnapshot(ctx)
	r.metrics.RecordFetch(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	if snap == nil {
		return nil, ErrNoData
	}
	return snap, nil
}

// closeOut evaluates the previous prediction against today's price.
// It returns nil when the record was already evaluated.
func (r *Runner) closeOut(ctx context.Context, tx *ledger.Tx, last models.PredictionRecord, price float64) (*models.PredictionRecord, error) {
	if last.ModelOutcome.Evaluated() || last.RandomOutcome.Evaluated() {
		if !last.ModelOutcome.Evaluated() || !last.RandomOutcome.Evaluated() {
			r.logger.Warn().Str("id", last.ID).Msg("Previous prediction is partially evaluated, skipping close-out")
		}
		return nil, nil
	}

	modelOutcome, randomOutcome := outcome.EvaluateRecord(last, price)
	if err := tx.UpdateOutcome(ctx, last.ID, modelOutcome, randomOutcome); err != nil {
		return nil, fmt.Errorf("closing out %s: %w", last.ID, err)
	}

	last.ModelOutcome = modelOutcome
	last.RandomOutcome = randomOutcome

	r.logger.Info().
		Str("id", last.ID).
		Float64("then", last.Price).
		Float64("now", price).
		Stringer("model", modelOutcome).
		Stringer("random", randomOutcome).
		Msg("Closed out previous prediction")
	return &last, nil
}

func (r *Runner) fail(err error) {
	switch {
	case errors.Is(err, ErrAlreadyRanToday):
		r.logger.Info().Msg("Prediction has already been run for today")
		r.metrics.RecordCycle(ResultAlreadyRan)
	case errors.Is(err, ErrScoring):
		r.logger.Error().Err(err).Msg("Scoring failed, no prediction recorded")
		r.metrics.RecordCycle(ResultScoringFail)
	case errors.Is(err, ledger.ErrDuplicateDay), errors.Is(err, ledger.ErrAlreadyEvaluated):
		r.logger.Error().Err(err).Msg("Ledger invariant violated")
		r.metrics.RecordCycle(ResultError)
	default:
		r.logger.Error().Err(err).Msg("Prediction cycle failed")
		r.metrics.RecordCycle(ResultError)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string)                  {}
func (nopMetrics) RecordFetch(float64)                 {}
func (nopMetrics) RecordPrice(float64)                 {}
func (nopMetrics) RecordAccuracy(_, _ models.Accuracy) {}
