package cycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/BTCPredictor/internal/ledger"
	"github.com/Alias1177/BTCPredictor/internal/verdict"
	"github.com/Alias1177/BTCPredictor/models"
)

type fakeSource struct {
	snap *models.MarketSnapshot
	err  error
}

func (f *fakeSource) FetchSnapshot(context.Context) (*models.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.snap == nil {
		return nil, nil
	}
	s := *f.snap
	return &s, nil
}

type fakeScorer struct {
	score float64
	err   error
	calls int
	last  models.Features
}

func (f *fakeScorer) Score(_ context.Context, feats models.Features) (float64, error) {
	f.calls++
	f.last = feats
	return f.score, f.err
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) RecordCycle(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}
func (m *recordingMetrics) RecordFetch(float64)                 {}
func (m *recordingMetrics) RecordPrice(float64)                 {}
func (m *recordingMetrics) RecordAccuracy(_, _ models.Accuracy) {}

type harness struct {
	source  *fakeSource
	scorer  *fakeScorer
	ledger  *ledger.Ledger
	metrics *recordingMetrics
	now     time.Time
	runner  *Runner
	ids     int
}

func newHarness() *harness {
	h := &harness{
		source:  &fakeSource{snap: &models.MarketSnapshot{CurrentPrice: 100, AllTimeHigh: 200}},
		scorer:  &fakeScorer{score: 0.7},
		ledger:  ledger.New(ledger.NewMemoryStore(), time.UTC),
		metrics: &recordingMetrics{},
		now:     time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC),
	}
	h.runner = New(Options{
		Source:   h.source,
		Scorer:   h.scorer,
		Ledger:   h.ledger,
		Location: time.UTC,
		Clock:    func() time.Time { return h.now },
		Random:   func() float64 { return 0.2 },
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("rec-%d", h.ids)
		},
		Metrics: h.metrics,
	})
	return h
}

func (h *harness) list(t *testing.T) []models.PredictionRecord {
	t.Helper()
	records, err := h.ledger.List(context.Background())
	require.NoError(t, err)
	return records
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	// day 1, price 100
	res, err := h.runner.Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.ClosedOut)
	assert.Equal(t, 100.0, res.Record.Price)
	assert.Equal(t, models.Unevaluated, res.Record.ModelOutcome)
	assert.Equal(t, models.Unevaluated, res.Record.RandomOutcome)
	assert.Equal(t, verdict.StrongBuy, res.Verdict.Label)
	assert.Equal(t, models.WinnerTie, res.MostAccurate)

	records := h.list(t)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-1", records[0].ID)

	// day 2, price 120
	h.now = h.now.AddDate(0, 0, 1)
	h.source.snap.CurrentPrice = 120
	res, err = h.runner.Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, res.ClosedOut)
	assert.Equal(t, "rec-1", res.ClosedOut.ID)
	assert.Equal(t, models.Correct, res.ClosedOut.ModelOutcome)
	// random 0.2 predicted a fall
	assert.Equal(t, models.Incorrect, res.ClosedOut.RandomOutcome)

	records = h.list(t)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-2", records[0].ID)
	assert.Equal(t, models.Unevaluated, records[0].ModelOutcome)
	assert.Equal(t, models.Correct, records[1].ModelOutcome)

	assert.Equal(t, models.Accuracy{Correct: 1, Total: 1, Ratio: 1}, res.ModelAccuracy)
	assert.Equal(t, models.Accuracy{Correct: 0, Total: 1, Ratio: 0}, res.RandomAccuracy)
	assert.Equal(t, models.WinnerModel, res.MostAccurate)

	assert.Equal(t, []string{ResultOK, ResultOK}, h.metrics.results)
}

func TestRunTwiceSameDay(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	_, err := h.runner.Run(ctx)
	require.NoError(t, err)
	before := h.list(t)

	h.now = h.now.Add(6 * time.Hour)
	h.source.snap.CurrentPrice = 150
	res, err := h.runner.Run(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRanToday)
	assert.Nil(t, res)
	assert.Equal(t, before, h.list(t))
	assert.Equal(t, 1, h.scorer.calls)
	assert.Equal(t, ResultAlreadyRan, h.metrics.results[1])
}

func TestRunNoData(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch error", func(t *testing.T) {
		h := newHarness()
		h.source.err = context.DeadlineExceeded

		_, err := h.runner.Run(ctx)
		assert.ErrorIs(t, err, ErrNoData)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, h.list(t))
		assert.Equal(t, 0, h.scorer.calls)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		h := newHarness()
		h.source.snap = nil

		_, err := h.runner.Run(ctx)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Empty(t, h.list(t))
	})

	t.Run("no data is reported before the gate", func(t *testing.T) {
		h := newHarness()
		_, err := h.runner.Run(ctx)
		require.NoError(t, err)

		h.source.err = errors.New("connection refused")
		_, err = h.runner.Run(ctx)
		assert.ErrorIs(t, err, ErrNoData)
		assert.NotErrorIs(t, err, ErrAlreadyRanToday)
	})
}

func TestRunScoringErrorKeepsCloseOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	_, err := h.runner.Run(ctx)
	require.NoError(t, err)

	h.now = h.now.AddDate(0, 0, 1)
	h.source.snap.CurrentPrice = 90
	h.scorer.err = errors.New("model file missing")

	_, err = h.runner.Run(ctx)
	assert.ErrorIs(t, err, ErrScoring)

	records := h.list(t)
	require.Len(t, records, 1, "no record is created when scoring fails")
	assert.Equal(t, models.Incorrect, records[0].ModelOutcome)
	assert.Equal(t, models.Correct, records[0].RandomOutcome)

	// retry the same day once the model is back
	h.scorer.err = nil
	res, err := h.runner.Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.ClosedOut, "already closed out record is not evaluated again")
	assert.Len(t, h.list(t), 2)
}

func TestRunNonFiniteScore(t *testing.T) {
	h := newHarness()
	h.scorer.score = math.NaN()

	_, err := h.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrScoring)
	assert.Empty(t, h.list(t))
}

func TestRunOutOfRangeScoreIsRecorded(t *testing.T) {
	h := newHarness()
	h.scorer.score = 1.3

	res, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.3, res.Record.ModelScore)
	assert.Equal(t, verdict.StrongBuy, res.Verdict.Label)
}

func TestRunDerivesFeatures(t *testing.T) {
	h := newHarness()
	h.source.snap = &models.MarketSnapshot{
		CurrentPrice: 123000, AllTimeHigh: 123000, Volume: 5000, PctChange24h: 1.5, PctChange7d: -2,
	}

	res, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	f := h.scorer.last
	assert.Equal(t, 45871, f.DayIndex)
	assert.Equal(t, 123000.0, f.Price)
	assert.Equal(t, 5000.0, f.Volume)
	assert.InDelta(t, 0.015, f.PctChange24hFrac, 1e-12)
	assert.InDelta(t, -0.02, f.PctChange7dFrac, 1e-12)
	assert.Equal(t, 1, f.IsATH)
	assert.Equal(t, f, res.Features)
}

func TestRunSerializesCycles(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.runner.Run(ctx)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyRanToday)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, h.list(t), 1)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	s, err := h.runner.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.Latest)
	assert.Equal(t, models.WinnerTie, s.MostAccurate)

	_, err = h.runner.Run(ctx)
	require.NoError(t, err)

	s, err = h.runner.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Latest)
	assert.Equal(t, "rec-1", s.Latest.ID)
}

// listFailsAfterInsert serves the duplicate-day check, then fails every read once a
// record has been written.
type listFailsAfterInsert struct {
	*ledger.MemoryStore
	inserted bool
}

func (s *listFailsAfterInsert) Insert(ctx context.Context, day string, rec models.PredictionRecord) error {
	if err := s.MemoryStore.Insert(ctx, day, rec); err != nil {
		return err
	}
	s.inserted = true
	return nil
}

func (s *listFailsAfterInsert) List(ctx context.Context) ([]models.PredictionRecord, error) {
	if s.inserted {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.List(ctx)
}

func TestRunReturnsRecordWhenAccuracyReadFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	store := &listFailsAfterInsert{MemoryStore: ledger.NewMemoryStore()}
	h.ledger = ledger.New(store, time.UTC)
	h.runner = New(Options{
		Source:   h.source,
		Scorer:   h.scorer,
		Ledger:   h.ledger,
		Location: time.UTC,
		Clock:    func() time.Time { return h.now },
		Random:   func() float64 { return 0.2 },
		Metrics:  h.metrics,
	})

	res, err := h.runner.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 100.0, res.Record.Price)
	assert.Equal(t, verdict.StrongBuy, res.Verdict.Label)
	assert.Equal(t, models.Accuracy{}, res.ModelAccuracy)
	assert.Equal(t, []string{ResultOK}, h.metrics.results)

	stored, err := store.MemoryStore.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.Record.ID, stored[0].ID)
}
