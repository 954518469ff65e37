package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Alias1177/BTCPredictor/models"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.PredictionRecord // date descending
	days    map[string]string         // day -> id
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]string)}
}

func (s *MemoryStore) Insert(_ context.Context, day string, rec models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == rec.ID {
			return fmt.Errorf("insert %s: duplicate id", rec.ID)
		}
	}
	if existing, ok := s.days[day]; ok {
		return fmt.Errorf("insert %s: %s taken by %s: %w", rec.ID, day, existing, ErrDuplicateDay)
	}

	s.days[day] = rec.ID
	s.records = append(s.records, rec)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].Date.After(s.records[j].Date)
	})
	return nil
}

func (s *MemoryStore) UpdateOutcome(_ context.Context, id string, modelOutcome, randomOutcome models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].ModelOutcome.Evaluated() || s.records[i].RandomOutcome.Evaluated() {
			return ErrAlreadyEvaluated
		}
		s.records[i].ModelOutcome = modelOutcome
		s.records[i].RandomOutcome = randomOutcome
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Latest(_ context.Context) (*models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[0]
	return &rec, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PredictionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
