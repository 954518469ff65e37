package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/BTCPredictor/internal/platform/http"
	"github.com/Alias1177/BTCPredictor/models"
)

// Func adapts an ordinary function to models.Scorer
type Func func(ctx context.Context, f models.Features) (float64, error)

func (fn Func) Score(ctx context.Context, f models.Features) (float64, error) {
	return fn(ctx, f)
}

// ErrNotConfigured is returned by an HTTPScorer without a URL
var ErrNotConfigured = errors.New("scoring service URL not configured")

// HTTPScorer calls an external model service.
// It POSTs the features as JSON and expects {"prediction": <float>}.
type HTTPScorer struct {
	url        string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// request mirrors the model's input names
type request struct {
	Date              int64   `json:"Date"`
	Price             float64 `json:"Price"`
	Volume            float64 `json:"Volume"`
	ChangeVsYesterday float64 `json:"change_in_vs_yesterday"`
	IsATH             int64   `json:"Is_ATH"`
	Last7DaysGrowth   float64 `json:"Last_7_days_growth"`
}

type response struct {
	Prediction *float64 `json:"prediction"`
}

// NewHTTPScorer creates a scorer for the service at url
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		url: url,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         timeout,
			RequestsPerSec:  1,
			MaxRetries:      1,
			MaxRetryTimeout: timeout,
		}),
		logger: log.With().Str("component", "scoring_client").Logger(),
	}
}

func (s *HTTPScorer) Score(ctx context.Context, f models.Features) (float64, error) {
	if s.url == "" {
		return 0, ErrNotConfigured
	}

	payload, err := json.Marshal(request{
		Date:              int64(f.DayIndex),
		Price:             f.Price,
		Volume:            f.Volume,
		ChangeVsYesterday: f.PctChange24hFrac,
		IsATH:             int64(f.IsATH),
		Last7DaysGrowth:   f.PctChange7dFrac,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.DoRequest(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		s.logger.Error().Err(err).Str("response", string(body)).Msg("Error parsing model response")
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("model response has no prediction")
	}
	if math.IsNaN(*out.Prediction) || math.IsInf(*out.Prediction, 0) {
		return 0, fmt.Errorf("model returned non-finite prediction")
	}

	s.logger.Debug().Float64("prediction", *out.Prediction).Msg("Model scored features")
	return *out.Prediction, nil
}
