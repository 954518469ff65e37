package models

import (
	"time"
)

// Outcome is the realized result of a prediction
type Outcome int

const (
	Unevaluated Outcome = iota
	Correct
	Incorrect
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unevaluated"
	}
}

// Evaluated reports whether the outcome has been decided
func (o Outcome) Evaluated() bool {
	return o == Correct || o == Incorrect
}

// PredictionRecord is one daily prediction in the ledger
type PredictionRecord struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`        // USD at creation time
	ModelScore    float64   `json:"model_score"`  // model output, approx [0,1]
	RandomScore   float64   `json:"random_score"` // baseline, [0,1)
	ModelOutcome  Outcome   `json:"model_outcome"`
	RandomOutcome Outcome   `json:"random_outcome"`
}

// Selector picks which score of a record is being measured
type Selector string

const (
	SelectModel  Selector = "model"
	SelectRandom Selector = "random"
)

// OutcomeFor returns the outcome matching the selector
func (r PredictionRecord) OutcomeFor(sel Selector) Outcome {
	if sel == SelectRandom {
		return r.RandomOutcome
	}
	return r.ModelOutcome
}

// Accuracy holds aggregate correctness for one selector
type Accuracy struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Ratio   float64 `json:"ratio"`
}

// Winner is the result of comparing model and random accuracy
type Winner string

const (
	WinnerModel  Winner = "model"
	WinnerRandom Winner = "random"
	WinnerTie    Winner = "tie"
)

// MarketSnapshot is the subset of market data used by a cycle
type MarketSnapshot struct {
	CurrentPrice float64 `json:"current_price"`
	AllTimeHigh  float64 `json:"all_time_high"`
	Volume       float64 `json:"volume"` // BTC
	PctChange24h float64 `json:"pct_change_24h"`
	PctChange7d  float64 `json:"pct_change_7d"`
}

// CoinResponse mirrors the parts of the CoinGecko /coins/{id} payload we read
type CoinResponse struct {
	MarketData struct {
		CurrentPrice struct {
			USD float64 `json:"usd"`
		} `json:"current_price"`
		ATH struct {
			USD float64 `json:"usd"`
		} `json:"ath"`
		PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
		TotalVolume              struct {
			BTC float64 `json:"btc"`
		} `json:"total_volume"`
		PriceChangePercentage7d float64 `json:"price_change_percentage_7d"`
	} `json:"market_data"`
}

// Snapshot converts the API payload into a MarketSnapshot
func (r CoinResponse) Snapshot() MarketSnapshot {
	return MarketSnapshot{
		CurrentPrice: r.MarketData.CurrentPrice.USD,
		AllTimeHigh:  r.MarketData.ATH.USD,
		Volume:       r.MarketData.TotalVolume.BTC,
		PctChange24h: r.MarketData.PriceChangePercentage24h,
		PctChange7d:  r.MarketData.PriceChangePercentage7d,
	}
}

// Features is the model input derived from a snapshot
type Features struct {
	DayIndex         int     `json:"date"`
	Price            float64 `json:"price"`
	Volume           float64 `json:"volume"`
	PctChange24hFrac float64 `json:"change_vs_yesterday"`
	IsATH            int     `json:"is_ath"`
	PctChange7dFrac  float64 `json:"last_7_days_growth"`
	GrowthSign7d     int     `json:"-"` // +1 / -1, logged only
}

// Verdict is the display classification of a score
type Verdict struct {
	Label string `json:"label"`
	Tone  string `json:"tone"` // positive, neutral, negative
}

// CycleResult is what a prediction cycle hands to the presentation layer
type CycleResult struct {
	Record         PredictionRecord  `json:"record"`
	ClosedOut      *PredictionRecord `json:"closed_out,omitempty"`
	Verdict        Verdict           `json:"verdict"`
	Features       Features          `json:"features"`
	ModelAccuracy  Accuracy          `json:"model_accuracy"`
	RandomAccuracy Accuracy          `json:"random_accuracy"`
	MostAccurate   Winner            `json:"most_accurate"`
}

// Status is a read-only view of the ledger for display
type Status struct {
	Latest         *PredictionRecord `json:"latest,omitempty"`
	ModelAccuracy  Accuracy          `json:"model_accuracy"`
	RandomAccuracy Accuracy          `json:"random_accuracy"`
	MostAccurate   Winner            `json:"most_accurate"`
}
