package verdict

import (
	"errors"
	"math"

	"github.com/Alias1177/BTCPredictor/models"
)

const (
	StrongBuy  = "Strong Buy"
	SlightBuy  = "Slight Buy"
	Even       = "Even"
	SlightSell = "Slight Sell"
	StrongSell = "Strong Sell"
)

const (
	TonePositive = "positive"
	ToneNeutral  = "neutral"
	ToneNegative = "negative"
)

// ErrInvalidScore is returned for NaN scores
var ErrInvalidScore = errors.New("invalid score")

// Classify maps a prediction score to a verdict.
// The score is clamped to [0,1] first; NaN is rejected.
func Classify(score float64) (models.Verdict, error) {
	if math.IsNaN(score) {
		return models.Verdict{}, ErrInvalidScore
	}
	v := math.Max(0, math.Min(1, score))

	switch {
	case v < 0.4:
		return models.Verdict{Label: StrongSell, Tone: ToneNegative}, nil
	case v < 0.5:
		return models.Verdict{Label: SlightSell, Tone: ToneNegative}, nil
	case v == 0.5:
		return models.Verdict{Label: Even, Tone: ToneNeutral}, nil
	case v < 0.6:
		return models.Verdict{Label: SlightBuy, Tone: TonePositive}, nil
	default:
		return models.Verdict{Label: StrongBuy, Tone: TonePositive}, nil
	}
}
