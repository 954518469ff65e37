package outcome

import "github.com/Alias1177/BTCPredictor/models"

// Evaluate decides whether a score predicted the price move correctly.
// A score of exactly 0.5 is never correct.
func Evaluate(predictedScore, priceAtPrediction, currentPrice float64) models.Outcome {
	increased := currentPrice > priceAtPrediction

	if predictedScore > 0.5 && increased {
		return models.Correct
	}
	if predictedScore < 0.5 && !increased {
		return models.Correct
	}
	return models.Incorrect
}

// EvaluateRecord evaluates both scores of a record against the same current price
func EvaluateRecord(rec models.PredictionRecord, currentPrice float64) (modelOutcome, randomOutcome models.Outcome) {
	return Evaluate(rec.ModelScore, rec.Price, currentPrice),
		Evaluate(rec.RandomScore, rec.Price, currentPrice)
}
