package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Alias1177/BTCPredictor/internal/verdict"
	"github.com/Alias1177/BTCPredictor/models"
)

const (
	AlreadyRunNotice = "Prediction Has Already Been Run For Today"
	NoDataNotice     = "No market data available, try again later"

	barWidth = 20
)

var usd = message.NewPrinter(language.English)

// Percent rounds a ratio to a whole percentage
func Percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}

// AccuracyLine renders "title  correct/total • NN%"
func AccuracyLine(title string, acc models.Accuracy) string {
	return fmt.Sprintf("%s  %d/%d • %d%%", title, acc.Correct, acc.Total, Percent(acc.Ratio))
}

// Bar renders a fixed-width bar filled by ratio, clamped to [0,1]
func Bar(ratio float64) string {
	if math.IsNaN(ratio) {
		ratio = 0
	}
	filled := int(math.Round(math.Max(0, math.Min(1, ratio)) * barWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

// WinnerSentence describes which predictor is ahead
func WinnerSentence(w models.Winner) string {
	switch w {
	case models.WinnerModel:
		return "Most accurate: Prediction model"
	case models.WinnerRandom:
		return "Most accurate: Random guess"
	default:
		return "Most accurate: Both models are equally accurate"
	}
}

// OutcomeMark renders an outcome for the history list
func OutcomeMark(o models.Outcome) string {
	switch o {
	case models.Correct:
		return "✅ Correct"
	case models.Incorrect:
		return "❌ Wrong"
	default:
		return "—"
	}
}

// Today renders the card for a freshly recorded prediction
func Today(res *models.CycleResult) string {
	var b strings.Builder
	b.WriteString("Today's Prediction\n")
	fmt.Fprintf(&b, "%.2f    Random guess: %.2f\n", res.Record.ModelScore, res.Record.RandomScore)
	fmt.Fprintf(&b, "Verdict: %s    %s\n", res.Verdict.Label, res.Record.Date.Format("02/01/2006"))
	if res.ClosedOut != nil {
		fmt.Fprintf(&b, "Yesterday: model %s, random %s\n",
			OutcomeMark(res.ClosedOut.ModelOutcome), OutcomeMark(res.ClosedOut.RandomOutcome))
	}
	b.WriteString("\n")
	b.WriteString(Accuracy(res.ModelAccuracy, res.RandomAccuracy, res.MostAccurate))
	return b.String()
}

// Accuracy renders both accuracy bars and the winner
func Accuracy(model, random models.Accuracy, winner models.Winner) string {
	var b strings.Builder
	b.WriteString("Current prediction rate\n")
	fmt.Fprintf(&b, "%s\n%s\n", AccuracyLine("Prediction model", model), Bar(model.Ratio))
	fmt.Fprintf(&b, "%s\n%s\n", AccuracyLine("Random guess", random), Bar(random.Ratio))
	b.WriteString(WinnerSentence(winner))
	b.WriteString("\n")
	return b.String()
}

// Status renders the ledger summary including the latest verdict
func Status(s models.Status) string {
	var b strings.Builder
	if s.Latest != nil {
		label := "-"
		if v, err := verdict.Classify(s.Latest.ModelScore); err == nil {
			label = v.Label
		}
		fmt.Fprintf(&b, "Latest prediction %s: %.2f (%s)\n\n",
			s.Latest.Date.Format("02/01/2006"), s.Latest.ModelScore, label)
	}
	b.WriteString(Accuracy(s.ModelAccuracy, s.RandomAccuracy, s.MostAccurate))
	return b.String()
}

// History renders up to limit records, most recent first. limit <= 0 renders all.
func History(records []models.PredictionRecord, limit int) string {
	if len(records) == 0 {
		return "No predictions yet\n"
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s    %s\n", FormatDay(r.Date), USD(r.Price))
		fmt.Fprintf(&b, "Prediction Model  %.2f  %s\n", r.ModelScore, OutcomeMark(r.ModelOutcome))
		fmt.Fprintf(&b, "Random Guess      %.2f  %s\n", r.RandomScore, OutcomeMark(r.RandomOutcome))
	}
	return b.String()
}

// USD formats a price like $114,250.50
func USD(v float64) string {
	if v < 0 {
		return "-" + usd.Sprintf("$%.2f", -v)
	}
	return usd.Sprintf("$%.2f", v)
}

// FormatDay renders a day the way the history list does
func FormatDay(t time.Time) string {
	return t.Format("Jan 2, 2006")
}
