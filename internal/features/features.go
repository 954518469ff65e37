package features

import (
	"time"

	"github.com/Alias1177/BTCPredictor/models"
)

// DefaultEpoch is day zero of the model's day index (1899-12-31, Excel-style serial).
// The scoring model was trained against this epoch.
var DefaultEpoch = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)

// Deriver turns a market snapshot into model features
type Deriver struct {
	Epoch    time.Time
	Location *time.Location
}

// NewDeriver creates a Deriver using DefaultEpoch and the given calendar location
func NewDeriver(loc *time.Location) *Deriver {
	if loc == nil {
		loc = time.Local
	}
	return &Deriver{Epoch: DefaultEpoch, Location: loc}
}

// DayIndex counts whole calendar days from the epoch to the day containing now
func (d *Deriver) DayIndex(now time.Time) int {
	epoch := time.Date(d.Epoch.Year(), d.Epoch.Month(), d.Epoch.Day(), 0, 0, 0, 0, d.Location)
	return models.DaysBetween(epoch, now, d.Location)
}

// Derive extracts model features from snap at time now
func (d *Deriver) Derive(snap models.MarketSnapshot, now time.Time) models.Features {
	f := models.Features{
		DayIndex:         d.DayIndex(now),
		Price:            snap.CurrentPrice,
		Volume:           snap.Volume,
		PctChange24hFrac: snap.PctChange24h / 100,
		PctChange7dFrac:  snap.PctChange7d / 100,
		GrowthSign7d:     -1,
	}
	if snap.AllTimeHigh == snap.CurrentPrice {
		f.IsATH = 1
	}
	if f.PctChange7dFrac > 0 {
		f.GrowthSign7d = 1
	}
	return f
}
