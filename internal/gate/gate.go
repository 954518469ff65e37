package gate

import (
	"time"

	"github.com/Alias1177/BTCPredictor/models"
)

// CanRun reports whether a new cycle may start today.
// lastRecordDate is nil when the ledger is empty. Days are compared in today's location.
func CanRun(lastRecordDate *time.Time, today time.Time) bool {
	if lastRecordDate == nil {
		return true
	}
	return !models.SameDay(*lastRecordDate, today, today.Location())
}
