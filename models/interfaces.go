package models

import "context"

// MarketDataSource fetches the current market snapshot for the instrument
type MarketDataSource interface {
	FetchSnapshot(ctx context.Context) (*MarketSnapshot, error)
}

// Scorer is the opaque prediction model
type Scorer interface {
	Score(ctx context.Context, f Features) (float64, error)
}
