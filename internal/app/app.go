package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/BTCPredictor/internal/api/coingecko"
	"github.com/Alias1177/BTCPredictor/internal/config"
	"github.com/Alias1177/BTCPredictor/internal/cycle"
	"github.com/Alias1177/BTCPredictor/internal/database"
	"github.com/Alias1177/BTCPredictor/internal/ledger"
	"github.com/Alias1177/BTCPredictor/internal/metrics"
	"github.com/Alias1177/BTCPredictor/internal/scoring"
)

// App bundles the wired collaborators of one process
type App struct {
	Config   *config.Config
	Ledger   *ledger.Ledger
	Runner   *cycle.Runner
	Registry *prometheus.Registry

	closer io.Closer
}

// SetupLogging configures the global logger. Call it before New so that component
// loggers inherit the writer.
func SetupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// New wires the ledger store, market data client, scorer and metrics into a Runner
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector())

	var store ledger.Store
	switch cfg.LedgerBackend {
	case "memory":
		log.Warn().Msg("Using in-memory ledger, history is lost on exit")
		store = ledger.NewMemoryStore()
	case "postgres":
		db, err := database.New(ctx, database.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		store = db
		a.closer = db
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}

	a.Ledger = ledger.New(store, time.Local)

	source := coingecko.NewClient(coingecko.ClientOptions{
		APIKey:         cfg.CoinGeckoAPIKey,
		BaseURL:        cfg.CoinGeckoBaseURL,
		CoinID:         cfg.CoinID,
		RequestTimeout: cfg.RequestTimeoutDuration(),
		RequestsPerSec: cfg.RequestsPerSec,
	})

	if cfg.ScoringURL == "" {
		log.Warn().Msg("SCORING_URL not set, prediction cycles will fail at scoring")
	}
	scorer := scoring.NewHTTPScorer(cfg.ScoringURL, cfg.ScoringTimeoutDuration())

	a.Runner = cycle.New(cycle.Options{
		Source:   source,
		Scorer:   scorer,
		Ledger:   a.Ledger,
		Location: time.Local,
		Metrics:  metrics.New(a.Registry),
	})

	return a, nil
}

// Close releases the database connection if one was opened
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
