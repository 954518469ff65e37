package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Alias1177/BTCPredictor/models"
)

// Recorder records prediction cycle metrics using Prometheus.
type Recorder struct {
	cycles    *prometheus.CounterVec
	fetchTime prometheus.Histogram
	lastPrice prometheus.Gauge
	accuracy  *prometheus.GaugeVec
}

// New registers the predictor metrics with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btcpredictor_cycles_total",
				Help: "Prediction cycles by result",
			},
			[]string{"result"},
		),
		fetchTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "btcpredictor_fetch_duration_seconds",
				Help:    "Duration of market data fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastPrice: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "btcpredictor_last_price_usd",
				Help: "Price recorded by the latest prediction",
			},
		),
		accuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "btcpredictor_accuracy_ratio",
				Help: "Share of evaluated predictions that were correct",
			},
			[]string{"selector"},
		),
	}
}

// RecordCycle counts a finished cycle under result.
func (r *Recorder) RecordCycle(result string) {
	r.cycles.WithLabelValues(result).Inc()
}

// RecordFetch records market data fetch latency in seconds.
func (r *Recorder) RecordFetch(seconds float64) {
	r.fetchTime.Observe(seconds)
}

// RecordPrice records the price of the newest prediction.
func (r *Recorder) RecordPrice(price float64) {
	r.lastPrice.Set(price)
}

// RecordAccuracy publishes both accuracy ratios.
func (r *Recorder) RecordAccuracy(model, random models.Accuracy) {
	r.accuracy.WithLabelValues(string(models.SelectModel)).Set(model.Ratio)
	r.accuracy.WithLabelValues(string(models.SelectRandom)).Set(random.Ratio)
}
