// Package metrics exposes Prometheus collectors describing a run. A run is
// short lived, so the registry is written to a textfile once the run is over
// instead of being served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the engine.
type Metrics struct {
	Registry           *prometheus.Registry
	CardsAnalyzed      prometheus.Counter
	ProductsFound      prometheus.Counter
	PagesProcessed     prometheus.Counter
	ScrollIterations   prometheus.Counter
	NavigationsTotal   *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
	ExtractionRetries  prometheus.Counter
	RunDurationSeconds prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	cards := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandrank_cards_analyzed_total",
		Help: "Total number of product cards collected from results pages.",
	})
	products := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandrank_products_found_total",
		Help: "Total number of cards matching the target brand.",
	})
	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandrank_pages_processed_total",
		Help: "Total number of results pages processed.",
	})
	scrolls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandrank_scroll_iterations_total",
		Help: "Total number of scroll iterations performed.",
	})
	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandrank_navigation_total",
			Help: "Page navigations by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandrank_extraction_failures_total",
			Help: "Cards that could not be extracted, by reason.",
		},
		[]string{"reason"},
	)
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandrank_extraction_retries_total",
		Help: "Total number of extraction attempts repeated because of stale cards.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "brandrank_run_duration_seconds",
		Help: "Wall clock duration of the last run.",
	})

	registry.MustRegister(cards, products, pages, scrolls, navigations, failures, retries, duration)

	return &Metrics{
		Registry:           registry,
		CardsAnalyzed:      cards,
		ProductsFound:      products,
		PagesProcessed:     pages,
		ScrollIterations:   scrolls,
		NavigationsTotal:   navigations,
		ExtractionFailures: failures,
		ExtractionRetries:  retries,
		RunDurationSeconds: duration,
	}
}

func (m *Metrics) AddCards(n int) {
	if m == nil {
		return
	}
	m.CardsAnalyzed.Add(float64(n))
}

func (m *Metrics) IncProducts() {
	if m == nil {
		return
	}
	m.ProductsFound.Inc()
}

func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesProcessed.Inc()
}

func (m *Metrics) IncScrolls() {
	if m == nil {
		return
	}
	m.ScrollIterations.Inc()
}

// IncNavigation counts a navigation attempt. strategy is "click" or "url".
func (m *Metrics) IncNavigation(strategy string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.NavigationsTotal.WithLabelValues(strategy, result).Inc()
}

// IncExtractionFailure counts a card that yielded no fields. reason is one of
// "stale", "missing_field" and "error".
func (m *Metrics) IncExtractionFailure(reason string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.ExtractionRetries.Inc()
}

func (m *Metrics) SetRunDuration(seconds float64) {
	if m == nil {
		return
	}
	m.RunDurationSeconds.Set(seconds)
}

// WriteToTextfile writes the registry in the text exposition format, as
// expected by the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(filename string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(filename, m.Registry)
}
