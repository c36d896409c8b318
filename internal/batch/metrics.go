package batch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records batch activity in Prometheus collectors
type Metrics struct {
	filesTotal   *prometheus.CounterVec
	tokensTotal  prometheus.Counter
	fileDuration prometheus.Histogram
	runsTotal    prometheus.Counter
	inFlight     prometheus.Gauge
}

// NewMetrics creates the batch collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_batch_files_total",
				Help: "Files processed by batch runs, by status",
			},
			[]string{"status"},
		),
		tokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgen_batch_tokens_total",
			Help: "Tokens generated by successful batch items",
		}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgen_batch_file_duration_seconds",
			Help:    "Wall-clock time spent generating documentation for one file",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgen_batch_runs_total",
			Help: "Batch runs started",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docgen_batch_in_flight",
			Help: "Files currently being generated",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.filesTotal, err = register(reg, m.filesTotal); err != nil {
		return nil, err
	}
	if m.tokensTotal, err = register(reg, m.tokensTotal); err != nil {
		return nil, err
	}
	if m.fileDuration, err = register(reg, m.fileDuration); err != nil {
		return nil, err
	}
	if m.runsTotal, err = register(reg, m.runsTotal); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsTotal.Inc()
}

func (m *Metrics) itemStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) itemFinished(res Result, elapsed time.Duration, started bool) {
	if m == nil {
		return
	}
	if started {
		m.inFlight.Dec()
		m.fileDuration.Observe(elapsed.Seconds())
	}
	m.filesTotal.WithLabelValues(string(res.Status)).Inc()
	if res.Status == StatusSuccess {
		m.tokensTotal.Add(float64(res.Tokens))
	}
}
