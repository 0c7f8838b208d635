// Package monitor owns the periodic market-health driver: tick ingestion,
// circuit evaluation, and the correlation and recovery sweeps.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/internal/circuit"
	"github.com/unifex/riskcore/internal/market"
	"github.com/unifex/riskcore/pkg/metrics"
	"github.com/unifex/riskcore/pkg/models"
)

// DefaultInterval is the monitoring cadence.
const DefaultInterval = 5 * time.Second

// MarketDataSource supplies the tracked symbols and their latest ticks.
type MarketDataSource interface {
	Symbols() []string
	LatestTick(symbol string) (models.Tick, bool)
}

// Monitor drives the evaluation cycle on a fixed interval. It is the single
// writer for tick history and circuit state; the order path only reads.
type Monitor struct {
	interval time.Duration
	source   MarketDataSource
	breaker  *circuit.Breaker
	detector *market.Detector
	pairs    []market.Pair
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor. interval <= 0 uses the 5s default.
func New(interval time.Duration, source MarketDataSource, breaker *circuit.Breaker, detector *market.Detector, pairs []market.Pair, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		source:   source,
		breaker:  breaker,
		detector: detector,
		pairs:    pairs,
		log:      log,
	}
}

// Start launches the periodic driver. It is a no-op if already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RunOnce()
			}
		}
	}()

	m.log.Info("market monitor started", zap.Duration("interval", m.interval))
}

// Stop halts the driver and waits for the in-flight cycle to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.log.Info("market monitor stopped")
}

// RunOnce executes a single evaluation cycle synchronously: ingest the
// latest tick per symbol through the circuit breaker, then run the
// correlation and recovery sweeps. One symbol's bad data never aborts the
// cycle.
func (m *Monitor) RunOnce() {
	for _, symbol := range m.source.Symbols() {
		tick, ok := m.source.LatestTick(symbol)
		if !ok {
			continue // no data yet, treated as no anomaly
		}
		decision := m.breaker.Evaluate(tick)
		if decision.Tripped {
			m.log.Warn("trading halted",
				zap.String("symbol", symbol),
				zap.String("reason", decision.Reason),
				zap.Duration("recovery_estimate", decision.RecoveryEstimate))
		}
		metrics.MarketStressLevel.WithLabelValues(symbol).Set(m.detector.Stress(symbol))
	}

	// Correlation breaks are advisory; they are logged by the detector but
	// never trip a circuit.
	m.detector.CheckCorrelationBreaks(m.pairs)

	if recovered := m.breaker.SweepRecoveries(); len(recovered) > 0 {
		m.log.Info("circuits recovered", zap.Strings("symbols", recovered))
	}
}
