// Package circuit implements the per-symbol trading halt state machine.
package circuit

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/internal/market"
	"github.com/unifex/riskcore/pkg/metrics"
	"github.com/unifex/riskcore/pkg/models"
)

// DefaultRecoveryDuration is how long a tripped circuit stays halted.
const DefaultRecoveryDuration = 5 * time.Minute

// Severity grades a circuit decision.
type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// State is the circuit record for one symbol. Created lazily on first
// evaluation, never deleted; TripCount accumulates for the process lifetime.
type State struct {
	Symbol      string    `json:"symbol"`
	Tripped     bool      `json:"is_tripped"`
	TripReason  string    `json:"trip_reason,omitempty"`
	TrippedAt   time.Time `json:"tripped_at,omitempty"`
	RecoverAt   time.Time `json:"recover_at,omitempty"`
	TripCount   int       `json:"trip_count"`
	RecoveredAt time.Time `json:"recovered_at,omitempty"`
}

// Decision is the gating outcome for a single evaluation.
type Decision struct {
	Tripped          bool          `json:"is_tripped"`
	Reason           string        `json:"reason,omitempty"`
	Severity         Severity      `json:"severity"`
	RecoveryEstimate time.Duration `json:"-"`
	AffectedSymbols  []string      `json:"affected_symbols"`
}

// MarshalJSON emits the recovery estimate in milliseconds, the unit the
// dashboard consumers expect.
func (d Decision) MarshalJSON() ([]byte, error) {
	type alias Decision
	return json.Marshal(struct {
		alias
		RecoveryEstimateMs int64 `json:"recovery_estimate_ms"`
	}{alias(d), d.RecoveryEstimate.Milliseconds()})
}

// Config holds breaker tuning and the static blast-radius table.
type Config struct {
	RecoveryDuration  time.Duration       `yaml:"recovery_duration" json:"recovery_duration"`
	CorrelatedSymbols map[string][]string `yaml:"correlated_symbols" json:"correlated_symbols"`
}

// DefaultConfig returns the standard breaker configuration.
func DefaultConfig() Config {
	return Config{
		RecoveryDuration: DefaultRecoveryDuration,
		CorrelatedSymbols: map[string][]string{
			"BTC": {"ETH", "SOL"},
			"ETH": {"BTC", "SOL"},
			"SPY": {"QQQ", "IVV"},
			"QQQ": {"SPY", "IVV"},
			"EUR": {"GBP", "JPY"},
		},
	}
}

// Breaker drives the NORMAL/TRIPPED state machine per symbol. A tripped
// circuit clears only through the recovery sweep; no external caller can
// force-clear it.
type Breaker struct {
	cfg      Config
	detector *market.Detector
	log      *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	states map[string]*State
}

// New creates a Breaker over the given anomaly detector.
func New(cfg Config, detector *market.Detector, log *zap.Logger) *Breaker {
	if cfg.RecoveryDuration <= 0 {
		cfg.RecoveryDuration = DefaultRecoveryDuration
	}
	return &Breaker{
		cfg:      cfg,
		detector: detector,
		log:      log,
		now:      time.Now,
		states:   make(map[string]*State),
	}
}

// Evaluate ingests a tick and decides whether trading in the symbol must be
// halted. While tripped it short-circuits with the recorded reason and a
// recomputed remaining-time estimate, without re-running the checks.
func (b *Breaker) Evaluate(t models.Tick) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(t.Symbol)
	now := b.now()

	if state.Tripped {
		remaining := state.RecoverAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Tripped:          true,
			Reason:           state.TripReason,
			Severity:         SeverityCritical,
			RecoveryEstimate: remaining,
			AffectedSymbols:  []string{t.Symbol},
		}
	}

	b.detector.History().Observe(t.Symbol, t.Timestamp)

	var findings []market.Finding
	for _, f := range []*market.Finding{
		b.detector.CheckPriceSpike(t.Symbol, t.Price),
		b.detector.CheckVolumeSpike(t.Symbol, t.Volume),
		b.detector.CheckSpread(t.Symbol, t.Bid, t.Ask),
		b.detector.CheckStaleness(t.Symbol),
	} {
		if f != nil {
			findings = append(findings, *f)
		}
	}

	if len(findings) == 0 {
		metrics.MarketStressLevel.WithLabelValues(t.Symbol).Set(0)
		return Decision{Severity: SeverityNormal, AffectedSymbols: []string{}}
	}

	reason := findings[0].Reason
	state.Tripped = true
	state.TripReason = reason
	state.TrippedAt = now
	state.RecoverAt = now.Add(b.cfg.RecoveryDuration)
	state.TripCount++

	metrics.CircuitBreakerTrips.WithLabelValues(t.Symbol, findings[0].Check).Inc()
	b.log.Error("circuit breaker tripped",
		zap.String("symbol", t.Symbol),
		zap.String("reason", reason),
		zap.Int("trip_count", state.TripCount),
		zap.Int("failed_checks", len(findings)))

	severity := SeverityWarning
	if len(findings) > 2 {
		severity = SeverityCritical
	}

	return Decision{
		Tripped:          true,
		Reason:           reason,
		Severity:         severity,
		RecoveryEstimate: b.cfg.RecoveryDuration,
		AffectedSymbols:  b.correlatedLocked(t.Symbol),
	}
}

// SweepRecoveries clears every circuit whose recovery time has passed and
// returns the recovered symbols. It does not re-validate market conditions.
func (b *Breaker) SweepRecoveries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var recovered []string
	for symbol, state := range b.states {
		if state.Tripped && now.After(state.RecoverAt) {
			state.Tripped = false
			state.RecoveredAt = now
			recovered = append(recovered, symbol)
			metrics.CircuitBreakerRecoveries.WithLabelValues(symbol).Inc()
			b.log.Info("circuit breaker recovered", zap.String("symbol", symbol))
		}
	}
	return recovered
}

// Status returns a copy of every symbol's circuit state.
func (b *Breaker) Status() []State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]State, 0, len(b.states))
	for _, state := range b.states {
		out = append(out, *state)
	}
	return out
}

// StateFor returns the circuit state for one symbol.
func (b *Breaker) StateFor(symbol string) (State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state, ok := b.states[symbol]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// CorrelatedSymbols reports the symbols historically linked to the given one.
// Informational blast radius only; related circuits are never cross-tripped.
func (b *Breaker) CorrelatedSymbols(symbol string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.correlatedLocked(symbol)
}

func (b *Breaker) correlatedLocked(symbol string) []string {
	if related, ok := b.cfg.CorrelatedSymbols[symbol]; ok {
		out := make([]string, len(related))
		copy(out, related)
		return out
	}
	return []string{}
}

func (b *Breaker) stateLocked(symbol string) *State {
	state, ok := b.states[symbol]
	if !ok {
		state = &State{Symbol: symbol}
		b.states[symbol] = state
	}
	return state
}
