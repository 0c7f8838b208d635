// Package execution contains the synchronous order-path checks: slippage
// validation and smart order routing. Both read the latest market snapshot
// and never block on the periodic drivers.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/models"
)

// Execution strategies for orders whose slippage exceeds tolerance.
type Strategy string

const (
	StrategyAggressive Strategy = "AGGRESSIVE"
	StrategyPatient    Strategy = "PATIENT"
	StrategySmart      Strategy = "SMART"
)

// Status classifies an execution outcome.
type Status string

const (
	StatusFull    Status = "FULL"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Defaults for slippage validation.
const (
	DefaultMaxSlippagePercent = 0.5
	DefaultTimeLimit          = 5 * time.Second
	DefaultPollInterval       = 100 * time.Millisecond

	// patientRecoveryBand is the fraction of the expected price the market
	// must come back within for the PATIENT strategy to fill.
	patientRecoveryBand = 0.005
)

// ErrUnknownStrategy is returned for an unrecognized execution strategy.
// Configuration errors are rejected at the boundary, not absorbed as FAILED
// outcomes.
var ErrUnknownStrategy = errors.New("execution: unknown strategy")

// GuardConfig holds the process-wide slippage defaults. Per-order zero
// values in SlippageConfig fall back to these.
type GuardConfig struct {
	MaxSlippagePercent float64       `yaml:"max_slippage_percent" json:"max_slippage_percent"`
	TimeLimit          time.Duration `yaml:"time_limit" json:"time_limit"`
	PollInterval       time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DefaultGuardConfig returns the standard slippage defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxSlippagePercent: DefaultMaxSlippagePercent,
		TimeLimit:          DefaultTimeLimit,
		PollInterval:       DefaultPollInterval,
	}
}

// SlippageConfig is supplied per order and not persisted.
type SlippageConfig struct {
	MaxSlippagePercent float64       `json:"max_slippage_percent"` // 0 => guard default
	MaxSlippageDollars float64       `json:"max_slippage_dollars"` // 0 => unlimited
	Strategy           Strategy      `json:"execution_strategy"`
	TimeLimit          time.Duration `json:"time_limit"`    // PATIENT deadline, 0 => guard default
	PollInterval       time.Duration `json:"poll_interval"` // PATIENT poll cadence, 0 => guard default
}

// ExecutionResult is the slippage-adjusted fill outcome. Tolerance breaches
// and timeouts are first-class statuses, not errors.
type ExecutionResult struct {
	Executed        bool    `json:"executed"`
	FilledQuantity  float64 `json:"filled_quantity"`
	ExecutedPrice   float64 `json:"executed_price"`
	Slippage        float64 `json:"actual_slippage"`
	SlippagePercent float64 `json:"slippage_percent"`
	Status          Status  `json:"status"`
}

// QuoteSource supplies the latest tick for a symbol.
type QuoteSource interface {
	LatestTick(symbol string) (models.Tick, bool)
}

// SlippageGuard validates per-order execution prices against expectations.
type SlippageGuard struct {
	cfg    GuardConfig
	quotes QuoteSource
	log    *zap.Logger
}

// NewSlippageGuard creates a guard over the given quote source. Zero config
// fields take the standard defaults.
func NewSlippageGuard(cfg GuardConfig, quotes QuoteSource, log *zap.Logger) *SlippageGuard {
	if cfg.MaxSlippagePercent <= 0 {
		cfg.MaxSlippagePercent = DefaultMaxSlippagePercent
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = DefaultTimeLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &SlippageGuard{cfg: cfg, quotes: quotes, log: log}
}

// Validate checks an order's slippage and, on a tolerance breach, dispatches
// by strategy. The PATIENT path may block up to cfg.TimeLimit; cancel the
// context to bound it earlier.
func (g *SlippageGuard) Validate(ctx context.Context, symbol string, side models.Side, quantity, expectedPrice float64, cfg SlippageConfig) (ExecutionResult, error) {
	switch cfg.Strategy {
	case StrategyAggressive, StrategyPatient, StrategySmart:
	default:
		return ExecutionResult{Status: StatusFailed}, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}

	tick, ok := g.quotes.LatestTick(symbol)
	if !ok {
		g.log.Warn("no market data for slippage check", zap.String("symbol", symbol))
		return ExecutionResult{Status: StatusFailed}, nil
	}

	currentPrice := tick.Bid
	if side == models.SideBuy {
		currentPrice = tick.Ask
	}

	slippage := math.Abs(currentPrice - expectedPrice)
	slippagePercent := slippage / expectedPrice * 100

	maxPercent := cfg.MaxSlippagePercent
	if maxPercent == 0 {
		maxPercent = g.cfg.MaxSlippagePercent
	}
	maxDollars := cfg.MaxSlippageDollars
	if maxDollars == 0 {
		maxDollars = math.Inf(1)
	}

	if slippagePercent <= maxPercent && slippage <= maxDollars {
		return ExecutionResult{
			Executed:        true,
			FilledQuantity:  quantity,
			ExecutedPrice:   currentPrice,
			Slippage:        slippage,
			SlippagePercent: slippagePercent,
			Status:          StatusFull,
		}, nil
	}

	g.log.Warn("slippage exceeds limit",
		zap.String("symbol", symbol),
		zap.Float64("slippage_percent", slippagePercent),
		zap.String("strategy", string(cfg.Strategy)))

	switch cfg.Strategy {
	case StrategyAggressive:
		// Execute anyway at the current price.
		return ExecutionResult{
			Executed:        true,
			FilledQuantity:  quantity,
			ExecutedPrice:   currentPrice,
			Slippage:        slippage,
			SlippagePercent: slippagePercent,
			Status:          StatusFull,
		}, nil
	case StrategyPatient:
		return g.waitForBetterPrice(ctx, symbol, side, quantity, expectedPrice, cfg), nil
	default: // StrategySmart
		return smartPartial(quantity, expectedPrice), nil
	}
}

// waitForBetterPrice polls the quote source until the price comes back
// within the recovery band of the expected price, the deadline passes, or
// the context is cancelled. Timeout and cancellation both report FAILED with
// zero fill.
func (g *SlippageGuard) waitForBetterPrice(ctx context.Context, symbol string, side models.Side, quantity, expectedPrice float64, cfg SlippageConfig) ExecutionResult {
	timeLimit := cfg.TimeLimit
	if timeLimit <= 0 {
		timeLimit = g.cfg.TimeLimit
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = g.cfg.PollInterval
	}

	deadline := time.NewTimer(timeLimit)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failed := ExecutionResult{Status: StatusFailed}

	for {
		if tick, ok := g.quotes.LatestTick(symbol); ok {
			price := tick.Price
			recovered := (side == models.SideBuy && price < expectedPrice*(1+patientRecoveryBand)) ||
				(side == models.SideSell && price > expectedPrice*(1-patientRecoveryBand))
			if recovered {
				slippage := math.Abs(price - expectedPrice)
				return ExecutionResult{
					Executed:        true,
					FilledQuantity:  quantity,
					ExecutedPrice:   price,
					Slippage:        slippage,
					SlippagePercent: slippage / expectedPrice * 100,
					Status:          StatusFull,
				}
			}
		}

		select {
		case <-ctx.Done():
			g.log.Info("patient execution cancelled", zap.String("symbol", symbol))
			return failed
		case <-deadline.C:
			g.log.Info("patient execution timed out", zap.String("symbol", symbol))
			return failed
		case <-ticker.C:
		}
	}
}

// smartPartial fills 70% of the requested quantity at the expected price and
// leaves the remainder for the caller to re-queue.
func smartPartial(quantity, expectedPrice float64) ExecutionResult {
	return ExecutionResult{
		Executed:       true,
		FilledQuantity: math.Floor(quantity * 0.7),
		ExecutedPrice:  expectedPrice,
		Status:         StatusPartial,
	}
}
