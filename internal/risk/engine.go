// Package risk computes per-user portfolio risk: VaR, margin, liquidation
// distance, option greeks and drawdown. Computations favor availability over
// strict correctness: missing price or position data degrades the affected
// figure to zero instead of failing the dashboard.
package risk

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/metrics"
	"github.com/unifex/riskcore/pkg/models"
)

// Config holds the risk model parameters.
type Config struct {
	AnnualVolatility  float64 `yaml:"annual_volatility" json:"annual_volatility"`
	DefaultMarginRate float64 `yaml:"default_margin_rate" json:"default_margin_rate"`
	OptionMarginRate  float64 `yaml:"option_margin_rate" json:"option_margin_rate"`
	WarningRatio      float64 `yaml:"warning_ratio" json:"warning_ratio"`
	LiquidationRatio  float64 `yaml:"liquidation_ratio" json:"liquidation_ratio"`
	DrawdownWindow    int     `yaml:"drawdown_window" json:"drawdown_window"`
}

// DefaultConfig returns the standard risk parameters.
func DefaultConfig() Config {
	return Config{
		AnnualVolatility:  0.15,
		DefaultMarginRate: 0.05,
		OptionMarginRate:  1.0,
		WarningRatio:      0.7,
		LiquidationRatio:  0.8,
		DrawdownWindow:    252,
	}
}

// LedgerSource supplies a consistent per-user account snapshot on demand.
type LedgerSource interface {
	Account(ctx context.Context, userID string) (models.AccountSnapshot, error)
}

// PriceSource supplies the latest recorded tick for a symbol.
type PriceSource interface {
	LatestTick(symbol string) (models.Tick, bool)
}

// PositionDetail is one dashboard row.
type PositionDetail struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Warning summarizes how close a user is to liquidation.
type Warning struct {
	MarginRatio                float64 `json:"margin_ratio"`
	IsWarning                  bool    `json:"is_warning"`
	IsDanger                   bool    `json:"is_danger"`
	Cushion                    float64 `json:"cushion_remaining"`
	LiquidationDistancePercent float64 `json:"liquidation_distance_percent"`
}

// Snapshot is the per-user risk dashboard. Recomputed wholesale each cycle
// and replaced atomically; never mutated incrementally.
type Snapshot struct {
	UserID          string             `json:"user_id"`
	VaR95           float64            `json:"portfolio_var_95"`
	VaR99           float64            `json:"portfolio_var_99"`
	MarginUsed      float64            `json:"margin_used"`
	MarginAvailable float64            `json:"margin_available"`
	MarginRatio     float64            `json:"margin_ratio"`
	// LiquidationPrice is display-only; margin ratio and cushion are the
	// authoritative signals.
	LiquidationPrice    float64            `json:"liquidation_price"`
	LiquidationDistance float64            `json:"liquidation_distance"`
	Positions           []PositionDetail   `json:"positions"`
	MaxDrawdown         float64            `json:"max_drawdown"`
	CurrentDrawdown     float64            `json:"current_drawdown"`
	StressTest          map[string]float64 `json:"stress_test"`
	ComputedAt          time.Time          `json:"computed_at"`
}

// Engine computes risk dashboards. Per-user evaluations are independent and
// safe to run in parallel.
type Engine struct {
	cfg    Config
	ledger LedgerSource
	prices PriceSource
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	balances map[string][]float64
}

// NewEngine creates a risk engine over the given ledger and price sources.
func NewEngine(cfg Config, ledger LedgerSource, prices PriceSource, log *zap.Logger) *Engine {
	if cfg.DrawdownWindow <= 0 {
		cfg.DrawdownWindow = 252
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		prices:   prices,
		log:      log,
		now:      time.Now,
		balances: make(map[string][]float64),
	}
}

// PortfolioVaR computes the parametric Value at Risk for a user at the given
// confidence level. An empty portfolio or ledger failure yields zero.
func (e *Engine) PortfolioVaR(ctx context.Context, userID string, confidence float64) float64 {
	snap, err := e.ledger.Account(ctx, userID)
	if err != nil {
		e.log.Warn("ledger unavailable, VaR degraded to zero", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	v := e.varFromSnapshot(snap, confidence)
	if confidence == 0.95 {
		metrics.PortfolioVaR95.WithLabelValues(userID).Set(v)
	}
	return v
}

func (e *Engine) varFromSnapshot(snap models.AccountSnapshot, confidence float64) float64 {
	if len(snap.Positions) == 0 {
		return 0
	}

	portfolioValue := 0.0
	for _, pos := range snap.Positions {
		qty := pos.Quantity.InexactFloat64()
		if qty <= 0 {
			continue
		}
		portfolioValue += qty * e.currentPrice(pos)
	}

	dailyVol := e.cfg.AnnualVolatility * math.Sqrt(1.0/252.0)
	return portfolioValue * zScore(confidence) * dailyVol
}

// MarginRequirement computes the required and available margin for a user.
func (e *Engine) MarginRequirement(ctx context.Context, userID string) (required, available float64) {
	snap, err := e.ledger.Account(ctx, userID)
	if err != nil {
		e.log.Warn("ledger unavailable, margin degraded to zero", zap.String("user_id", userID), zap.Error(err))
		return 0, 0
	}
	return e.marginFromSnapshot(snap)
}

func (e *Engine) marginFromSnapshot(snap models.AccountSnapshot) (required, available float64) {
	balance := snap.Balance.InexactFloat64()

	for _, pos := range snap.Positions {
		tick, ok := e.prices.LatestTick(pos.Symbol)
		if !ok {
			continue // no market price, position excluded from margin
		}
		notional := pos.Quantity.InexactFloat64() * tick.Price
		required += notional * e.marginRate(pos.Symbol)
	}

	available = math.Max(0, balance-required)
	if balance > 0 {
		metrics.MarginRatio.WithLabelValues(snap.UserID).Set(required / balance)
	}
	return required, available
}

func (e *Engine) marginRate(symbol string) float64 {
	if isOptionSymbol(symbol) {
		return e.cfg.OptionMarginRate
	}
	return e.cfg.DefaultMarginRate
}

// LiquidationWarning reports how close a user is to forced liquidation.
func (e *Engine) LiquidationWarning(ctx context.Context, userID string) Warning {
	snap, err := e.ledger.Account(ctx, userID)
	if err != nil {
		e.log.Warn("ledger unavailable, liquidation check degraded", zap.String("user_id", userID), zap.Error(err))
		return Warning{LiquidationDistancePercent: 100}
	}
	return e.warningFromSnapshot(snap)
}

func (e *Engine) warningFromSnapshot(snap models.AccountSnapshot) Warning {
	required, _ := e.marginFromSnapshot(snap)
	balance := snap.Balance.InexactFloat64()

	ratio := 0.0
	if balance > 0 {
		ratio = required / balance
	}

	return Warning{
		MarginRatio:                ratio,
		IsWarning:                  ratio > e.cfg.WarningRatio,
		IsDanger:                   ratio > e.cfg.LiquidationRatio,
		Cushion:                    balance - required,
		LiquidationDistancePercent: (e.cfg.LiquidationRatio - ratio) / e.cfg.LiquidationRatio * 100,
	}
}

// Dashboard assembles the full risk snapshot for a user from a single ledger
// read.
func (e *Engine) Dashboard(ctx context.Context, userID string) Snapshot {
	out := Snapshot{
		UserID:     userID,
		Positions:  []PositionDetail{},
		StressTest: map[string]float64{},
		ComputedAt: e.now(),
	}

	snap, err := e.ledger.Account(ctx, userID)
	if err != nil {
		e.log.Warn("ledger unavailable, dashboard degraded", zap.String("user_id", userID), zap.Error(err))
		return out
	}

	balance := snap.Balance.InexactFloat64()
	required, available := e.marginFromSnapshot(snap)

	out.VaR95 = e.varFromSnapshot(snap, 0.95)
	out.VaR99 = e.varFromSnapshot(snap, 0.99)
	metrics.PortfolioVaR95.WithLabelValues(userID).Set(out.VaR95)
	out.MarginUsed = required
	out.MarginAvailable = available
	if balance > 0 {
		out.MarginRatio = required / balance
	}
	if required > 0 {
		out.LiquidationPrice = balance / (required / (required + available))
	}
	out.LiquidationDistance = available

	for _, pos := range snap.Positions {
		qty := pos.Quantity.InexactFloat64()
		if qty <= 0 {
			continue
		}
		entry := pos.EntryPrice.InexactFloat64()
		current := e.currentPrice(pos)
		out.Positions = append(out.Positions, PositionDetail{
			Symbol:        pos.Symbol,
			Quantity:      qty,
			EntryPrice:    entry,
			CurrentPrice:  current,
			UnrealizedPnL: qty * (current - entry),
		})

		// Stress test: +/-10% market move per position
		out.StressTest[pos.Symbol+"_+10%"] = qty * entry * 0.1
		out.StressTest[pos.Symbol+"_-10%"] = -qty * entry * 0.1
	}

	e.recordBalance(userID, balance)
	out.MaxDrawdown, out.CurrentDrawdown = e.drawdowns(userID, balance)

	return out
}

func (e *Engine) currentPrice(pos models.Position) float64 {
	if tick, ok := e.prices.LatestTick(pos.Symbol); ok {
		return tick.Price
	}
	return pos.EntryPrice.InexactFloat64()
}

func (e *Engine) recordBalance(userID string, balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := append(e.balances[userID], balance)
	if len(buf) > e.cfg.DrawdownWindow {
		buf = buf[1:]
	}
	e.balances[userID] = buf
}

// drawdowns returns the max and current drawdown over the observed balance
// window: (max-min)/max and (max-latest)/max.
func (e *Engine) drawdowns(userID string, latest float64) (maxDD, currentDD float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := e.balances[userID]
	if len(buf) == 0 {
		return 0, 0
	}
	lo, hi := buf[0], buf[0]
	for _, b := range buf[1:] {
		lo = math.Min(lo, b)
		hi = math.Max(hi, b)
	}
	if hi <= 0 {
		return 0, 0
	}
	return (hi - lo) / hi, (hi - latest) / hi
}

func isOptionSymbol(symbol string) bool {
	return strings.Contains(symbol, "PUT") || strings.Contains(symbol, "CALL")
}

func zScore(confidence float64) float64 {
	switch confidence {
	case 0.90:
		return 1.28
	case 0.95:
		return 1.645
	case 0.99:
		return 2.326
	default:
		return 1.645
	}
}
