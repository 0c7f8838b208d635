package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/models"
)

type fakeQuotes struct {
	tick models.Tick
	ok   bool
}

func (f *fakeQuotes) LatestTick(_ string) (models.Tick, bool) { return f.tick, f.ok }

// recoveringQuotes returns a stressed price for the first few polls, then a
// recovered one.
type recoveringQuotes struct {
	calls     int
	threshold int
	stressed  models.Tick
	recovered models.Tick
}

func (f *recoveringQuotes) LatestTick(_ string) (models.Tick, bool) {
	f.calls++
	if f.calls <= f.threshold {
		return f.stressed, true
	}
	return f.recovered, true
}

func newTestGuard(q QuoteSource) *SlippageGuard {
	return NewSlippageGuard(DefaultGuardConfig(), q, zap.NewNop())
}

func TestValidateWithinTolerance(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 100.1, Bid: 100.0, Ask: 100.2}, ok: true})

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: StrategyAggressive})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, 10.0, res.FilledQuantity)
	assert.Equal(t, 100.2, res.ExecutedPrice) // buys fill at the ask
	assert.InDelta(t, 0.2, res.SlippagePercent, 1e-9)
}

func TestValidateSellUsesBid(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 100, Bid: 99.8, Ask: 100.3}, ok: true})

	res, err := g.Validate(context.Background(), "BTC", models.SideSell, 5, 100, SlippageConfig{Strategy: StrategyAggressive})
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, 99.8, res.ExecutedPrice)
}

func TestAggressiveFillsThroughBreach(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true})

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: StrategyAggressive})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, 102.0, res.ExecutedPrice)
	assert.InDelta(t, 2.0, res.SlippagePercent, 1e-9)
}

func TestSmartFillsPartialAtExpectedPrice(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true})

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 101, 100, SlippageConfig{Strategy: StrategySmart})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 70.0, res.FilledQuantity) // floor(101 * 0.7)
	assert.Equal(t, 100.0, res.ExecutedPrice)
}

func TestPatientTimesOut(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true})

	start := time.Now()
	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{
		Strategy:     StrategyPatient,
		TimeLimit:    80 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Executed)
	assert.Zero(t, res.FilledQuantity)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestPatientFillsOnRecovery(t *testing.T) {
	quotes := &recoveringQuotes{
		threshold: 3,
		stressed:  models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102},
		recovered: models.Tick{Symbol: "BTC", Price: 100.2, Bid: 100.1, Ask: 100.3},
	}
	g := newTestGuard(quotes)

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{
		Strategy:     StrategyPatient,
		TimeLimit:    2 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, 100.2, res.ExecutedPrice)
	assert.Equal(t, 10.0, res.FilledQuantity)
}

func TestPatientCancellable(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := g.Validate(ctx, "BTC", models.SideBuy, 10, 100, SlippageConfig{
		Strategy:  StrategyPatient,
		TimeLimit: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardToleranceDefaultApplies(t *testing.T) {
	// 2% slippage breaches the standard 0.5% tolerance but not a guard
	// configured with a wider one; the per-order config leaves it zero.
	g := NewSlippageGuard(GuardConfig{MaxSlippagePercent: 3.0},
		&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true},
		zap.NewNop())

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: StrategySmart})
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, 10.0, res.FilledQuantity)
}

func TestGuardTimeLimitDefaultApplies(t *testing.T) {
	g := NewSlippageGuard(GuardConfig{
		TimeLimit:    60 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, &fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 102, Bid: 101.9, Ask: 102}, ok: true}, zap.NewNop())

	start := time.Now()
	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: StrategyPatient})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "guard deadline must override the 5s standard default")
}

func TestValidateNoMarketData(t *testing.T) {
	g := newTestGuard(&fakeQuotes{ok: false})

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: StrategyAggressive})
	require.NoError(t, err) // missing data is an outcome, not an error
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Executed)
}

func TestValidateUnknownStrategy(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 100, Bid: 99.9, Ask: 100.1}, ok: true})

	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 100, SlippageConfig{Strategy: "YOLO"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestValidateDollarCap(t *testing.T) {
	g := newTestGuard(&fakeQuotes{tick: models.Tick{Symbol: "BTC", Price: 10040, Bid: 10035, Ask: 10040}, ok: true})

	// 0.4% is inside the percent tolerance but breaches the dollar cap.
	res, err := g.Validate(context.Background(), "BTC", models.SideBuy, 10, 10000, SlippageConfig{
		Strategy:           StrategySmart,
		MaxSlippagePercent: 0.5,
		MaxSlippageDollars: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 7.0, res.FilledQuantity)
}
