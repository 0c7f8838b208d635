package execution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/models"
)

type fakeVenues map[string][]models.VenueQuote

func (f fakeVenues) Quotes(symbol string) []models.VenueQuote { return f[symbol] }

func threeVenues() fakeVenues {
	return fakeVenues{
		"BTC": {
			{Venue: "BINANCE", Symbol: "BTC", Bid: 49500, Ask: 49510, Liquidity: 5000},
			{Venue: "COINBASE", Symbol: "BTC", Bid: 49495, Ask: 49515, Liquidity: 3000},
			{Venue: "KRAKEN", Symbol: "BTC", Bid: 49480, Ask: 49520, Liquidity: 2000},
		},
	}
}

func newTestRouter(v VenueSource) *Router {
	return NewRouter(v, zap.NewNop())
}

func TestFindBestExecutionPlans(t *testing.T) {
	r := newTestRouter(threeVenues())

	plans, err := r.FindBestExecution("BTC", 1000, models.SideBuy)
	require.NoError(t, err)
	require.Len(t, plans, 6) // 3 single-venue + 3 split legs

	for _, p := range plans {
		assert.NotEmpty(t, p.ID)
		assert.Greater(t, p.Quantity, 0.0)
		assert.LessOrEqual(t, p.EstimatedImpact, maxImpactPercent)
	}

	// Best price first for a buy.
	for i := 1; i < len(plans); i++ {
		assert.LessOrEqual(t, plans[i-1].EstimatedPrice, plans[i].EstimatedPrice)
	}
}

func TestSplitQuantitiesSumExactly(t *testing.T) {
	r := newTestRouter(threeVenues())

	plans, err := r.FindBestExecution("BTC", 1000, models.SideBuy)
	require.NoError(t, err)

	byVenue := map[string]float64{}
	total := 0.0
	for _, p := range plans {
		if strings.HasPrefix(p.Route, "SPLIT_") {
			byVenue[p.Venue] = p.Quantity
			total += p.Quantity
		}
	}

	// Liquidity shares 50/30/20; remainder lands on the last venue.
	assert.Equal(t, 500.0, byVenue["BINANCE"])
	assert.Equal(t, 300.0, byVenue["COINBASE"])
	assert.Equal(t, 200.0, byVenue["KRAKEN"])
	assert.Equal(t, 1000.0, total)
}

func TestFindBestExecutionSellSortsDescending(t *testing.T) {
	r := newTestRouter(threeVenues())

	plans, err := r.FindBestExecution("BTC", 1000, models.SideSell)
	require.NoError(t, err)

	for i := 1; i < len(plans); i++ {
		assert.GreaterOrEqual(t, plans[i-1].EstimatedPrice, plans[i].EstimatedPrice)
	}

	// Sells price off the bid, adjusted down for impact.
	assert.Less(t, plans[0].EstimatedPrice, 49500.0)
}

func TestMarketImpactCapped(t *testing.T) {
	assert.Equal(t, maxImpactPercent, marketImpact(10000, 100))
	assert.Equal(t, 100.0, marketImpact(10, 0))
	assert.InDelta(t, 0.1, marketImpact(1000, 5000), 1e-9)
}

func TestFindBestExecutionNoVenues(t *testing.T) {
	r := newTestRouter(fakeVenues{})

	_, err := r.FindBestExecution("BTC", 100, models.SideBuy)
	assert.ErrorIs(t, err, ErrNoVenues)
}

func TestSingleVenueSkipsSplit(t *testing.T) {
	r := newTestRouter(fakeVenues{
		"ETH": {{Venue: "BINANCE", Symbol: "ETH", Bid: 3000, Ask: 3001, Liquidity: 1000}},
	})

	plans, err := r.FindBestExecution("ETH", 100, models.SideBuy)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "SINGLE_VENUE_BINANCE", plans[0].Route)
}

func TestPredictBestRoute(t *testing.T) {
	r := newTestRouter(threeVenues())

	assert.Equal(t, "ROUTE_TO_BINANCE", r.PredictBestRoute("BTC"))
	assert.Equal(t, "DEFAULT", r.PredictBestRoute("DOGE"))
}

func TestEstimateExecutionCost(t *testing.T) {
	r := newTestRouter(threeVenues())

	cost, err := r.EstimateExecutionCost("BTC", 1000, models.SideBuy)
	require.NoError(t, err)
	assert.Greater(t, cost, 0.0)

	_, err = r.EstimateExecutionCost("DOGE", 1000, models.SideBuy)
	assert.ErrorIs(t, err, ErrNoVenues)
}

func TestEstimateExecutionCostUsesRequestedQuantity(t *testing.T) {
	r := newTestRouter(threeVenues())

	plans, err := r.FindBestExecution("BTC", 1000, models.SideBuy)
	require.NoError(t, err)
	best := plans[0]
	// The best plan here is a split leg carrying only part of the order.
	require.Less(t, best.Quantity, 1000.0)

	cost, err := r.EstimateExecutionCost("BTC", 1000, models.SideBuy)
	require.NoError(t, err)
	assert.InDelta(t, best.EstimatedPrice*1000*best.EstimatedImpact/100, cost, 1e-6)
}
