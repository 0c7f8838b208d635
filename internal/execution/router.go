package execution

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/models"
)

// maxImpactPercent caps the linear market-impact model.
const maxImpactPercent = 5.0

// ErrNoVenues is returned when no venue quotes are available for a symbol.
var ErrNoVenues = errors.New("execution: no venue quotes available")

// ExecutionPlan is a transient routing proposal; produced per request, never
// stored.
type ExecutionPlan struct {
	ID              string  `json:"id"`
	Route           string  `json:"route"`
	Venue           string  `json:"venue"`
	Quantity        float64 `json:"quantity"`
	EstimatedPrice  float64 `json:"estimated_price"`
	EstimatedImpact float64 `json:"estimated_impact"`
}

// VenueSource supplies per-symbol venue quotes.
type VenueSource interface {
	Quotes(symbol string) []models.VenueQuote
}

// Router plans order execution across venues. Pure function of the venue
// snapshot; no persistent state.
type Router struct {
	venues VenueSource
	log    *zap.Logger
}

// NewRouter creates a router over the given venue source.
func NewRouter(venues VenueSource, log *zap.Logger) *Router {
	return &Router{venues: venues, log: log}
}

// FindBestExecution returns every execution plan for the order, best price
// first: one single-venue plan per venue plus, when more than one venue
// exists, a liquidity-weighted split whose quantities sum exactly to the
// requested total.
func (r *Router) FindBestExecution(symbol string, quantity float64, side models.Side) ([]ExecutionPlan, error) {
	venues := r.venues.Quotes(symbol)
	if len(venues) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVenues, symbol)
	}

	plans := make([]ExecutionPlan, 0, len(venues)+1)
	for _, v := range venues {
		plan := singleVenuePlan(v, quantity, side)
		plan.Route = "SINGLE_VENUE_" + v.Venue
		plans = append(plans, plan)
	}

	if len(venues) > 1 {
		plans = append(plans, splitPlans(venues, quantity, side)...)
	}

	sort.SliceStable(plans, func(i, j int) bool {
		if side == models.SideBuy {
			return plans[i].EstimatedPrice < plans[j].EstimatedPrice
		}
		return plans[i].EstimatedPrice > plans[j].EstimatedPrice
	})

	r.log.Info("execution routes computed",
		zap.String("symbol", symbol),
		zap.Float64("quantity", quantity),
		zap.Int("routes", len(plans)))

	return plans, nil
}

// PredictBestRoute picks the venue with the deepest liquidity. Falls back to
// DEFAULT when no quotes exist.
func (r *Router) PredictBestRoute(symbol string) string {
	venues := r.venues.Quotes(symbol)
	if len(venues) == 0 {
		return "DEFAULT"
	}
	best := venues[0]
	for _, v := range venues[1:] {
		if v.Liquidity > best.Liquidity {
			best = v
		}
	}
	return "ROUTE_TO_" + best.Venue
}

// EstimateExecutionCost estimates the impact cost of executing the full
// requested quantity at the best plan's price and impact.
func (r *Router) EstimateExecutionCost(symbol string, quantity float64, side models.Side) (float64, error) {
	plans, err := r.FindBestExecution(symbol, quantity, side)
	if err != nil {
		return 0, err
	}
	best := plans[0]
	return math.Abs(best.EstimatedPrice * quantity * best.EstimatedImpact / 100), nil
}

func singleVenuePlan(v models.VenueQuote, quantity float64, side models.Side) ExecutionPlan {
	price := v.Bid
	if side == models.SideBuy {
		price = v.Ask
	}

	impact := marketImpact(quantity, v.Liquidity)
	executed := price * (1 - impact/100)
	if side == models.SideBuy {
		executed = price * (1 + impact/100)
	}

	return ExecutionPlan{
		ID:              uuid.NewString(),
		Venue:           v.Venue,
		Quantity:        quantity,
		EstimatedPrice:  executed,
		EstimatedImpact: impact,
	}
}

// splitPlans distributes quantity proportionally to each venue's liquidity
// share. Rounding remainder goes to the last venue so the total is exact.
func splitPlans(venues []models.VenueQuote, quantity float64, side models.Side) []ExecutionPlan {
	totalLiquidity := 0.0
	for _, v := range venues {
		totalLiquidity += v.Liquidity
	}
	if totalLiquidity == 0 {
		return nil
	}

	plans := make([]ExecutionPlan, 0, len(venues))
	remaining := quantity
	for i, v := range venues {
		var allocated float64
		if i == len(venues)-1 {
			allocated = remaining
		} else {
			allocated = math.Floor(quantity * v.Liquidity / totalLiquidity)
		}
		if allocated <= 0 {
			continue
		}

		plan := singleVenuePlan(v, allocated, side)
		plan.Route = fmt.Sprintf("SPLIT_%d_OF_%d", i+1, len(venues))
		plans = append(plans, plan)
		remaining -= allocated
	}
	return plans
}

func marketImpact(quantity, liquidity float64) float64 {
	if liquidity == 0 {
		return 100 // no liquidity
	}
	return math.Min(quantity/liquidity*0.5, maxImpactPercent)
}
