package risk

import "math"

// Default option pricing assumptions.
const (
	DefaultOptionVolatility = 0.25
	DefaultRiskFreeRate     = 0.05
)

// Greeks holds the European call option sensitivities.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// CalculateGreeks approximates Black-Scholes greeks for a European call with
// the engine's assumed volatility. timeToExpiry is in years. Degenerate
// inputs yield zero greeks rather than an error.
func (e *Engine) CalculateGreeks(spot, strike, timeToExpiry, rate float64) Greeks {
	return BlackScholesGreeks(spot, strike, timeToExpiry, rate, DefaultOptionVolatility)
}

// BlackScholesGreeks computes delta, gamma, vega and theta using the
// standard closed forms.
func BlackScholesGreeks(spot, strike, timeToExpiry, rate, vol float64) Greeks {
	if spot <= 0 || strike <= 0 || timeToExpiry <= 0 || vol <= 0 {
		return Greeks{}
	}

	sqrtT := math.Sqrt(timeToExpiry)
	d1 := (math.Log(spot/strike) + (rate+0.5*vol*vol)*timeToExpiry) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	nd1 := normalCDF(d1)
	npd1 := (1 / math.Sqrt(2*math.Pi)) * math.Exp(-0.5*d1*d1)

	return Greeks{
		Delta: nd1,
		Gamma: npd1 / (spot * vol * sqrtT),
		Vega:  spot * npd1 * sqrtT / 100,
		Theta: -(spot*npd1*vol)/(2*sqrtT) - rate*strike*math.Exp(-rate*timeToExpiry)*normalCDF(d2),
	}
}

// normalCDF is the Abramowitz-Stegun rational polynomial approximation of
// the standard normal CDF. The constants are kept exactly as published to
// stay bit-for-bit consistent with existing dashboards.
func normalCDF(x float64) float64 {
	t := 1 / (1 + 0.2316419*math.Abs(x))
	d := 0.3989423 * math.Exp(-x*x/2)
	prob := d * t * (0.319381530 + t*(-0.356563782+t*(1.781477937+t*(-1.821255978+t*1.330274429))))
	if x >= 0 {
		return 1 - prob
	}
	return prob
}
