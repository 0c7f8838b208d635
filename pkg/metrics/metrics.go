package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CircuitBreakerTrips counts circuit breaker trips by symbol and reason
var CircuitBreakerTrips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	},
	[]string{"symbol", "reason"},
)

// CircuitBreakerRecoveries counts circuit breaker recoveries by symbol
var CircuitBreakerRecoveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "circuit_breaker_recoveries_total",
		Help: "Total number of circuit breaker recoveries",
	},
	[]string{"symbol"},
)

// PriceSpikesDetected counts detected price spikes by symbol and severity
var PriceSpikesDetected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "price_spikes_detected_total",
		Help: "Total price spikes detected",
	},
	[]string{"symbol", "severity"},
)

// VolumeAnomaliesDetected counts detected volume anomalies by symbol and severity
var VolumeAnomaliesDetected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "volume_anomalies_detected_total",
		Help: "Total volume anomalies detected",
	},
	[]string{"symbol", "severity"},
)

// CorrelationBreaksDetected counts correlation breaks by symbol pair
var CorrelationBreaksDetected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "correlation_breaks_detected_total",
		Help: "Total correlation breaks detected",
	},
	[]string{"symbol1", "symbol2"},
)

// MarketStressLevel tracks the current market stress level (0-100) per symbol
var MarketStressLevel = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "market_stress_level",
		Help: "Current market stress level (0-100)",
	},
	[]string{"symbol"},
)

// PortfolioVaR95 tracks portfolio Value at Risk at 95% confidence per user
var PortfolioVaR95 = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "portfolio_risk_var_95",
		Help: "Portfolio Value at Risk (95% confidence)",
	},
	[]string{"user_id"},
)

// MarginRatio tracks the current margin usage ratio per user
var MarginRatio = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "margin_ratio",
		Help: "Current margin usage ratio",
	},
	[]string{"user_id"},
)

func init() {
	prometheus.MustRegister(
		CircuitBreakerTrips, CircuitBreakerRecoveries,
		PriceSpikesDetected, VolumeAnomaliesDetected, CorrelationBreaksDetected,
		MarketStressLevel, PortfolioVaR95, MarginRatio,
	)
}
