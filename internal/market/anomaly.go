package market

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/metrics"
)

// Severity grades an anomaly finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is a structured anomaly report from a single check.
type Finding struct {
	Check    string   `json:"check"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`
}

// DetectorConfig holds the anomaly thresholds.
type DetectorConfig struct {
	PriceSpikeThreshold       float64       `yaml:"price_spike_threshold" json:"price_spike_threshold"`             // relative change vs 10-sample mean
	VolumeSpikeThreshold      float64       `yaml:"volume_spike_threshold" json:"volume_spike_threshold"`           // ratio vs 20-sample mean
	SpreadThreshold           float64       `yaml:"spread_threshold" json:"spread_threshold"`                       // (ask-bid)/bid
	StaleAfter                time.Duration `yaml:"stale_after" json:"stale_after"`                                 // no tick within this window => stale
	CorrelationBreakThreshold float64       `yaml:"correlation_break_threshold" json:"correlation_break_threshold"` // |actual-expected|
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PriceSpikeThreshold:       0.10,
		VolumeSpikeThreshold:      2.0,
		SpreadThreshold:           0.02,
		StaleAfter:                60 * time.Second,
		CorrelationBreakThreshold: 0.3,
	}
}

// Detector runs the per-tick anomaly checks over the shared tick history.
// Each check is independently callable and side-effect-free apart from
// recording the incoming sample as a pre-step.
type Detector struct {
	cfg     DetectorConfig
	history *History
	log     *zap.Logger
	now     func() time.Time
}

// NewDetector creates a Detector over the given history.
func NewDetector(cfg DetectorConfig, history *History, log *zap.Logger) *Detector {
	return &Detector{cfg: cfg, history: history, log: log, now: time.Now}
}

// History exposes the underlying tick history.
func (d *Detector) History() *History { return d.history }

// CheckPriceSpike records the price and compares it to the mean of the last
// 10 samples. Fewer than 10 samples means no signal.
func (d *Detector) CheckPriceSpike(symbol string, price float64) *Finding {
	d.history.RecordPrice(symbol, price)

	win := d.history.PriceWindow(symbol, 10)
	if len(win) < 10 {
		return nil
	}

	avg := mean(win)
	change := math.Abs(price-avg) / avg
	if change <= d.cfg.PriceSpikeThreshold {
		return nil
	}

	severity := SeverityMedium
	switch {
	case change > 0.20:
		severity = SeverityCritical
	case change > 0.15:
		severity = SeverityHigh
	}

	metrics.PriceSpikesDetected.WithLabelValues(symbol, string(severity)).Inc()
	d.log.Warn("price spike detected",
		zap.String("symbol", symbol),
		zap.Float64("change_percent", change*100),
		zap.String("severity", string(severity)))

	return &Finding{
		Check:    "price_spike",
		Reason:   fmt.Sprintf("Price spike: %.2f%% change in 60 seconds", change*100),
		Severity: severity,
	}
}

// CheckVolumeSpike records the volume and compares it to the mean of the
// last 20 samples. Fewer than 20 samples means no signal.
func (d *Detector) CheckVolumeSpike(symbol string, volume float64) *Finding {
	d.history.RecordVolume(symbol, volume)

	win := d.history.VolumeWindow(symbol, 20)
	if len(win) < 20 {
		return nil
	}

	avg := mean(win)
	if avg == 0 {
		return nil
	}
	ratio := volume / avg
	if ratio <= d.cfg.VolumeSpikeThreshold {
		return nil
	}

	severity := SeverityMedium
	switch {
	case ratio > 5.0:
		severity = SeverityCritical
	case ratio > 3.0:
		severity = SeverityHigh
	}

	metrics.VolumeAnomaliesDetected.WithLabelValues(symbol, string(severity)).Inc()
	d.log.Warn("volume anomaly detected",
		zap.String("symbol", symbol),
		zap.Float64("ratio", ratio),
		zap.String("severity", string(severity)))

	return &Finding{
		Check:    "volume_spike",
		Reason:   fmt.Sprintf("Volume anomaly: %.2fx average volume", ratio),
		Severity: severity,
	}
}

// CheckSpread flags a bid-ask spread wider than the configured threshold.
func (d *Detector) CheckSpread(symbol string, bid, ask float64) *Finding {
	if bid <= 0 {
		return nil
	}
	spread := (ask - bid) / bid
	if spread <= d.cfg.SpreadThreshold {
		return nil
	}

	d.log.Warn("wide bid-ask spread detected",
		zap.String("symbol", symbol),
		zap.Float64("spread_percent", spread*100))

	return &Finding{
		Check:    "spread",
		Reason:   fmt.Sprintf("Bid-ask spread too wide: %.2f%%", spread*100),
		Severity: SeverityMedium,
	}
}

// CheckStaleness flags a symbol whose latest recorded sample is older than
// the staleness window. A symbol with no samples at all yields no finding;
// absence of data degrades to "no anomaly".
func (d *Detector) CheckStaleness(symbol string) *Finding {
	last, ok := d.history.LastSeen(symbol)
	if !ok {
		return nil
	}
	if d.now().Sub(last) <= d.cfg.StaleAfter {
		return nil
	}

	d.log.Error("no recent market data", zap.String("symbol", symbol), zap.Time("last_seen", last))

	return &Finding{
		Check:    "connectivity",
		Reason:   "External exchange connectivity issue",
		Severity: SeverityHigh,
	}
}

// Stress derives a 0-100 stress score from the recorded price window:
// price range relative to the mean, scaled to percent.
func (d *Detector) Stress(symbol string) float64 {
	win := d.history.PriceWindow(symbol, 10)
	if len(win) < 2 {
		return 0
	}
	lo, hi := win[0], win[0]
	for _, p := range win[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	avg := mean(win)
	if avg == 0 {
		return 0
	}
	return math.Min(100, (hi-lo)/avg*100)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
