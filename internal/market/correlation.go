package market

import (
	"math"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/pkg/metrics"
)

// correlationWindow is the number of aligned samples used per pair.
const correlationWindow = 20

// Pair configures an expected correlation between two symbols. Read-only at
// runtime.
type Pair struct {
	A        string  `yaml:"a" json:"a"`
	B        string  `yaml:"b" json:"b"`
	Expected float64 `yaml:"expected" json:"expected"`
}

// CorrelationBreak reports an observed correlation deviating from its
// configured expectation. Advisory only: it never trips a circuit.
type CorrelationBreak struct {
	Symbol1   string  `json:"symbol1"`
	Symbol2   string  `json:"symbol2"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Intensity float64 `json:"intensity"`
}

// CheckCorrelationBreaks evaluates every configured pair with at least 20
// samples on each side. Pairs with zero variance on either leg are skipped.
func (d *Detector) CheckCorrelationBreaks(pairs []Pair) []CorrelationBreak {
	var breaks []CorrelationBreak
	for _, p := range pairs {
		a := d.history.PriceWindow(p.A, correlationWindow)
		b := d.history.PriceWindow(p.B, correlationWindow)
		if len(a) < correlationWindow || len(b) < correlationWindow {
			continue
		}

		actual, ok := pearson(a, b)
		if !ok {
			continue
		}

		intensity := math.Abs(actual - p.Expected)
		if intensity <= d.cfg.CorrelationBreakThreshold {
			continue
		}

		metrics.CorrelationBreaksDetected.WithLabelValues(p.A, p.B).Inc()
		d.log.Warn("correlation break detected",
			zap.String("symbol1", p.A),
			zap.String("symbol2", p.B),
			zap.Float64("expected", p.Expected),
			zap.Float64("actual", actual))

		breaks = append(breaks, CorrelationBreak{
			Symbol1:   p.A,
			Symbol2:   p.B,
			Expected:  p.Expected,
			Actual:    actual,
			Intensity: intensity,
		})
	}
	return breaks
}

// CorrelationMatrix computes the live pairwise correlations for the
// configured pairs. Pairs without enough history are omitted.
func (d *Detector) CorrelationMatrix(pairs []Pair) map[string]map[string]float64 {
	matrix := make(map[string]map[string]float64)
	set := func(s1, s2 string, c float64) {
		if matrix[s1] == nil {
			matrix[s1] = make(map[string]float64)
		}
		matrix[s1][s2] = c
	}

	for _, p := range pairs {
		a := d.history.PriceWindow(p.A, correlationWindow)
		b := d.history.PriceWindow(p.B, correlationWindow)
		if len(a) < correlationWindow || len(b) < correlationWindow {
			continue
		}
		c, ok := pearson(a, b)
		if !ok {
			continue
		}
		set(p.A, p.B, c)
		set(p.B, p.A, c)
	}
	return matrix
}

// pearson returns the Pearson correlation coefficient of two equal-length
// series. ok is false when either series has zero variance, where the
// coefficient is undefined.
func pearson(a, b []float64) (coeff float64, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0, false
	}

	meanA := mean(a[len(a)-n:])
	meanB := mean(b[len(b)-n:])

	var num, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[len(a)-n+i] - meanA
		db := b[len(b)-n+i] - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0, false
	}
	return num / math.Sqrt(varA*varB), true
}
