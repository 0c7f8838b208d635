// Package market ingests tick data and runs per-tick anomaly analysis.
package market

import (
	"sync"
	"time"

	"github.com/unifex/riskcore/pkg/models"
)

// DefaultHistorySize is the number of samples retained per symbol.
const DefaultHistorySize = 60

// History keeps bounded rolling price and volume samples per symbol. Once a
// buffer reaches capacity the oldest sample is evicted on append. Mutated
// only by the ingest path.
type History struct {
	mu       sync.RWMutex
	maxLen   int
	prices   map[string][]float64
	volumes  map[string][]float64
	lastSeen map[string]time.Time
}

// NewHistory creates a History retaining up to maxLen samples per symbol.
func NewHistory(maxLen int) *History {
	if maxLen <= 0 {
		maxLen = DefaultHistorySize
	}
	return &History{
		maxLen:   maxLen,
		prices:   make(map[string][]float64),
		volumes:  make(map[string][]float64),
		lastSeen: make(map[string]time.Time),
	}
}

// Record appends the tick's price and volume samples and refreshes the
// symbol's last-seen timestamp.
func (h *History) Record(t models.Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices[t.Symbol] = h.push(h.prices[t.Symbol], t.Price)
	h.volumes[t.Symbol] = h.push(h.volumes[t.Symbol], t.Volume)
	if t.Timestamp.After(h.lastSeen[t.Symbol]) {
		h.lastSeen[t.Symbol] = t.Timestamp
	}
}

// Observe refreshes a symbol's last-seen timestamp without recording a
// sample. The staleness check compares against this watermark.
func (h *History) Observe(symbol string, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts.After(h.lastSeen[symbol]) {
		h.lastSeen[symbol] = ts
	}
}

// RecordPrice appends a single price sample for a symbol.
func (h *History) RecordPrice(symbol string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices[symbol] = h.push(h.prices[symbol], price)
}

// RecordVolume appends a single volume sample for a symbol.
func (h *History) RecordVolume(symbol string, volume float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volumes[symbol] = h.push(h.volumes[symbol], volume)
}

func (h *History) push(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > h.maxLen {
		buf = buf[1:]
	}
	return buf
}

// PriceWindow returns a copy of the last k price samples, or fewer if the
// symbol has less history. Callers must treat len < k as "no signal".
func (h *History) PriceWindow(symbol string, k int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return window(h.prices[symbol], k)
}

// VolumeWindow returns a copy of the last k volume samples, or fewer.
func (h *History) VolumeWindow(symbol string, k int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return window(h.volumes[symbol], k)
}

// PriceLen returns the number of recorded price samples for a symbol.
func (h *History) PriceLen(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.prices[symbol])
}

// VolumeLen returns the number of recorded volume samples for a symbol.
func (h *History) VolumeLen(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.volumes[symbol])
}

// LastSeen reports when the most recent sample for a symbol was observed.
func (h *History) LastSeen(symbol string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ts, ok := h.lastSeen[symbol]
	return ts, ok
}

func window(buf []float64, k int) []float64 {
	if k > len(buf) {
		k = len(buf)
	}
	out := make([]float64, k)
	copy(out, buf[len(buf)-k:])
	return out
}
