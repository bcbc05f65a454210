package portfolio

import "sync"

// DrawdownTracker follows peak equity and the drawdown from it.
type DrawdownTracker struct {
	mu          sync.RWMutex
	peak        float64
	current     float64
	maxDrawdown float64
}

// Observe records a mark-to-market equity value and returns the current
// drawdown percentage (0-100).
func (d *DrawdownTracker) Observe(equity float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = equity
	if equity > d.peak {
		d.peak = equity
	}
	dd := d.drawdownLocked()
	if dd > d.maxDrawdown {
		d.maxDrawdown = dd
	}
	return dd
}

func (d *DrawdownTracker) drawdownLocked() float64 {
	if d.peak <= 0 {
		return 0
	}
	return (d.peak - d.current) / d.peak * 100
}

// DrawdownStatus is a point-in-time view of the tracker.
type DrawdownStatus struct {
	Equity         float64 `json:"equity"`
	PeakEquity     float64 `json:"peak_equity"`
	DrawdownPct    float64 `json:"drawdown_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Status returns the current peak, drawdown and worst drawdown seen.
func (d *DrawdownTracker) Status() DrawdownStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DrawdownStatus{
		Equity:         d.current,
		PeakEquity:     d.peak,
		DrawdownPct:    d.drawdownLocked(),
		MaxDrawdownPct: d.maxDrawdown,
	}
}
