package logger

import (
	"fmt"
	"sync"
	"time"
)

// DefaultRecentCap is how many lines a Recent keeps.
const DefaultRecentCap = 500

// Recent keeps the last N human-readable activity lines for the /logs/feed
// tail. It is safe for concurrent use.
type Recent struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRecent creates a tail holding up to capacity lines.
func NewRecent(capacity int) *Recent {
	if capacity <= 0 {
		capacity = DefaultRecentCap
	}
	return &Recent{lines: make([]string, capacity)}
}

// Add appends a line, dropping the oldest when full.
func (r *Recent) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns up to the n most recent lines, oldest first.
func (r *Recent) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.lines)
	}
	n = min(n, size)
	if n <= 0 {
		return []string{}
	}
	out := make([]string, n)
	start := r.next - n
	for i := range out {
		out[i] = r.lines[(start+i+len(r.lines))%len(r.lines)]
	}
	return out
}

// ActivityLine formats one cycle for the tail:
// "[2024-03-01 09:00:00] [DOGEUSDT] BUY @ 0.08  rsi oversold".
func ActivityLine(ts time.Time, symbol, action string, price float64, detail string) string {
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format(time.DateTime), symbol, action)
	if price > 0 {
		line += fmt.Sprintf(" @ %.2f", price)
	}
	if detail != "" {
		line += "  " + detail
	}
	return line
}
