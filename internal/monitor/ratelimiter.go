package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateWindow is the sliding interval over which per-metric alert admissions
// are counted.
const rateWindow = time.Minute

// RateLimiter suppresses alert storms: each metric gets a sliding one-minute
// admission window, and candidates beyond the cap are dropped and counted.
type RateLimiter struct {
	clock clock.Clock

	mu         sync.Mutex
	admissions map[string][]time.Time
	suppressed map[string]int64
	total      int64
}

// NewRateLimiter creates a limiter on the supplied clock.
func NewRateLimiter(clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		clock:      clk,
		admissions: make(map[string][]time.Time),
		suppressed: make(map[string]int64),
	}
}

// Allow reports whether a new alert for the metric may be admitted under the
// given per-minute cap, recording the admission or the suppression.
func (l *RateLimiter) Allow(metric string, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		maxPerMinute = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-rateWindow)

	recent := l.admissions[metric][:0]
	for _, ts := range l.admissions[metric] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= maxPerMinute {
		l.admissions[metric] = recent
		l.suppressed[metric]++
		l.total++
		return false
	}

	l.admissions[metric] = append(recent, now)
	return true
}

// Suppressed returns the total number of suppressed alerts.
func (l *RateLimiter) Suppressed() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// SuppressedByMetric returns a copy of the per-metric suppression counters.
func (l *RateLimiter) SuppressedByMetric() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int64, len(l.suppressed))
	for k, v := range l.suppressed {
		out[k] = v
	}
	return out
}
