package monitor

import (
	"sync"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// AlertLog is the append-only in-memory record of admitted alerts.
type AlertLog struct {
	mu     sync.RWMutex
	alerts []models.AnomalyAlert
	total  int64
}

// NewAlertLog creates an empty log.
func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// Append records an alert. Alerts are immutable once appended.
func (l *AlertLog) Append(alert models.AnomalyAlert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, alert)
	l.total++
}

// Recent returns up to limit alerts, newest first. limit <= 0 returns all.
func (l *AlertLog) Recent(limit int) []models.AnomalyAlert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AnomalyAlert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.alerts[i])
	}
	return out
}

// ClearOlderThan purges alerts whose timestamp precedes the cutoff and
// returns how many were removed.
func (l *AlertLog) ClearOlderThan(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.alerts[:0]
	for _, a := range l.alerts {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(l.alerts) - len(kept)
	l.alerts = kept
	return removed
}

// Total returns the number of alerts ever appended, including purged ones.
func (l *AlertLog) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Len returns the number of retained alerts.
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
