package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
)

// HealthStatus summarizes recent failure rates.
type HealthStatus struct {
	Healthy bool     `json:"healthy"`
	Reasons []string `json:"reasons,omitempty"`
}

// HealthTracker counts recent errors by kind over a rolling window. The
// system is unhealthy when any kind exceeds its threshold within the window.
type HealthTracker struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	events    map[apperrors.Kind][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewHealthTracker creates a tracker with the given rolling window and
// per-kind error threshold.
func NewHealthTracker(window time.Duration, threshold int) *HealthTracker {
	return &HealthTracker{
		window:    window,
		threshold: threshold,
		events:    make(map[apperrors.Kind][]time.Time),
		now:       time.Now,
	}
}

// Record notes an error occurrence. Nil errors are ignored.
func (h *HealthTracker) Record(err error) {
	if err == nil {
		return
	}
	kind := apperrors.KindOf(err)

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.events[kind] = append(h.prune(h.events[kind], now), now)
}

// Status aggregates error counts inside the window.
func (h *HealthTracker) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	var reasons []string
	for kind, times := range h.events {
		times = h.prune(times, now)
		h.events[kind] = times
		if len(times) >= h.threshold {
			reasons = append(reasons,
				fmt.Sprintf("%s: %d errors in last %s", kind, len(times), h.window))
		}
	}
	sort.Strings(reasons)

	return HealthStatus{
		Healthy: len(reasons) == 0,
		Reasons: reasons,
	}
}

// prune drops timestamps older than the window.
func (h *HealthTracker) prune(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-h.window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
