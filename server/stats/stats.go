// Package stats provides lightweight local statistics over dialog
// sessions, suitable for a dashboard without an external monitoring stack.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Stats is a snapshot of session activity.
type Stats struct {
	TotalSessions  int64
	OpenSessions   int64
	ClosedSessions int64

	SessionsLastWeek  int64
	SessionsLastMonth int64

	// AverageSessionSeconds covers closed sessions only.
	AverageSessionSeconds int64

	UnreadAlerts int64
	TotalAlerts  int64

	LastSessionStart time.Time

	LastUpdated time.Time
}

// Collector collects session statistics on a fixed interval.
type Collector struct {
	store    *store.Store
	interval time.Duration

	mu    sync.RWMutex
	stats Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector. Collection does not start until Start
// is called.
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store:    st,
		interval: time.Hour,
		stop:     make(chan struct{}),
	}
}

// Start begins periodic collection, running one collection immediately.
func (c *Collector) Start(ctx context.Context) {
	c.Collect(ctx)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// GetStats returns the latest snapshot.
func (c *Collector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Collect refreshes the snapshot from the store.
func (c *Collector) Collect(ctx context.Context) {
	sessions, err := c.store.ListSessions(ctx, &store.FindSession{})
	if err != nil {
		return
	}

	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7).Unix()
	monthAgo := now.AddDate(0, -1, 0).Unix()

	snapshot := Stats{LastUpdated: now}

	var closedDurationTotal int64

	for _, session := range sessions {
		snapshot.TotalSessions++

		if session.IsOpen() {
			snapshot.OpenSessions++
		} else {
			snapshot.ClosedSessions++
			closedDurationTotal += *session.FinishedTs - session.StartedTs
		}

		if session.StartedTs >= weekAgo {
			snapshot.SessionsLastWeek++
		}

		if session.StartedTs >= monthAgo {
			snapshot.SessionsLastMonth++
		}

		started := time.Unix(session.StartedTs, 0)
		if started.After(snapshot.LastSessionStart) {
			snapshot.LastSessionStart = started
		}
	}

	if snapshot.ClosedSessions > 0 {
		snapshot.AverageSessionSeconds = closedDurationTotal / snapshot.ClosedSessions
	}

	if alerts, err := c.store.ListAlerts(ctx, &store.FindAlert{}); err == nil {
		for _, alert := range alerts {
			snapshot.TotalAlerts++

			if alert.IsUnread() {
				snapshot.UnreadAlerts++
			}
		}
	}

	c.mu.Lock()
	c.stats = snapshot
	c.mu.Unlock()
}
