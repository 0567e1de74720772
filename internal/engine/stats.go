package engine

import (
	"sync/atomic"
	"time"
)

// Stats holds the process-wide analyzer counters. It is owned by the engine
// and passed by reference to whatever serves the statistics query.
type Stats struct {
	opportunitiesDetected atomic.Int64
	alertsSent            atomic.Int64
	startedAt             time.Time
}

// NewStats creates a Stats with the uptime origin set to now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now().UTC()}
}

// AddDetected increments the detected-opportunities counter by n.
func (s *Stats) AddDetected(n int) {
	s.opportunitiesDetected.Add(int64(n))
}

// AddAlertSent increments the sent-alerts counter. Only successful
// dispatches count.
func (s *Stats) AddAlertSent() {
	s.alertsSent.Add(1)
}

// Detected returns the total number of detected opportunities.
func (s *Stats) Detected() int64 {
	return s.opportunitiesDetected.Load()
}

// AlertsSent returns the total number of successfully dispatched alerts.
func (s *Stats) AlertsSent() int64 {
	return s.alertsSent.Load()
}

// UptimeHours returns the hours elapsed since the stats origin.
func (s *Stats) UptimeHours() float64 {
	return time.Since(s.startedAt).Hours()
}
