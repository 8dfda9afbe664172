package db

import (
	"context"
	"time"

	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
)

// Recorder persists every result vector published on a topic and prunes
// history older than the retention window.
type Recorder struct {
	db        *DB
	results   *topic.Latched[monitor.ContactResultVector]
	clock     timeutil.Clock
	retention time.Duration
	interval  time.Duration
	logf      func(format string, v ...interface{})
}

// NewRecorder creates a recorder. A zero retention keeps history forever.
func NewRecorder(db *DB, results *topic.Latched[monitor.ContactResultVector], clock timeutil.Clock, retention time.Duration) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := time.Minute
	if retention > 0 && retention/4 < interval {
		interval = max(retention/4, time.Second)
	}
	return &Recorder{
		db:        db,
		results:   results,
		clock:     clock,
		retention: retention,
		interval:  interval,
		logf:      monitoring.Prefixed("History"),
	}
}

// Run records until ctx is done or the topic closes.
func (r *Recorder) Run(ctx context.Context) error {
	id, ch := r.results.Subscribe()
	defer r.results.Unsubscribe(id)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case vec, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := r.db.RecordCycle(vec); err != nil {
				r.logf("failed to record cycle at revision %d: %v", vec.Revision, err)
			}
		case <-ticker.C():
			r.prune()
		}
	}
}

func (r *Recorder) prune() {
	if r.retention <= 0 {
		return
	}
	n, err := r.db.PruneBefore(r.clock.Now().Add(-r.retention))
	if err != nil {
		r.logf("prune failed: %v", err)
		return
	}
	if n > 0 {
		r.logf("pruned %d cycles older than %s", n, r.retention)
	}
}

// ModifyService is the monitor's modify handler.
type ModifyService interface {
	ModifyEnvironment(monitor.ModifyEnvironmentRequest) monitor.ModifyEnvironmentResponse
}

// AuditedMonitor records every modify request it forwards to the monitor.
type AuditedMonitor struct {
	*monitor.ContactMonitor
	db   *DB
	logf func(format string, v ...interface{})
}

var _ ModifyService = (*AuditedMonitor)(nil)

// NewAuditedMonitor wraps m so that modify requests are written to db.
func NewAuditedMonitor(m *monitor.ContactMonitor, db *DB) *AuditedMonitor {
	return &AuditedMonitor{ContactMonitor: m, db: db, logf: monitoring.Prefixed("History")}
}

// ModifyEnvironment forwards req and audits the outcome. An audit failure
// is logged and does not affect the response.
func (a *AuditedMonitor) ModifyEnvironment(req monitor.ModifyEnvironmentRequest) monitor.ModifyEnvironmentResponse {
	resp := a.ContactMonitor.ModifyEnvironment(req)
	if err := a.db.RecordModification(req, resp); err != nil {
		a.logf("failed to audit modify of %q: %v", req.ID, err)
	}
	return resp
}
