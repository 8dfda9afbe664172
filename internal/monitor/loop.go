package monitor

import (
	"context"
	"time"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
)

// cycle is what one COMPUTE step hands to PUBLISH.
type cycle struct {
	sample   JointState
	revision int
	root     string
	results  contact.ResultMap
}

// Run executes the background loop until Close is called or ctx is done.
// Per cycle it waits for a sample, rebuilds the manager if the environment
// revision moved, takes the pending sample, runs one contact test and then
// publishes outside the lock. Compute failures publish an empty set and the
// loop carries on.
func (m *ContactMonitor) Run(ctx context.Context) error {
	if m.setupErr != nil {
		return m.setupErr
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	stop := context.AfterFunc(ctx, m.Close)
	defer stop()

	m.logf("publishing contact results on %s", m.cfg.Names().ContactResults)
	for {
		c, outcome := m.step()
		if outcome == waitShutdown {
			m.logf("contact loop stopped")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if c != nil {
			m.publish(c)
		}
	}
}

// step runs WAIT, RECONCILE, DRAIN and COMPUTE with the lock held. A nil
// cycle with waitSample means the slot was empty after waking.
func (m *ContactMonitor) step() (*cycle, waitOutcome) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waitLocked() == waitShutdown {
		return nil, waitShutdown
	}
	m.reconcileLocked()

	sample, ok := s.pending.take()
	if !ok {
		return nil, waitSample
	}
	return &cycle{
		sample:   sample,
		revision: s.revision,
		root:     s.env.RootLinkName(),
		results:  m.computeLocked(sample),
	}, waitSample
}

// reconcileLocked rebuilds the manager when the environment revision differs
// from the one the manager was built for. A failed rebuild keeps the old
// manager and revision so the next cycle retries.
func (m *ContactMonitor) reconcileLocked() {
	s := m.state
	current := s.env.Revision()
	if current == s.revision {
		return
	}
	if err := m.rebuildLocked(monitoring.RebuildRevision); err != nil {
		m.logf("revision %d -> %d: %v", s.revision, current, err)
		return
	}
	s.revision = current
	monitoring.Revision.Set(float64(current))
}

// rebuildLocked swaps in a fresh manager carrying the old configuration.
func (m *ContactMonitor) rebuildLocked(reason string) error {
	s := m.state
	next, err := contact.Rebuild(s.manager, s.env.DiscreteContactManager)
	if err != nil {
		return err
	}
	s.manager = next
	monitoring.ManagerRebuilds.WithLabelValues(reason).Inc()
	return nil
}

// computeLocked poses the environment at sample and runs one contact test.
// Any failure is logged and yields an empty result map.
func (m *ContactMonitor) computeLocked(sample JointState) contact.ResultMap {
	start := time.Now()
	defer func() { monitoring.ComputeSeconds.Observe(time.Since(start).Seconds()) }()

	s := m.state
	if err := s.env.SetState(sample.Names, sample.Positions); err != nil {
		m.logf("ignoring joint state: %v", err)
		monitoring.ComputeAnomalies.Inc()
		return contact.ResultMap{}
	}
	st := s.env.CurrentState()
	s.manager.SetCollisionObjectsTransform(st.LinkTransforms)

	results, err := s.manager.ContactTest(m.cfg.TestType)
	if err != nil {
		m.logf("contact test failed: %v", err)
		monitoring.ComputeAnomalies.Inc()
		return contact.ResultMap{}
	}
	return results
}

// publish flattens the cycle's results, attaches the safety distance and
// hands them to the sinks. It runs without the lock.
func (m *ContactMonitor) publish(c *cycle) {
	flat := contact.Flatten(c.results)
	vec := newResultVector(c.sample.Stamp, c.revision, flat, m.cfg.ContactDistance)
	m.results.Publish(vec)

	monitoring.CyclesTotal.Inc()
	monitoring.ContactsPublished.Add(float64(len(vec.Contacts)))

	if t := m.markers.Load(); t != nil {
		idCounter := 0
		t.sink.Publish(buildMarkers(&idCounter, c.root, c.sample.Stamp, m.cfg.MonitoredLinks, vec.Contacts))
	}
}
