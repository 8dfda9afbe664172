// Package monitor runs the contact monitor: a background loop that turns the
// latest joint state into published contact results, plus the synchronous
// modify-environment and compute-contact-results handlers.
//
// The environment, the contact manager, the monitor revision and the pending
// joint sample live in one sharedState guarded by a single mutex. The loop
// and both handlers only touch them while holding it, so they interleave
// only at lock boundaries.
package monitor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
)

var (
	// ErrNilEnvironment is the setup error for a monitor built without an environment.
	ErrNilEnvironment = errors.New("environment is nil")
	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("contact monitor is already running")
)

// Topic and service suffixes appended to "/<namespace>".
const (
	ContactResultsTopicSuffix        = "/contact_results"
	ContactMarkersTopicSuffix        = "/contact_results_markers"
	ComputeContactResultsServiceName = "/compute_contact_results"
	ModifyEnvironmentServiceName     = "/modify_environment"
)

// Config is fixed for the monitor's lifetime.
type Config struct {
	Namespace string
	// MonitoredLinks become the manager's active set. Empty keeps the
	// manager's own default.
	MonitoredLinks  []string
	TestType        contact.TestType
	ContactDistance float64
	JointStateTopic string
}

// Names is the set of topic and service names derived from a namespace.
type Names struct {
	ContactResults    string
	ContactMarkers    string
	ComputeContacts   string
	ModifyEnvironment string
	JointStates       string
}

// Names derives topic and service names from the namespace.
func (c Config) Names() Names {
	base := "/" + strings.Trim(c.Namespace, "/")
	return Names{
		ContactResults:    base + ContactResultsTopicSuffix,
		ContactMarkers:    base + ContactMarkersTopicSuffix,
		ComputeContacts:   base + ComputeContactResultsServiceName,
		ModifyEnvironment: base + ModifyEnvironmentServiceName,
		JointStates:       c.JointStateTopic,
	}
}

// ContactMonitor couples an environment with a contact manager and keeps
// contact results current as joint states arrive.
type ContactMonitor struct {
	cfg      Config
	setupErr error
	state    *sharedState
	results  ResultSink
	markers  atomic.Pointer[markerTarget]
	running  atomic.Bool
	closed   sync.Once
	logf     func(format string, v ...interface{})
}

type markerTarget struct {
	sink MarkerSink
}

// New builds a monitor over env. It never fails: if env is nil or cannot
// produce a contact manager the error is logged once, reported by Err and
// the monitor stays inert. results may be nil to drop cycle output.
func New(cfg Config, env environment.Environment, results ResultSink) *ContactMonitor {
	cfg.MonitoredLinks = slices.Clone(cfg.MonitoredLinks)
	if results == nil {
		results = discardResults{}
	}
	m := &ContactMonitor{
		cfg:     cfg,
		results: results,
		logf:    monitoring.Prefixed("ContactMonitor"),
	}

	manager, err := initialManager(cfg, env)
	if err != nil {
		m.setupErr = err
		m.logf("not setting up contact monitor: %v", err)
		m.state = newSharedState(nil, nil)
		return m
	}
	m.state = newSharedState(env, manager)
	monitoring.Revision.Set(float64(m.state.revision))
	return m
}

func initialManager(cfg Config, env environment.Environment) (contact.Manager, error) {
	if env == nil {
		return nil, ErrNilEnvironment
	}
	manager, err := env.DiscreteContactManager()
	if err != nil {
		return nil, fmt.Errorf("discrete contact manager: %w", err)
	}
	if manager == nil {
		return nil, fmt.Errorf("discrete contact manager: %w", contact.ErrNilManager)
	}
	if len(cfg.MonitoredLinks) > 0 {
		manager.SetActiveCollisionObjects(cfg.MonitoredLinks)
	}
	manager.SetDefaultCollisionMargin(cfg.ContactDistance)
	return manager, nil
}

// Err returns the setup error, or nil for a working monitor.
func (m *ContactMonitor) Err() error {
	return m.setupErr
}

// Config returns the construction-time configuration.
func (m *ContactMonitor) Config() Config {
	c := m.cfg
	c.MonitoredLinks = slices.Clone(c.MonitoredLinks)
	return c
}

// Revision returns the environment revision the current manager was built for.
func (m *ContactMonitor) Revision() int {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.revision
}

// UpdateJointState stores s as the pending sample, replacing any sample the
// loop has not taken yet, and wakes the loop. Rapid successive samples are not
// queued; only the newest one at drain time is processed.
func (m *ContactMonitor) UpdateJointState(s JointState) {
	if m.setupErr != nil {
		return
	}
	s = s.clone()

	m.state.mu.Lock()
	superseded := m.state.pending.put(s)
	m.state.mu.Unlock()
	m.state.cond.Signal()

	if superseded {
		monitoring.SamplesSuperseded.Inc()
	}
}

// StartPublishingMarkers enables marker output for subsequent cycles.
func (m *ContactMonitor) StartPublishingMarkers(sink MarkerSink) {
	if sink == nil {
		m.markers.Store(nil)
		return
	}
	m.markers.Store(&markerTarget{sink: sink})
}

// Close stops the background loop. A loop blocked waiting for a sample wakes
// and returns. Close does not touch the environment.
func (m *ContactMonitor) Close() {
	m.closed.Do(m.state.requestShutdown)
}
