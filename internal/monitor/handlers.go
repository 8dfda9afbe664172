package monitor

import (
	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
)

// ModifyEnvironmentRequest edits the monitored environment. The edit is only
// applied if ID names the environment and Revision equals its current
// revision; Append skips the revision check.
type ModifyEnvironmentRequest struct {
	ID       string                `json:"id"`
	Revision int                   `json:"revision"`
	Append   bool                  `json:"append"`
	Commands []environment.Command `json:"commands"`
}

// ModifyEnvironmentResponse reports whether the batch was applied and the
// environment revision afterwards.
type ModifyEnvironmentResponse struct {
	Success  bool `json:"success"`
	Revision int  `json:"revision"`
}

// ComputeContactResultVectorRequest asks for contacts at one joint state.
type ComputeContactResultVectorRequest struct {
	JointState JointState `json:"joint_state"`
}

// ComputeContactResultVectorResponse carries the contacts for the request.
type ComputeContactResultVectorResponse struct {
	Success bool                `json:"success"`
	Results ContactResultVector `json:"collision_result"`
}

// ModifyEnvironment applies req under the monitor lock. A stale or foreign
// request changes nothing and reports failure with the current revision.
// After an applied batch the manager is rebuilt with its configuration
// preserved and the monitor revision follows the environment.
func (m *ContactMonitor) ModifyEnvironment(req ModifyEnvironmentRequest) ModifyEnvironmentResponse {
	if m.setupErr != nil {
		monitoring.ModifyRequests.WithLabelValues(monitoring.ModifyFailed).Inc()
		return ModifyEnvironmentResponse{}
	}

	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.env.Revision()
	expected := req.Revision
	if req.Append {
		expected = current
	}
	if req.ID != s.env.Name() || expected != current {
		m.logf("rejecting modify for %q at revision %d: environment is %q at revision %d",
			req.ID, req.Revision, s.env.Name(), current)
		monitoring.ModifyRequests.WithLabelValues(monitoring.ModifyRejected).Inc()
		return ModifyEnvironmentResponse{Success: false, Revision: current}
	}

	ok := s.env.ApplyCommands(req.Commands)
	resp := ModifyEnvironmentResponse{Success: ok, Revision: s.env.Revision()}
	if !ok {
		monitoring.ModifyRequests.WithLabelValues(monitoring.ModifyFailed).Inc()
		return resp
	}
	monitoring.ModifyRequests.WithLabelValues(monitoring.ModifyApplied).Inc()

	if err := m.rebuildLocked(monitoring.RebuildModify); err != nil {
		// the loop retries on its next reconcile
		m.logf("rebuild after modify: %v", err)
		return resp
	}
	s.revision = resp.Revision
	monitoring.Revision.Set(float64(resp.Revision))
	return resp
}

// ComputeContactResultVector runs one contact test for the requested joint
// state on the current manager. It does not reconcile the manager with the
// environment revision and leaves the pending sample and monitor revision
// alone. A joint state the environment rejects yields an empty result.
func (m *ContactMonitor) ComputeContactResultVector(req ComputeContactResultVectorRequest) ComputeContactResultVectorResponse {
	if m.setupErr != nil {
		return ComputeContactResultVectorResponse{}
	}
	monitoring.Queries.Inc()

	s := m.state
	s.mu.Lock()
	results := m.computeLocked(req.JointState)
	revision := s.revision
	s.mu.Unlock()

	return ComputeContactResultVectorResponse{
		Success: true,
		Results: newResultVector(req.JointState.Stamp, revision, contact.Flatten(results), 0),
	}
}
