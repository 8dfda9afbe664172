package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/environment"
)

// JointState is one joint configuration sample from the feed.
type JointState struct {
	Names     []string  `json:"name"`
	Positions []float64 `json:"position"`
	Stamp     time.Time `json:"stamp"`
}

func (s JointState) clone() JointState {
	return JointState{
		Names:     slices.Clone(s.Names),
		Positions: slices.Clone(s.Positions),
		Stamp:     s.Stamp,
	}
}

// pendingSlot holds at most one unconsumed sample. A put overwrites any
// sample that has not been taken yet; samples are never queued.
type pendingSlot struct {
	sample JointState
	full   bool
}

// put stores s and reports whether an unconsumed sample was overwritten.
func (p *pendingSlot) put(s JointState) (superseded bool) {
	superseded = p.full
	p.sample = s
	p.full = true
	return superseded
}

// take empties the slot.
func (p *pendingSlot) take() (JointState, bool) {
	if !p.full {
		return JointState{}, false
	}
	s := p.sample
	p.sample = JointState{}
	p.full = false
	return s, true
}

// waitOutcome is the result of blocking for the next sample.
type waitOutcome int

const (
	waitSample waitOutcome = iota
	waitShutdown
)

// sharedState is every field the loop and the handlers share. All fields are
// read and written with mu held; cond is signalled when a sample arrives or
// shutdown starts.
type sharedState struct {
	mu   sync.Mutex
	cond *sync.Cond

	env      environment.Environment
	manager  contact.Manager
	revision int
	pending  pendingSlot
	shutdown bool
}

func newSharedState(env environment.Environment, manager contact.Manager) *sharedState {
	s := &sharedState{env: env, manager: manager}
	if env != nil {
		s.revision = env.Revision()
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// waitLocked blocks until a sample is pending or shutdown is requested.
// Spurious and shutdown wakeups both re-check the predicate; shutdown wins
// over a pending sample. mu must be held.
func (s *sharedState) waitLocked() waitOutcome {
	for !s.shutdown && !s.pending.full {
		s.cond.Wait()
	}
	if s.shutdown {
		return waitShutdown
	}
	return waitSample
}

// requestShutdown wakes every waiter. It is safe to call more than once.
func (s *sharedState) requestShutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
