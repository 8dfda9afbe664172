package environment

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/contact/sphere"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
)

// Environment is the view of a kinematic environment used by the contact
// monitor. Implementations must be safe for concurrent use.
type Environment interface {
	// Name identifies the environment instance.
	Name() string
	// Revision counts structural edits applied so far.
	Revision() int
	// RootLinkName returns the root of the scene tree.
	RootLinkName() string
	// SetState moves the named joints.
	SetState(names []string, positions []float64) error
	// CurrentState returns the joint positions and link transforms.
	CurrentState() *State
	// ApplyCommands applies a batch of edits atomically.
	ApplyCommands(cmds []Command) bool
	// DiscreteContactManager builds a contact manager for the current scene.
	DiscreteContactManager() (contact.Manager, error)
}

var _ Environment = (*Env)(nil)

// scene is the copy-on-write part of an Env. Edit batches are applied to a
// clone and committed only if every command succeeds.
type scene struct {
	root      string
	links     map[string]Link
	joints    map[string]Joint
	positions map[string]float64
	allowed   *contact.AllowedCollisionMatrix
}

func (s *scene) clone() *scene {
	links := make(map[string]Link, len(s.links))
	for k, l := range s.links {
		l.Spheres = slices.Clone(l.Spheres)
		links[k] = l
	}
	return &scene{
		root:      s.root,
		links:     links,
		joints:    maps.Clone(s.joints),
		positions: maps.Clone(s.positions),
		allowed:   s.allowed.Clone(),
	}
}

// parentJoint returns the joint whose child is link.
func (s *scene) parentJoint(link string) (Joint, bool) {
	for _, j := range s.joints {
		if j.Child == link {
			return j, true
		}
	}
	return Joint{}, false
}

// Env is an in-memory kinematic environment. It is safe for concurrent use
// and may be shared between subsystems; every structural edit advances the
// revision.
type Env struct {
	mu       sync.RWMutex
	name     string
	revision int
	scene    *scene
	state    *State
}

// New returns an environment holding only the root link.
func New(name, root string) *Env {
	e := &Env{
		name: name,
		scene: &scene{
			root:      root,
			links:     map[string]Link{root: {Name: root}},
			joints:    make(map[string]Joint),
			positions: make(map[string]float64),
			allowed:   contact.NewAllowedCollisionMatrix(),
		},
	}
	e.state = computeState(e.scene)
	return e
}

// Name returns the environment identity.
func (e *Env) Name() string {
	return e.name
}

// Revision returns the number of edit commands applied so far.
func (e *Env) Revision() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// RootLinkName returns the root of the scene tree.
func (e *Env) RootLinkName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scene.root
}

// LinkNames returns all link names in sorted order.
func (e *Env) LinkNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := slices.Collect(maps.Keys(e.scene.links))
	sort.Strings(names)
	return names
}

// JointNames returns the names of movable joints in sorted order.
func (e *Env) JointNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	for n, j := range e.scene.joints {
		if j.Type != JointFixed {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// SetState moves the named joints. The update is all-or-nothing: a length
// mismatch or an unknown or fixed joint leaves the state untouched.
func (e *Env) SetState(names []string, positions []float64) error {
	if len(names) != len(positions) {
		return fmt.Errorf("%w: %d names, %d positions", ErrMalformedState, len(names), len(positions))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range names {
		j, ok := e.scene.joints[n]
		if !ok || j.Type == JointFixed {
			return fmt.Errorf("%w: %q", ErrUnknownJoint, n)
		}
	}
	for i, n := range names {
		e.scene.positions[n] = positions[i]
	}
	e.state = computeState(e.scene)
	return nil
}

// CurrentState returns a copy of the current kinematic state.
func (e *Env) CurrentState() *State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &State{
		Joints:         maps.Clone(e.state.Joints),
		LinkTransforms: maps.Clone(e.state.LinkTransforms),
	}
}

// isContactAllowed reads the live allowed collision matrix.
func (e *Env) isContactAllowed(a, b string) bool {
	e.mu.RLock()
	acm := e.scene.allowed
	e.mu.RUnlock()
	return acm.IsAllowed(a, b)
}

// DiscreteContactManager builds a contact manager over the current links,
// posed at the current state. All links start active with a zero margin and
// the environment's allowed collision matrix as predicate.
func (e *Env) DiscreteContactManager() (contact.Manager, error) {
	e.mu.RLock()
	objects := make([]sphere.Object, 0, len(e.scene.links))
	for _, l := range e.scene.links {
		objects = append(objects, sphere.Object{
			Name:    l.Name,
			Spheres: slices.Clone(l.Spheres),
			Enabled: !l.DisableCollision,
		})
	}
	transforms := maps.Clone(e.state.LinkTransforms)
	e.mu.RUnlock()

	m, err := sphere.NewManager(objects)
	if err != nil {
		return nil, fmt.Errorf("failed to build contact manager for %q: %w", e.name, err)
	}
	m.SetIsContactAllowedFn(e.isContactAllowed)
	m.SetCollisionObjectsTransform(transforms)
	return m, nil
}

// ApplyCommands applies a batch of edits atomically. On success the revision
// advances by len(cmds); on any failure nothing changes and false is returned.
func (e *Env) ApplyCommands(cmds []Command) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.scene.clone()
	for i, cmd := range cmds {
		if err := cmd.apply(next); err != nil {
			monitoring.Logf("[Environment] %s: command %d (%s) rejected: %v", e.name, i, cmd.Type, err)
			return false
		}
	}
	e.scene = next
	e.revision += len(cmds)
	e.state = computeState(e.scene)
	return true
}

// Describe returns a summary of the scene.
func (e *Env) Describe() Description {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d := Description{Name: e.name, Revision: e.revision, Root: e.scene.root}
	for _, n := range slices.Sorted(maps.Keys(e.scene.links)) {
		d.Links = append(d.Links, e.scene.links[n])
	}
	for _, n := range slices.Sorted(maps.Keys(e.scene.joints)) {
		d.Joints = append(d.Joints, e.scene.joints[n])
	}
	for _, k := range e.scene.allowed.Entries() {
		reason, _ := e.scene.allowed.Reason(k.A, k.B)
		d.AllowedCollisions = append(d.AllowedCollisions, AllowedCollision{Link1: k.A, Link2: k.B, Reason: reason})
	}
	return d
}

// computeState runs forward kinematics from the root.
func computeState(s *scene) *State {
	children := make(map[string][]Joint)
	for _, j := range s.joints {
		children[j.Parent] = append(children[j.Parent], j)
	}

	st := &State{
		Joints:         make(map[string]float64),
		LinkTransforms: map[string]contact.Transform{s.root: contact.Identity()},
	}
	for n, j := range s.joints {
		if j.Type != JointFixed {
			st.Joints[n] = s.positions[n]
		}
	}

	queue := []string{s.root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		world := st.LinkTransforms[parent]
		for _, j := range children[parent] {
			st.LinkTransforms[j.Child] = world.Compose(j.Origin.Transform()).Compose(j.motion(s.positions[j.Name]))
			queue = append(queue, j.Child)
		}
	}
	return st
}
