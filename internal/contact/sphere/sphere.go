// Package sphere implements contact.Manager by approximating each collision
// object with a set of spheres. It is exact for sphere geometry and a
// conservative stand-in for anything else.
package sphere

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/contact.monitor/internal/contact"
)

// Sphere is a collision sphere expressed in its link's frame.
type Sphere struct {
	Center r3.Vec  `json:"center" yaml:"center"`
	Radius float64 `json:"radius" yaml:"radius"`
}

// Object is a named collision object.
type Object struct {
	Name    string
	Spheres []Sphere
	Enabled bool
}

type object struct {
	spheres []Sphere
	enabled bool
	world   contact.Transform
}

// Manager is a discrete sphere-based contact manager.
type Manager struct {
	objects   map[string]*object
	names     []string
	active    []string
	activeSet map[string]bool
	margin    contact.MarginData
	allowed   contact.IsContactAllowedFn
}

var _ contact.Manager = (*Manager)(nil)

// NewManager creates a manager over objects. Every object starts active and
// at the identity pose; duplicate names are rejected.
func NewManager(objects []Object) (*Manager, error) {
	m := &Manager{
		objects:   make(map[string]*object, len(objects)),
		activeSet: make(map[string]bool, len(objects)),
	}
	for _, o := range objects {
		if o.Name == "" {
			return nil, fmt.Errorf("collision object has empty name")
		}
		if _, dup := m.objects[o.Name]; dup {
			return nil, fmt.Errorf("duplicate collision object %q", o.Name)
		}
		for i, s := range o.Spheres {
			if s.Radius < 0 {
				return nil, fmt.Errorf("collision object %q sphere %d has negative radius", o.Name, i)
			}
		}
		m.objects[o.Name] = &object{
			spheres: slices.Clone(o.Spheres),
			enabled: o.Enabled,
			world:   contact.Identity(),
		}
		m.names = append(m.names, o.Name)
	}
	sort.Strings(m.names)
	m.SetActiveCollisionObjects(m.names)
	return m, nil
}

// CollisionObjects returns the object names in sorted order.
func (m *Manager) CollisionObjects() []string {
	return slices.Clone(m.names)
}

func (m *Manager) ActiveCollisionObjects() []string {
	return slices.Clone(m.active)
}

func (m *Manager) SetActiveCollisionObjects(names []string) {
	m.active = slices.Clone(names)
	m.activeSet = make(map[string]bool, len(names))
	for _, n := range names {
		m.activeSet[n] = true
	}
}

func (m *Manager) CollisionMarginData() contact.MarginData {
	return m.margin.Clone()
}

func (m *Manager) SetCollisionMarginData(d contact.MarginData) {
	m.margin = d.Clone()
}

func (m *Manager) SetDefaultCollisionMargin(d float64) {
	m.margin.SetDefault(d)
}

func (m *Manager) IsContactAllowedFn() contact.IsContactAllowedFn {
	return m.allowed
}

func (m *Manager) SetIsContactAllowedFn(fn contact.IsContactAllowedFn) {
	m.allowed = fn
}

func (m *Manager) SetCollisionObjectsTransform(transforms map[string]contact.Transform) {
	for name, tf := range transforms {
		if o, ok := m.objects[name]; ok {
			o.world = tf
		}
	}
}

// needsCheck mirrors the usual broad-phase filter: both objects enabled,
// at least one active, pair not allowed to touch.
func (m *Manager) needsCheck(a, b string) bool {
	if !m.objects[a].enabled || !m.objects[b].enabled {
		return false
	}
	if !m.activeSet[a] && !m.activeSet[b] {
		return false
	}
	if m.allowed != nil && m.allowed(a, b) {
		return false
	}
	return true
}

func (m *Manager) ContactTest(t contact.TestType) (contact.ResultMap, error) {
	switch t {
	case contact.TestFirst, contact.TestClosest, contact.TestAll:
	default:
		return nil, fmt.Errorf("unsupported contact test type %v", t)
	}

	results := make(contact.ResultMap)
	for i, a := range m.names {
		for _, b := range m.names[i+1:] {
			if !m.needsCheck(a, b) {
				continue
			}
			margin := m.margin.PairMargin(a, b)
			oa, ob := m.objects[a], m.objects[b]
			for si, sa := range oa.spheres {
				for sj, sb := range ob.spheres {
					r, ok := sphereContact(a, b, si, sj, oa.world, ob.world, sa, sb, margin)
					if !ok {
						continue
					}
					switch t {
					case contact.TestFirst:
						results.Add(r)
						return results, nil
					case contact.TestClosest:
						k := contact.MakePairKey(a, b)
						if prev, seen := results[k]; !seen || r.Distance < prev[0].Distance {
							results[k] = []contact.Result{r}
						}
					case contact.TestAll:
						results.Add(r)
					}
				}
			}
		}
	}
	return results, nil
}

func sphereContact(a, b string, si, sj int, ta, tb contact.Transform, sa, sb Sphere, margin float64) (contact.Result, bool) {
	ca := ta.Apply(sa.Center)
	cb := tb.Apply(sb.Center)
	delta := r3.Sub(cb, ca)
	centres := r3.Norm(delta)
	dist := centres - sa.Radius - sb.Radius
	if dist > margin {
		return contact.Result{}, false
	}

	normal := r3.Vec{X: 1}
	if centres > 0 {
		normal = r3.Scale(1/centres, delta)
	}
	return contact.Result{
		LinkNames: [2]string{a, b},
		ShapeIDs:  [2]int{si, sj},
		Distance:  dist,
		NearestPoints: [2]r3.Vec{
			r3.Add(ca, r3.Scale(sa.Radius, normal)),
			r3.Sub(cb, r3.Scale(sb.Radius, normal)),
		},
		Normal: normal,
	}, true
}
