// Package testutil provides shared test fixtures: a two-sphere scene with a
// single prismatic joint and a recording sink for published values.
package testutil

import (
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/contact.monitor/internal/contact/sphere"
	"github.com/banshee-data/contact.monitor/internal/environment"
)

// Pair scene names.
const (
	PairEnvName  = "pair"
	PairRootLink = "world"
	PairLinkA    = "A"
	PairLinkB    = "B"
	PairSlide    = "slide"
	PairRadius   = 0.1
)

// PairScene describes two spheres of radius PairRadius: A fixed at the
// origin and B on a prismatic joint along +X. At slide position q the signed
// distance between them is q - 2*PairRadius.
func PairScene() environment.SceneFile {
	return environment.SceneFile{
		Name: PairEnvName,
		Root: PairRootLink,
		Links: []environment.Link{
			{Name: PairRootLink},
			{Name: PairLinkA, Spheres: []sphere.Sphere{{Radius: PairRadius}}},
			{Name: PairLinkB, Spheres: []sphere.Sphere{{Radius: PairRadius}}},
		},
		Joints: []environment.Joint{
			{Name: "mount", Type: environment.JointFixed, Parent: PairRootLink, Child: PairLinkA},
			{Name: PairSlide, Type: environment.JointPrismatic, Parent: PairRootLink, Child: PairLinkB, Axis: r3.Vec{X: 1}},
		},
	}
}

// PairEnv builds the PairScene environment.
func PairEnv(t testing.TB) *environment.Env {
	t.Helper()
	env, err := environment.FromScene(PairScene())
	if err != nil {
		t.Fatalf("build pair scene: %v", err)
	}
	return env
}

// SlideFor returns the slide position that separates A and B by distance.
func SlideFor(distance float64) float64 {
	return distance + 2*PairRadius
}

// Recorder is a sink that keeps everything published to it.
type Recorder[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{notify: make(chan struct{}, 1)}
}

// Publish records v.
func (r *Recorder[T]) Publish(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// All returns a copy of everything recorded so far.
func (r *Recorder[T]) All() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// WaitFor blocks until at least n values were recorded and returns them. It
// fails the test after timeout.
func (r *Recorder[T]) WaitFor(t testing.TB, n int, timeout time.Duration) []T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if items := r.All(); len(items) >= n {
			return items
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d published values, got %d", n, r.Len())
			return nil
		}
	}
}
