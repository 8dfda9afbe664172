package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/contact/sphere"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	goleak.VerifyTestMain(m)
}

const waitTimeout = 2 * time.Second

// trackingEnv records every manager it hands out and can hold the next
// contact test open until released.
type trackingEnv struct {
	environment.Environment

	mu       sync.Mutex
	managers []*trackingManager
	failNext bool

	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newTrackingEnv(t *testing.T) (*trackingEnv, *environment.Env) {
	t.Helper()
	inner := testutil.PairEnv(t)
	return &trackingEnv{
		Environment: inner,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}, inner
}

func (e *trackingEnv) DiscreteContactManager() (contact.Manager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext {
		e.failNext = false
		return nil, errors.New("no collision objects")
	}
	inner, err := e.Environment.DiscreteContactManager()
	if err != nil {
		return nil, err
	}
	m := &trackingManager{Manager: inner, env: e}
	e.managers = append(e.managers, m)
	return m, nil
}

func (e *trackingEnv) built() []*trackingManager {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*trackingManager(nil), e.managers...)
}

// holdNextTest makes the next ContactTest block until releaseTest.
func (e *trackingEnv) holdNextTest() {
	e.armed.Store(true)
}

func (e *trackingEnv) releaseTest() {
	close(e.release)
}

type trackingManager struct {
	contact.Manager
	env   *trackingEnv
	tests atomic.Int32
}

func (m *trackingManager) ContactTest(tt contact.TestType) (contact.ResultMap, error) {
	m.tests.Add(1)
	if m.env.armed.CompareAndSwap(true, false) {
		close(m.env.entered)
		<-m.env.release
	}
	return m.Manager.ContactTest(tt)
}

func pairConfig() monitor.Config {
	return monitor.Config{
		Namespace:       "ns",
		MonitoredLinks:  []string{testutil.PairLinkA, testutil.PairLinkB},
		TestType:        contact.TestAll,
		ContactDistance: 0.10,
		JointStateTopic: "/joint_states",
	}
}

func sampleAt(distance float64, stamp time.Time) monitor.JointState {
	return monitor.JointState{
		Names:     []string{testutil.PairSlide},
		Positions: []float64{testutil.SlideFor(distance)},
		Stamp:     stamp,
	}
}

// start runs the loop and returns a function that closes the monitor and
// waits for Run to return.
func start(t *testing.T, m *monitor.ContactMonitor) func() error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			m.Close()
			select {
			case runErr = <-done:
			case <-time.After(waitTimeout):
				runErr = errors.New("Run did not return after Close")
			}
		})
		return runErr
	}
	t.Cleanup(func() {
		if err := stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return stop
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func onlyPairDistance(t *testing.T, v monitor.ContactResultVector) float64 {
	t.Helper()
	if len(v.Contacts) != 1 {
		t.Fatalf("expected exactly one contact, got %d: %+v", len(v.Contacts), v.Contacts)
	}
	c := v.Contacts[0]
	if c.LinkNames != [2]string{testutil.PairLinkA, testutil.PairLinkB} {
		t.Errorf("LinkNames = %v, want [A B]", c.LinkNames)
	}
	return c.Distance
}

func TestPublishesContactWithSafetyDistance(t *testing.T) {
	env := testutil.PairEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)
	if err := m.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	start(t, m)

	stamp := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m.UpdateJointState(sampleAt(0.05, stamp))

	got := rec.WaitFor(t, 1, waitTimeout)[0]
	if d := onlyPairDistance(t, got); !approx(d, 0.05) {
		t.Errorf("distance = %v, want 0.05", d)
	}
	if got.Contacts[0].SafetyDistance != 0.10 {
		t.Errorf("SafetyDistance = %v, want 0.10", got.Contacts[0].SafetyDistance)
	}
	if !got.Stamp.Equal(stamp) {
		t.Errorf("Stamp = %v, want sample stamp %v", got.Stamp, stamp)
	}
}

func TestOnlyLatestPendingSampleIsComputed(t *testing.T) {
	env, _ := newTrackingEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)

	s1 := sampleAt(0.02, time.Unix(100, 0))
	s2 := sampleAt(0.08, time.Unix(101, 0))
	m.UpdateJointState(s1)
	m.UpdateJointState(s2)

	stop := start(t, m)
	got := rec.WaitFor(t, 1, waitTimeout)[0]
	if err := stop(); err != nil {
		t.Fatal(err)
	}

	if n := rec.Len(); n != 1 {
		t.Errorf("published %d result sets, want 1", n)
	}
	if n := env.built()[0].tests.Load(); n != 1 {
		t.Errorf("ran %d contact tests, want 1", n)
	}
	if !got.Stamp.Equal(s2.Stamp) {
		t.Errorf("published stamp %v, want the second sample's %v", got.Stamp, s2.Stamp)
	}
	if d := onlyPairDistance(t, got); !approx(d, 0.08) {
		t.Errorf("distance = %v, want 0.08 from the second sample", d)
	}
}

func TestLoopRebuildsManagerWhenRevisionAdvances(t *testing.T) {
	env, inner := newTrackingEnv(t)
	// three edits take the environment to revision 3
	if !inner.ApplyCommands([]environment.Command{
		environment.AddLinkCommand(
			environment.Link{Name: "C", Spheres: []sphere.Sphere{{Radius: 0.05}}},
			environment.Joint{Name: "c_mount", Type: environment.JointFixed, Parent: testutil.PairRootLink, Child: "C", Origin: environment.Pose{XYZ: [3]float64{0, 5, 0}}},
		),
		environment.AddAllowedCollisionCommand(testutil.PairLinkA, "C", "Never"),
		environment.RemoveAllowedCollisionCommand(testutil.PairLinkA, "C"),
	}) {
		t.Fatal("setup commands failed")
	}

	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)
	if m.Revision() != 3 {
		t.Fatalf("Revision() = %d, want 3", m.Revision())
	}

	first := env.built()[0]
	margins := first.CollisionMarginData()
	margins.SetPairMargin(testutil.PairLinkA, testutil.PairLinkB, 0.12)
	first.SetCollisionMarginData(margins)
	before := contact.CaptureSnapshot(first)

	// a link added outside the monitor bumps the revision to 4
	if !inner.ApplyCommands([]environment.Command{
		environment.AddLinkCommand(
			environment.Link{Name: "D"},
			environment.Joint{Name: "d_mount", Type: environment.JointFixed, Parent: testutil.PairRootLink, Child: "D"},
		),
	}) {
		t.Fatal("add link D failed")
	}

	stop := start(t, m)
	m.UpdateJointState(sampleAt(0.11, time.Unix(5, 0)))
	got := rec.WaitFor(t, 1, waitTimeout)[0]
	if err := stop(); err != nil {
		t.Fatal(err)
	}

	if m.Revision() != 4 {
		t.Errorf("Revision() = %d, want 4", m.Revision())
	}
	if got.Revision != 4 {
		t.Errorf("published Revision = %d, want 4", got.Revision)
	}
	managers := env.built()
	if len(managers) != 2 {
		t.Fatalf("built %d managers, want 2", len(managers))
	}
	after := contact.CaptureSnapshot(managers[1])
	if !after.Equal(before) {
		t.Errorf("snapshot changed across rebuild:\nbefore %+v\nafter  %+v", before, after)
	}
	// the pair override of 0.12 still catches a 0.11 separation
	if d := onlyPairDistance(t, got); !approx(d, 0.11) {
		t.Errorf("distance = %v, want 0.11", d)
	}
	if first.tests.Load() != 0 {
		t.Error("stale manager was used for the contact test")
	}
}

func TestModifyRejectsForeignEnvironment(t *testing.T) {
	env, inner := newTrackingEnv(t)
	m := monitor.New(pairConfig(), env, nil)

	resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{
		ID:       "someone_else",
		Revision: 0,
		Commands: []environment.Command{environment.RemoveLinkCommand(testutil.PairLinkB)},
	})
	if resp.Success {
		t.Error("Success = true for a foreign environment id")
	}
	if resp.Revision != 0 || inner.Revision() != 0 || m.Revision() != 0 {
		t.Errorf("revisions moved: response %d, env %d, monitor %d", resp.Revision, inner.Revision(), m.Revision())
	}
	if n := len(env.built()); n != 1 {
		t.Errorf("built %d managers, want the original only", n)
	}
	if diff := cmp.Diff([]string{testutil.PairLinkA, testutil.PairLinkB, testutil.PairRootLink}, inner.LinkNames()); diff != "" {
		t.Errorf("LinkNames changed (-want +got):\n%s", diff)
	}
}

func TestModifyAppliesBatchAndRebuilds(t *testing.T) {
	env, inner := newTrackingEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)
	before := contact.CaptureSnapshot(env.built()[0])

	resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{
		ID:     testutil.PairEnvName,
		Append: true,
		Commands: []environment.Command{
			environment.ChangeLinkCollisionEnabledCommand(testutil.PairRootLink, false),
			environment.AddAllowedCollisionCommand(testutil.PairRootLink, testutil.PairLinkA, "Adjacent"),
		},
	})
	if !resp.Success || resp.Revision != 2 {
		t.Fatalf("response = %+v, want success at revision 2", resp)
	}
	if m.Revision() != 2 || inner.Revision() != 2 {
		t.Errorf("monitor revision %d, env revision %d, want 2", m.Revision(), inner.Revision())
	}
	managers := env.built()
	if len(managers) != 2 {
		t.Fatalf("built %d managers, want 2", len(managers))
	}
	if after := contact.CaptureSnapshot(managers[1]); !after.Equal(before) {
		t.Errorf("snapshot changed across rebuild:\nbefore %+v\nafter  %+v", before, after)
	}

	// the loop must not rebuild again for a revision the handler already handled
	stop := start(t, m)
	m.UpdateJointState(sampleAt(0.05, time.Unix(1, 0)))
	rec.WaitFor(t, 1, waitTimeout)
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	if n := len(env.built()); n != 2 {
		t.Errorf("built %d managers after a cycle, want 2", n)
	}
}

func TestRebuildKeepsCustomAllowedPredicate(t *testing.T) {
	env, _ := newTrackingEnv(t)
	m := monitor.New(pairConfig(), env, nil)

	allowPair := func(a, b string) bool {
		return (a == testutil.PairLinkA && b == testutil.PairLinkB) ||
			(a == testutil.PairLinkB && b == testutil.PairLinkA)
	}
	env.built()[0].SetIsContactAllowedFn(allowPair)

	req := monitor.ComputeContactResultVectorRequest{JointState: sampleAt(0.03, time.Unix(7, 0))}
	if resp := m.ComputeContactResultVector(req); !resp.Success || len(resp.Results.Contacts) != 0 {
		t.Fatalf("before rebuild: %+v, want the allowed pair filtered", resp)
	}

	resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{
		ID:       testutil.PairEnvName,
		Append:   true,
		Commands: addProbes("far", 1),
	})
	if !resp.Success {
		t.Fatalf("modify failed: %+v", resp)
	}
	if n := len(env.built()); n != 2 {
		t.Fatalf("built %d managers, want 2", n)
	}

	if got := m.ComputeContactResultVector(req); !got.Success || len(got.Results.Contacts) != 0 {
		t.Errorf("after rebuild: %+v, want the allowed pair still filtered", got)
	}

	// the rebuilt manager still reports the pair once the predicate is cleared
	env.built()[1].SetIsContactAllowedFn(nil)
	if got := m.ComputeContactResultVector(req); len(got.Results.Contacts) != 1 {
		t.Errorf("without predicate: %d contacts, want 1", len(got.Results.Contacts))
	}
}

func TestModifyFailedBatchChangesNothing(t *testing.T) {
	env, inner := newTrackingEnv(t)
	m := monitor.New(pairConfig(), env, nil)

	resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{
		ID:       testutil.PairEnvName,
		Revision: 0,
		Commands: []environment.Command{
			environment.AddAllowedCollisionCommand(testutil.PairLinkA, testutil.PairLinkB, "Never"),
			environment.RemoveLinkCommand("ghost"),
		},
	})
	if resp.Success {
		t.Error("Success = true for a batch with an invalid command")
	}
	if resp.Revision != 0 || inner.Revision() != 0 || m.Revision() != 0 {
		t.Errorf("revisions moved: response %d, env %d, monitor %d", resp.Revision, inner.Revision(), m.Revision())
	}
	if n := len(env.built()); n != 1 {
		t.Errorf("built %d managers, want 1", n)
	}
}

func TestModifyKeepsRevisionWhenRebuildFails(t *testing.T) {
	env, inner := newTrackingEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)

	env.mu.Lock()
	env.failNext = true
	env.mu.Unlock()

	resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{
		ID:       testutil.PairEnvName,
		Revision: 0,
		Commands: []environment.Command{environment.AddAllowedCollisionCommand(testutil.PairLinkA, testutil.PairLinkB, "Never")},
	})
	if !resp.Success || resp.Revision != 1 {
		t.Fatalf("response = %+v, want success at revision 1", resp)
	}
	if m.Revision() != 0 {
		t.Errorf("monitor Revision() = %d, want 0 until a rebuild succeeds", m.Revision())
	}

	// the next cycle reconciles
	start(t, m)
	m.UpdateJointState(sampleAt(0.05, time.Unix(1, 0)))
	got := rec.WaitFor(t, 1, waitTimeout)[0]
	if got.Revision != inner.Revision() {
		t.Errorf("published revision %d, want %d", got.Revision, inner.Revision())
	}
	if len(got.Contacts) != 0 {
		t.Errorf("allowed pair was reported: %+v", got.Contacts)
	}
}

func TestComputeContactResultVectorIsIdempotent(t *testing.T) {
	env, _ := newTrackingEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)

	req := monitor.ComputeContactResultVectorRequest{JointState: sampleAt(0.03, time.Unix(42, 0))}
	first := m.ComputeContactResultVector(req)
	second := m.ComputeContactResultVector(req)

	if !first.Success {
		t.Fatal("Success = false")
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated query differs (-first +second):\n%s", diff)
	}
	if d := onlyPairDistance(t, first.Results); !approx(d, 0.03) {
		t.Errorf("distance = %v, want 0.03", d)
	}
	if first.Results.Contacts[0].SafetyDistance != 0 {
		t.Error("query results carry a safety distance")
	}

	// queries leave no pending sample behind
	stop := start(t, m)
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	if rec.Len() != 0 {
		t.Errorf("loop published %d result sets after queries only", rec.Len())
	}
}

func TestComputeContactResultVectorDoesNotReconcile(t *testing.T) {
	env, inner := newTrackingEnv(t)
	m := monitor.New(pairConfig(), env, nil)

	if !inner.ApplyCommands([]environment.Command{
		environment.AddAllowedCollisionCommand(testutil.PairLinkA, testutil.PairLinkB, "Never"),
	}) {
		t.Fatal("ApplyCommands failed")
	}

	resp := m.ComputeContactResultVector(monitor.ComputeContactResultVectorRequest{
		JointState: sampleAt(0.03, time.Unix(1, 0)),
	})
	if !resp.Success {
		t.Fatal("Success = false")
	}
	if resp.Results.Revision != 0 || m.Revision() != 0 {
		t.Errorf("query reconciled: response revision %d, monitor revision %d", resp.Results.Revision, m.Revision())
	}
	if n := len(env.built()); n != 1 {
		t.Errorf("built %d managers, want 1", n)
	}
}

func TestComputeContactResultVectorMalformedSample(t *testing.T) {
	m := monitor.New(pairConfig(), testutil.PairEnv(t), nil)

	resp := m.ComputeContactResultVector(monitor.ComputeContactResultVectorRequest{
		JointState: monitor.JointState{Names: []string{testutil.PairSlide}, Positions: []float64{1, 2}},
	})
	if !resp.Success {
		t.Error("Success = false for a malformed sample")
	}
	if len(resp.Results.Contacts) != 0 {
		t.Errorf("contacts = %+v, want none", resp.Results.Contacts)
	}
}

func TestQueryWaitsForRunningCompute(t *testing.T) {
	env, _ := newTrackingEnv(t)
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), env, rec)
	start(t, m)

	env.holdNextTest()
	m.UpdateJointState(sampleAt(0.02, time.Unix(1, 0)))
	select {
	case <-env.entered:
	case <-time.After(waitTimeout):
		t.Fatal("loop never reached the contact test")
	}

	answered := make(chan monitor.ComputeContactResultVectorResponse, 1)
	go func() {
		answered <- m.ComputeContactResultVector(monitor.ComputeContactResultVectorRequest{
			JointState: sampleAt(0.07, time.Unix(2, 0)),
		})
	}()

	select {
	case <-answered:
		t.Fatal("query ran while the loop held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	env.releaseTest()
	var resp monitor.ComputeContactResultVectorResponse
	select {
	case resp = <-answered:
	case <-time.After(waitTimeout):
		t.Fatal("query did not complete after the loop released the lock")
	}
	if d := onlyPairDistance(t, resp.Results); !approx(d, 0.07) {
		t.Errorf("query distance = %v, want 0.07", d)
	}
	if d := onlyPairDistance(t, rec.WaitFor(t, 1, waitTimeout)[0]); !approx(d, 0.02) {
		t.Errorf("loop distance = %v, want 0.02", d)
	}
}

func TestConcurrentQueriesSeeOneSampleEach(t *testing.T) {
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), testutil.PairEnv(t), rec)
	stop := start(t, m)

	const feedSamples = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range feedSamples {
			d := 0.02
			if i%2 == 1 {
				d = 0.08
			}
			m.UpdateJointState(sampleAt(d, time.Unix(int64(i), 0)))
		}
	}()

	errs := make(chan error, 4*50)
	for q := range 4 {
		want := 0.03 + 0.01*float64(q)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				resp := m.ComputeContactResultVector(monitor.ComputeContactResultVectorRequest{
					JointState: sampleAt(want, time.Unix(0, 0)),
				})
				if len(resp.Results.Contacts) != 1 || !approx(resp.Results.Contacts[0].Distance, want) {
					errs <- fmt.Errorf("query for %.2f got %+v", want, resp.Results.Contacts)
				}
			}
		}()
	}
	wg.Wait()
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for _, v := range rec.All() {
		d := onlyPairDistance(t, v)
		if !approx(d, 0.02) && !approx(d, 0.08) {
			t.Errorf("loop published distance %v from no single feed sample", d)
		}
	}
}

func TestMalformedSamplePublishesEmptySet(t *testing.T) {
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), testutil.PairEnv(t), rec)
	start(t, m)

	stamp := time.Unix(77, 0)
	m.UpdateJointState(monitor.JointState{Names: []string{"no_such_joint"}, Positions: []float64{1}, Stamp: stamp})
	got := rec.WaitFor(t, 1, waitTimeout)[0]
	if len(got.Contacts) != 0 {
		t.Errorf("contacts = %+v, want none", got.Contacts)
	}
	if !got.Stamp.Equal(stamp) {
		t.Errorf("Stamp = %v, want %v", got.Stamp, stamp)
	}

	// the loop keeps going
	m.UpdateJointState(sampleAt(0.05, time.Unix(78, 0)))
	if d := onlyPairDistance(t, rec.WaitFor(t, 2, waitTimeout)[1]); !approx(d, 0.05) {
		t.Errorf("distance = %v, want 0.05", d)
	}
}

func TestMarkersFollowResults(t *testing.T) {
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	markers := testutil.NewRecorder[monitor.MarkerArray]()
	m := monitor.New(pairConfig(), testutil.PairEnv(t), rec)
	start(t, m)

	m.UpdateJointState(sampleAt(0.5, time.Unix(1, 0)))
	rec.WaitFor(t, 1, waitTimeout)
	if markers.Len() != 0 {
		t.Fatal("markers published before StartPublishingMarkers")
	}

	m.StartPublishingMarkers(markers)
	stamp := time.Unix(2, 0)
	m.UpdateJointState(sampleAt(0.05, stamp))
	got := markers.WaitFor(t, 1, waitTimeout)[0]

	if len(got.Markers) != 2 {
		t.Fatalf("got %d markers, want arrow and text", len(got.Markers))
	}
	for i, mk := range got.Markers {
		if mk.ID != i || mk.Namespace != monitor.MarkerNamespace || mk.FrameID != testutil.PairRootLink || !mk.Stamp.Equal(stamp) {
			t.Errorf("marker %d header = %+v", i, mk)
		}
	}
	if got.Markers[0].Type != monitor.MarkerArrow || got.Markers[1].Type != monitor.MarkerText {
		t.Errorf("marker types = %s, %s", got.Markers[0].Type, got.Markers[1].Type)
	}
}

func TestInertMonitor(t *testing.T) {
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), nil, rec)

	if !errors.Is(m.Err(), monitor.ErrNilEnvironment) {
		t.Fatalf("Err() = %v, want ErrNilEnvironment", m.Err())
	}
	if err := m.Run(context.Background()); !errors.Is(err, monitor.ErrNilEnvironment) {
		t.Errorf("Run() = %v, want ErrNilEnvironment", err)
	}
	m.UpdateJointState(sampleAt(0.05, time.Unix(1, 0)))
	if resp := m.ModifyEnvironment(monitor.ModifyEnvironmentRequest{ID: testutil.PairEnvName, Append: true}); resp.Success {
		t.Error("inert monitor accepted a modify request")
	}
	if resp := m.ComputeContactResultVector(monitor.ComputeContactResultVectorRequest{}); resp.Success {
		t.Error("inert monitor answered a query")
	}
	m.Close()
	if rec.Len() != 0 {
		t.Error("inert monitor published results")
	}
}

func TestInertWhenManagerUnavailable(t *testing.T) {
	env, _ := newTrackingEnv(t)
	env.failNext = true
	m := monitor.New(pairConfig(), env, nil)
	if m.Err() == nil {
		t.Fatal("Err() = nil, want manager setup error")
	}
	if err := m.Run(context.Background()); err == nil {
		t.Error("Run() = nil on inert monitor")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := monitor.New(pairConfig(), testutil.PairEnv(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRejectsSecondLoop(t *testing.T) {
	rec := testutil.NewRecorder[monitor.ContactResultVector]()
	m := monitor.New(pairConfig(), testutil.PairEnv(t), rec)
	start(t, m)

	// a published cycle proves the first loop is running
	m.UpdateJointState(sampleAt(0.5, time.Unix(1, 0)))
	rec.WaitFor(t, 1, waitTimeout)

	if err := m.Run(context.Background()); !errors.Is(err, monitor.ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestNames(t *testing.T) {
	cfg := pairConfig()
	cfg.Namespace = "/cell_1/"
	want := monitor.Names{
		ContactResults:    "/cell_1/contact_results",
		ContactMarkers:    "/cell_1/contact_results_markers",
		ComputeContacts:   "/cell_1/compute_contact_results",
		ModifyEnvironment: "/cell_1/modify_environment",
		JointStates:       "/joint_states",
	}
	if diff := cmp.Diff(want, cfg.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}
