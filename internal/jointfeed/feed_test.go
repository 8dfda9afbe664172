package jointfeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
	"github.com/banshee-data/contact.monitor/internal/testutil"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	goleak.VerifyTestMain(m)
}

// lineMux hands out a single line channel that the test drives.
type lineMux struct {
	serialmux.SerialMuxInterface
	lines        chan string
	unsubscribed chan string
}

func newLineMux() *lineMux {
	return &lineMux{lines: make(chan string), unsubscribed: make(chan string, 1)}
}

func (m *lineMux) Subscribe() (string, chan string) { return "line", m.lines }
func (m *lineMux) Unsubscribe(id string)            { m.unsubscribed <- id }

type updater struct {
	mu      sync.Mutex
	samples []monitor.JointState
}

func (u *updater) UpdateJointState(s monitor.JointState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.samples = append(u.samples, s)
}

func (u *updater) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.samples)
}

func TestFeedPublishesParsedLines(t *testing.T) {
	mux := newLineMux()
	clock := timeutil.NewMockClock(now)
	rec := testutil.NewRecorder[monitor.JointState]()
	feed := NewFeed(mux, clock, rec)

	done := make(chan error, 1)
	go func() { done <- feed.Run(context.Background()) }()

	mux.lines <- "# hello"
	mux.lines <- "garbage"
	mux.lines <- "slide=0.25"
	rec.WaitFor(t, 1, 2*time.Second)
	clock.Advance(time.Second)
	mux.lines <- `{"name":["slide"],"position":[0.5]}`
	close(mux.lines)

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil after the mux closed", err)
	}
	got := rec.All()
	if len(got) != 2 {
		t.Fatalf("published %d samples, want 2", len(got))
	}
	if got[0].Positions[0] != 0.25 || !got[0].Stamp.Equal(now) {
		t.Errorf("first sample = %+v", got[0])
	}
	if got[1].Positions[0] != 0.5 || !got[1].Stamp.Equal(now.Add(time.Second)) {
		t.Errorf("second sample = %+v", got[1])
	}
	if id := <-mux.unsubscribed; id != "line" {
		t.Errorf("unsubscribed %q, want line", id)
	}
}

func TestFeedStopsOnContextCancel(t *testing.T) {
	mux := newLineMux()
	feed := NewFeed(mux, nil, testutil.NewRecorder[monitor.JointState]())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestFeedOverSerialMux(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	joints := topic.New[monitor.JointState]("/joint_states")
	defer joints.Close()
	id, ch := joints.Subscribe()
	defer joints.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feedDone := make(chan error, 1)
	monDone := make(chan error, 1)
	go func() { feedDone <- NewFeed(mux, timeutil.NewMockClock(now), joints).Run(ctx) }()
	go func() { monDone <- mux.Monitor(ctx) }()

	// lines written before the feed subscribes are dropped by the mux, so
	// keep writing until one arrives.
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for received := false; !received; {
		select {
		case s := <-ch:
			if len(s.Names) != 1 || s.Names[0] != "slide" {
				t.Fatalf("sample = %+v", s)
			}
			received = true
		case <-tick.C:
			port.AddReadData([]byte("slide=0.4\n"))
		case <-deadline:
			t.Fatal("no sample reached the joint state topic")
		}
	}

	cancel()
	mux.Close()
	<-feedDone
	<-monDone
}

func TestForwardDeliversTopicSamples(t *testing.T) {
	joints := topic.New[monitor.JointState]("/joint_states")
	joints.Publish(monitor.JointState{Names: []string{"slide"}, Positions: []float64{0.1}, Stamp: now})

	u := &updater{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Forward(ctx, joints, u) }()

	deadline := time.Now().Add(2 * time.Second)
	for u.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("latched sample was not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Forward returned %v, want context.Canceled", err)
	}
	joints.Close()
}

func TestForwardReturnsWhenTopicCloses(t *testing.T) {
	joints := topic.New[monitor.JointState]("/joint_states")
	done := make(chan error, 1)
	go func() { done <- Forward(context.Background(), joints, &updater{}) }()

	// Close before or after Subscribe both end with a closed channel.
	joints.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Forward returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not return after the topic closed")
	}
}
