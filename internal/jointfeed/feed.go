package jointfeed

import (
	"context"
	"errors"

	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
)

// Sink accepts parsed samples, typically the joint state topic.
type Sink interface {
	Publish(monitor.JointState)
}

// Updater is the monitor's input.
type Updater interface {
	UpdateJointState(monitor.JointState)
}

// Feed reads lines from a serial mux and publishes parsed samples.
type Feed struct {
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock
	sink  Sink
	logf  func(format string, v ...interface{})
}

// NewFeed creates a feed. A nil clock uses the real clock.
func NewFeed(mux serialmux.SerialMuxInterface, clock timeutil.Clock, sink Sink) *Feed {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Feed{
		mux:   mux,
		clock: clock,
		sink:  sink,
		logf:  monitoring.Prefixed("JointFeed"),
	}
}

// Run publishes a sample for every parseable line until ctx is done or the
// mux closes. Unparseable lines are logged and dropped.
func (f *Feed) Run(ctx context.Context) error {
	id, lines := f.mux.Subscribe()
	defer f.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s, err := ParseLine(line, f.clock.Now())
			if errors.Is(err, ErrSkip) {
				continue
			}
			if err != nil {
				f.logf("dropping line: %v", err)
				continue
			}
			f.sink.Publish(s)
		}
	}
}

// Forward delivers every value of the joint state topic to u until ctx is
// done or the topic closes. Slow forwarding only ever skips to the newest
// sample, which matches the monitor's own last-write-wins input.
func Forward(ctx context.Context, t *topic.Latched[monitor.JointState], u Updater) error {
	id, samples := t.Subscribe()
	defer t.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			u.UpdateJointState(s)
		}
	}
}
