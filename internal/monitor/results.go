package monitor

import (
	"time"

	"github.com/banshee-data/contact.monitor/internal/contact"
)

// ContactRecord is one published contact.
type ContactRecord struct {
	contact.Result
	// SafetyDistance is the configured contact distance. Only the background
	// loop sets it; query responses leave it zero.
	SafetyDistance float64 `json:"safety_distance,omitempty"`
}

// ContactResultVector is one cycle's or one query's ordered contact set.
type ContactResultVector struct {
	Stamp    time.Time       `json:"stamp"`
	Revision int             `json:"revision"`
	Contacts []ContactRecord `json:"contacts"`
}

// MinDistance returns the smallest contact distance in the vector.
func (v ContactResultVector) MinDistance() (float64, bool) {
	if len(v.Contacts) == 0 {
		return 0, false
	}
	best := v.Contacts[0].Distance
	for _, c := range v.Contacts[1:] {
		if c.Distance < best {
			best = c.Distance
		}
	}
	return best, true
}

func newResultVector(stamp time.Time, revision int, results contact.ResultVector, safety float64) ContactResultVector {
	out := ContactResultVector{
		Stamp:    stamp,
		Revision: revision,
		Contacts: make([]ContactRecord, 0, len(results)),
	}
	for _, r := range results {
		out.Contacts = append(out.Contacts, ContactRecord{Result: r, SafetyDistance: safety})
	}
	return out
}

// ResultSink receives the contact set computed in each cycle. Sinks are
// expected to keep the last value for late subscribers.
type ResultSink interface {
	Publish(ContactResultVector)
}

// MarkerSink receives the visualization payload for each cycle.
type MarkerSink interface {
	Publish(MarkerArray)
}

type discardResults struct{}

func (discardResults) Publish(ContactResultVector) {}
