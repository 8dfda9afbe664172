// Package jointfeed turns joint state lines from a controller into monitor
// samples and forwards the joint state topic into the contact monitor.
package jointfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
)

// StampKey is the reserved CSV key carrying the sample time in Unix seconds.
const StampKey = "stamp"

// ErrSkip marks lines that carry no sample, such as comments.
var ErrSkip = errors.New("line carries no joint state")

type jsonSample struct {
	Name     []string   `json:"name"`
	Position []float64  `json:"position"`
	Stamp    *time.Time `json:"stamp,omitempty"`
}

// ParseLine decodes one controller line. Two formats are accepted:
//
//	{"name":["shoulder","elbow"],"position":[0.1,0.2],"stamp":"2026-05-01T12:00:00Z"}
//	shoulder=0.1,elbow=0.2,stamp=1777636800.5
//
// Samples without a stamp are stamped with now.
func ParseLine(line string, now time.Time) (monitor.JointState, error) {
	switch serialmux.ClassifyLine(line) {
	case serialmux.LineEmpty, serialmux.LineComment:
		return monitor.JointState{}, ErrSkip
	case serialmux.LineJSON:
		return parseJSON(line, now)
	case serialmux.LineCSV:
		return parseCSV(line, now)
	default:
		return monitor.JointState{}, fmt.Errorf("unrecognised joint state line %q", line)
	}
}

func parseJSON(line string, now time.Time) (monitor.JointState, error) {
	var js jsonSample
	if err := json.Unmarshal([]byte(line), &js); err != nil {
		return monitor.JointState{}, fmt.Errorf("failed to parse joint state JSON: %w", err)
	}
	if len(js.Name) != len(js.Position) {
		return monitor.JointState{}, fmt.Errorf("joint state has %d names and %d positions", len(js.Name), len(js.Position))
	}
	s := monitor.JointState{Names: js.Name, Positions: js.Position, Stamp: now}
	if js.Stamp != nil {
		s.Stamp = *js.Stamp
	}
	return s, nil
}

func parseCSV(line string, now time.Time) (monitor.JointState, error) {
	s := monitor.JointState{Stamp: now}
	for _, field := range strings.Split(line, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return monitor.JointState{}, fmt.Errorf("malformed joint state field %q", field)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return monitor.JointState{}, fmt.Errorf("joint %q: %w", key, err)
		}
		if key == StampKey {
			if !validStamp(v) {
				return monitor.JointState{}, fmt.Errorf("stamp %q is not a representable unix time", value)
			}
			sec, frac := math.Modf(v)
			s.Stamp = time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
			continue
		}
		s.Names = append(s.Names, key)
		s.Positions = append(s.Positions, v)
	}
	return s, nil
}

// maxStampSeconds keeps stamps within what time.Time.UnixNano can represent.
const maxStampSeconds = math.MaxInt64 / 1e9

func validStamp(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > -maxStampSeconds && v < maxStampSeconds
}
