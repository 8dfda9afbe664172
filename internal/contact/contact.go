// Package contact defines the discrete contact-test model used by the
// monitor: test types, margin data, the allowed-contact predicate, contact
// results and the Manager interface implemented by contact checkers.
package contact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilManager is returned when a manager factory yields no manager.
var ErrNilManager = errors.New("contact manager is nil")

// TestType selects how much a contact test reports.
type TestType int

const (
	// TestFirst stops after the first contact found.
	TestFirst TestType = iota
	// TestClosest keeps only the nearest contact for each link pair.
	TestClosest
	// TestAll keeps every contact for each link pair.
	TestAll
)

func (t TestType) String() string {
	switch t {
	case TestFirst:
		return "first"
	case TestClosest:
		return "closest"
	case TestAll:
		return "all"
	default:
		return fmt.Sprintf("TestType(%d)", int(t))
	}
}

// ParseTestType parses "first", "closest" or "all" (case-insensitive).
func ParseTestType(s string) (TestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first":
		return TestFirst, nil
	case "closest":
		return TestClosest, nil
	case "all":
		return TestAll, nil
	default:
		return 0, fmt.Errorf("unknown contact test type %q: expected first, closest or all", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t TestType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TestType) UnmarshalText(b []byte) error {
	v, err := ParseTestType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PairKey identifies an unordered link pair. A is always <= B.
type PairKey struct {
	A string
	B string
}

// MakePairKey orders the two names so that (a, b) and (b, a) share a key.
func MakePairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

func (k PairKey) String() string {
	return k.A + "|" + k.B
}

// Less orders keys by A then B.
func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}
