package contact

import (
	"fmt"
	"slices"
)

// Snapshot is the manager configuration that must survive a rebuild:
// active links, margin data and the allowed-contact predicate.
type Snapshot struct {
	ActiveLinks      []string
	Margin           MarginData
	IsContactAllowed IsContactAllowedFn
}

// CaptureSnapshot copies the configuration out of m.
func CaptureSnapshot(m Manager) Snapshot {
	return Snapshot{
		ActiveLinks:      slices.Clone(m.ActiveCollisionObjects()),
		Margin:           m.CollisionMarginData().Clone(),
		IsContactAllowed: m.IsContactAllowedFn(),
	}
}

// ApplyTo writes the snapshot into m.
func (s Snapshot) ApplyTo(m Manager) {
	m.SetActiveCollisionObjects(slices.Clone(s.ActiveLinks))
	m.SetCollisionMarginData(s.Margin.Clone())
	m.SetIsContactAllowedFn(s.IsContactAllowed)
}

// Equal compares link order, margins and predicate identity.
func (s Snapshot) Equal(o Snapshot) bool {
	return slices.Equal(s.ActiveLinks, o.ActiveLinks) &&
		s.Margin.Equal(o.Margin) &&
		SameFn(s.IsContactAllowed, o.IsContactAllowed)
}

// Rebuild replaces old with a manager from newManager carrying old's
// configuration. old is left untouched.
func Rebuild(old Manager, newManager Factory) (Manager, error) {
	snap := CaptureSnapshot(old)
	m, err := newManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create contact manager: %w", err)
	}
	if m == nil {
		return nil, ErrNilManager
	}
	snap.ApplyTo(m)
	return m, nil
}
