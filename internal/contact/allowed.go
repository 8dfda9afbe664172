package contact

import (
	"reflect"
	"sort"
	"sync"
)

// IsContactAllowedFn reports whether contact between two links is expected
// and must not be reported, e.g. adjacent links of a kinematic chain.
// A nil predicate allows nothing.
type IsContactAllowedFn func(link1, link2 string) bool

// SameFn reports whether two predicates are the same function value.
// Only the code pointer is compared: closures created from the same literal,
// and method values of the same method on different receivers, compare
// equal. Callers needing to tell such predicates apart must compare their
// behaviour.
func SameFn(a, b IsContactAllowedFn) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// AllowedCollisionMatrix records link pairs that may touch and why.
// It is safe for concurrent use; its Fn reads the live matrix, so edits made
// after a predicate was handed out are visible through that predicate.
type AllowedCollisionMatrix struct {
	mu      sync.RWMutex
	entries map[PairKey]string
}

// NewAllowedCollisionMatrix returns an empty matrix.
func NewAllowedCollisionMatrix() *AllowedCollisionMatrix {
	return &AllowedCollisionMatrix{entries: make(map[PairKey]string)}
}

// Add allows contact between a and b.
func (acm *AllowedCollisionMatrix) Add(a, b, reason string) {
	acm.mu.Lock()
	defer acm.mu.Unlock()
	acm.entries[MakePairKey(a, b)] = reason
}

// Remove disallows contact between a and b. It reports whether the pair was present.
func (acm *AllowedCollisionMatrix) Remove(a, b string) bool {
	acm.mu.Lock()
	defer acm.mu.Unlock()
	k := MakePairKey(a, b)
	if _, ok := acm.entries[k]; !ok {
		return false
	}
	delete(acm.entries, k)
	return true
}

// RemoveLink drops every entry that mentions link.
func (acm *AllowedCollisionMatrix) RemoveLink(link string) {
	acm.mu.Lock()
	defer acm.mu.Unlock()
	for k := range acm.entries {
		if k.A == link || k.B == link {
			delete(acm.entries, k)
		}
	}
}

// IsAllowed reports whether a and b may touch.
func (acm *AllowedCollisionMatrix) IsAllowed(a, b string) bool {
	acm.mu.RLock()
	defer acm.mu.RUnlock()
	_, ok := acm.entries[MakePairKey(a, b)]
	return ok
}

// Reason returns the recorded reason for an allowed pair.
func (acm *AllowedCollisionMatrix) Reason(a, b string) (string, bool) {
	acm.mu.RLock()
	defer acm.mu.RUnlock()
	r, ok := acm.entries[MakePairKey(a, b)]
	return r, ok
}

// Entries returns the allowed pairs in key order.
func (acm *AllowedCollisionMatrix) Entries() []PairKey {
	acm.mu.RLock()
	keys := make([]PairKey, 0, len(acm.entries))
	for k := range acm.entries {
		keys = append(keys, k)
	}
	acm.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Clone returns an independent copy.
func (acm *AllowedCollisionMatrix) Clone() *AllowedCollisionMatrix {
	acm.mu.RLock()
	defer acm.mu.RUnlock()
	c := NewAllowedCollisionMatrix()
	for k, v := range acm.entries {
		c.entries[k] = v
	}
	return c
}

// Fn returns a predicate backed by this matrix.
func (acm *AllowedCollisionMatrix) Fn() IsContactAllowedFn {
	return acm.IsAllowed
}
