package contact

import "maps"

// MarginData holds the contact distance used by a manager: a default margin
// plus optional per-pair overrides. Values are copied on Clone so a captured
// margin is never aliased by the manager it came from.
type MarginData struct {
	defaultMargin float64
	pairs         map[PairKey]float64
}

// NewMarginData returns margin data with the given default and no overrides.
func NewMarginData(defaultMargin float64) MarginData {
	return MarginData{defaultMargin: defaultMargin}
}

// Default returns the default margin.
func (m MarginData) Default() float64 { return m.defaultMargin }

// SetDefault changes the default margin.
func (m *MarginData) SetDefault(v float64) { m.defaultMargin = v }

// SetPairMargin overrides the margin for one link pair.
func (m *MarginData) SetPairMargin(a, b string, v float64) {
	if m.pairs == nil {
		m.pairs = make(map[PairKey]float64)
	}
	m.pairs[MakePairKey(a, b)] = v
}

// PairMargin returns the override for (a, b) or the default.
func (m MarginData) PairMargin(a, b string) float64 {
	if v, ok := m.pairs[MakePairKey(a, b)]; ok {
		return v
	}
	return m.defaultMargin
}

// MaxMargin returns the largest margin that any pair can use.
func (m MarginData) MaxMargin() float64 {
	max := m.defaultMargin
	for _, v := range m.pairs {
		if v > max {
			max = v
		}
	}
	return max
}

// PairMargins returns a copy of the per-pair overrides.
func (m MarginData) PairMargins() map[PairKey]float64 {
	return maps.Clone(m.pairs)
}

// Clone returns a deep copy.
func (m MarginData) Clone() MarginData {
	return MarginData{defaultMargin: m.defaultMargin, pairs: maps.Clone(m.pairs)}
}

// Equal reports whether both default and overrides match.
func (m MarginData) Equal(o MarginData) bool {
	if m.defaultMargin != o.defaultMargin || len(m.pairs) != len(o.pairs) {
		return false
	}
	for k, v := range m.pairs {
		if ov, ok := o.pairs[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
