package contact

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Result describes one contact between two links. Distance is signed:
// negative values are penetration depth.
type Result struct {
	LinkNames     [2]string `json:"link_names"`
	ShapeIDs      [2]int    `json:"shape_ids"`
	Distance      float64   `json:"distance"`
	NearestPoints [2]r3.Vec `json:"nearest_points"`
	Normal        r3.Vec    `json:"normal"`
}

// ResultMap groups contact results by link pair, in the order they were found.
type ResultMap map[PairKey][]Result

// Add appends r under its pair key.
func (m ResultMap) Add(r Result) {
	k := MakePairKey(r.LinkNames[0], r.LinkNames[1])
	m[k] = append(m[k], r)
}

// Count returns the total number of results.
func (m ResultMap) Count() int {
	n := 0
	for _, rs := range m {
		n += len(rs)
	}
	return n
}

// ResultVector is an ordered, flattened list of contact results.
type ResultVector []Result

// Flatten orders the map by pair key and concatenates each pair's results.
// The output is deterministic for a given map.
func Flatten(m ResultMap) ResultVector {
	keys := make([]PairKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make(ResultVector, 0, m.Count())
	for _, k := range keys {
		out = append(out, m[k]...)
	}
	return out
}

// Closest returns the result with the smallest distance.
func (v ResultVector) Closest() (Result, bool) {
	if len(v) == 0 {
		return Result{}, false
	}
	best := v[0]
	for _, r := range v[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best, true
}
