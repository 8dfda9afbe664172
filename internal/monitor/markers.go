package monitor

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// MarkerNamespace tags every contact marker.
const MarkerNamespace = "contact_monitor"

// MarkerType is the shape of a marker.
type MarkerType string

const (
	MarkerArrow MarkerType = "arrow"
	MarkerText  MarkerType = "text"
)

// Color is an RGBA colour with components in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

var (
	colorPenetrating = Color{R: 1, A: 1}
	colorWithinSafe  = Color{R: 1, G: 0.65, A: 1}
	colorClear       = Color{G: 1, A: 1}
)

// Marker is one visualization primitive expressed in FrameID.
type Marker struct {
	Namespace string     `json:"ns"`
	ID        int        `json:"id"`
	FrameID   string     `json:"frame_id"`
	Stamp     time.Time  `json:"stamp"`
	Type      MarkerType `json:"type"`
	Points    []r3.Vec   `json:"points,omitempty"`
	Position  r3.Vec     `json:"position"`
	Text      string     `json:"text,omitempty"`
	Scale     float64    `json:"scale"`
	Color     Color      `json:"color"`
}

// MarkerArray is the payload published on the markers topic.
type MarkerArray struct {
	Markers []Marker `json:"markers"`
}

const (
	arrowScale = 0.01
	textScale  = 0.03
)

// contactColor grades a contact against its safety distance.
func contactColor(distance, safety float64) Color {
	switch {
	case distance < 0:
		return colorPenetrating
	case distance < safety:
		return colorWithinSafe
	default:
		return colorClear
	}
}

// buildMarkers emits an arrow between the nearest points and a distance label
// for every contact that involves at least one of links. An empty links list
// keeps every contact. idCounter is advanced for each marker.
func buildMarkers(idCounter *int, frame string, stamp time.Time, links []string, contacts []ContactRecord) MarkerArray {
	var out MarkerArray
	for _, c := range contacts {
		if len(links) > 0 && !slices.Contains(links, c.LinkNames[0]) && !slices.Contains(links, c.LinkNames[1]) {
			continue
		}
		col := contactColor(c.Distance, c.SafetyDistance)
		a, b := c.NearestPoints[0], c.NearestPoints[1]

		out.Markers = append(out.Markers, Marker{
			Namespace: MarkerNamespace,
			ID:        *idCounter,
			FrameID:   frame,
			Stamp:     stamp,
			Type:      MarkerArrow,
			Points:    []r3.Vec{a, b},
			Scale:     arrowScale,
			Color:     col,
		})
		*idCounter++

		out.Markers = append(out.Markers, Marker{
			Namespace: MarkerNamespace,
			ID:        *idCounter,
			FrameID:   frame,
			Stamp:     stamp,
			Type:      MarkerText,
			Position:  r3.Scale(0.5, r3.Add(a, b)),
			Text:      fmt.Sprintf("%s|%s %.4f", c.LinkNames[0], c.LinkNames[1], c.Distance),
			Scale:     textScale,
			Color:     col,
		})
		*idCounter++
	}
	return out
}
