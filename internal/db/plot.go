package db

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	distanceColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	contactColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// renderDistancePlot writes a PNG of minimum distance per cycle with a mark
// on every cycle that reported at least one contact. Cycles are oldest first.
func renderDistancePlot(w io.Writer, cycles []Cycle, minutes int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Contact distance, last %d min (%d cycles)", minutes, len(cycles))
	p.X.Label.Text = "time (UTC)"
	p.Y.Label.Text = "min distance (m)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	p.Add(plotter.NewGrid())

	dist := make(plotter.XYs, 0, len(cycles))
	for _, c := range cycles {
		if c.MinDistance == nil {
			continue
		}
		dist = append(dist, plotter.XY{X: float64(c.Stamp.Unix()) + float64(c.Stamp.Nanosecond())/1e9, Y: *c.MinDistance})
	}
	if len(dist) == 0 {
		// keep the axes drawable when nothing was in range
		dist = append(dist, plotter.XY{})
	}

	line, err := plotter.NewLine(dist)
	if err != nil {
		return fmt.Errorf("distance line: %w", err)
	}
	line.Color = distanceColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("min distance", line)

	scatter, err := plotter.NewScatter(dist)
	if err != nil {
		return fmt.Errorf("contact marks: %w", err)
	}
	scatter.Color = contactColor
	scatter.Radius = vg.Points(1.5)
	p.Add(scatter)

	wt, err := p.WriterTo(12*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
