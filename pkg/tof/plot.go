package tof

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	rawColor       = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	correctedColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func histogramPoints(h *Histogram) plotter.XYs {
	centers := h.BinCenters()
	points := make(plotter.XYs, len(centers))
	for i, center := range centers {
		points[i] = plotter.XY{X: center, Y: h.bins[i]}
	}
	return points
}

// SavePlot renders raw, and corrected when not nil, as step lines. The
// format follows the file extension.
func SavePlot(filename string, raw *Histogram, corrected *Histogram) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d bins)", raw.Name, raw.NBins())
	p.X.Label.Text = "Time of flight (ns)"
	p.Y.Label.Text = "Counts"

	rawLine, err := plotter.NewLine(histogramPoints(raw))
	if err != nil {
		return fmt.Errorf("error plotting %s: %w", raw.Name, err)
	}
	rawLine.StepStyle = plotter.MidStep
	rawLine.Color = rawColor
	rawLine.Width = vg.Points(1)
	p.Add(rawLine)
	p.Legend.Add("raw", rawLine)

	if corrected != nil {
		correctedLine, err := plotter.NewLine(histogramPoints(corrected))
		if err != nil {
			return fmt.Errorf("error plotting %s: %w", corrected.Name, err)
		}
		correctedLine.StepStyle = plotter.MidStep
		correctedLine.Color = correctedColor
		correctedLine.Width = vg.Points(1)
		p.Add(correctedLine)
		p.Legend.Add("dead time corrected", correctedLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, filename); err != nil {
		return fmt.Errorf("error saving plot %s: %w", filename, err)
	}
	return nil
}
