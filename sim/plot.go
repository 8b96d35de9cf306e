package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New2DPlot creates a plot of a tracked 2D trajectory from three data sources:
// truth:   true trajectory positions
// measure: measured positions
// track:   tracked i.e. filtered positions
// Each matrix stores one position per row with the x and y coordinates in the
// first two columns.
// It returns error if any of the matrices is nil or has fewer than 2 columns
// or if any of the scatter plots fails to be created.
func New2DPlot(truth, measure, track *mat.Dense) (*plot.Plot, error) {
	if truth == nil || measure == nil || track == nil {
		return nil, fmt.Errorf("invalid plot data supplied")
	}

	for _, m := range []*mat.Dense{truth, measure, track} {
		if _, c := m.Dims(); c < 2 {
			return nil, fmt.Errorf("invalid plot data dimensions: %d", c)
		}
	}

	p := plot.New()

	p.Title.Text = "Track"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthScatter, err := plotter.NewScatter(makePoints(truth))
	if err != nil {
		return nil, err
	}
	truthScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthScatter.Shape = draw.PyramidGlyph{}
	truthScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(truthScatter)
	p.Legend.Add("truth", truthScatter)

	measScatter, err := plotter.NewScatter(makePoints(measure))
	if err != nil {
		return nil, err
	}
	measScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	measScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(measScatter)
	p.Legend.Add("measured", measScatter)

	trackScatter, err := plotter.NewScatter(makePoints(track))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	trackScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169}
	trackScatter.Shape = draw.CrossGlyph{}
	trackScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(trackScatter)
	p.Legend.Add("tracked", trackScatter)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}
