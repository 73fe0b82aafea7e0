package tuning

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// SavePlot renders the decision diagnostics to an image file: the swept
// loss points, the piecewise-constant segmented fit and a vertical rule at
// the chosen breakpoint. The format follows the file extension (.png,
// .pdf, .svg, ...).
func (d *Decision) SavePlot(path string) error {
	if len(d.LogLambdas) == 0 {
		return selgoErrors.NewModelError("Decision.SavePlot", "empty decision curve", selgoErrors.ErrEmptyData)
	}

	p := plot.New()
	p.Title.Text = "Loss vs log(lambda)"
	p.X.Label.Text = "log(lambda)"
	p.Y.Label.Text = "loss"

	pts := make(plotter.XYs, len(d.LogLambdas))
	for i := range d.LogLambdas {
		pts[i].X = d.LogLambdas[i]
		pts[i].Y = d.Losses[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return selgoErrors.Wrap(err, "build loss scatter")
	}

	fit := make(plotter.XYs, len(d.Fitted))
	for i := range d.Fitted {
		fit[i].X = d.LogLambdas[i]
		fit[i].Y = d.Fitted[i]
	}
	fitLine, err := plotter.NewLine(fit)
	if err != nil {
		return selgoErrors.Wrap(err, "build segmented fit line")
	}
	fitLine.Width = vg.Points(2)

	minLoss, maxLoss := d.Losses[0], d.Losses[0]
	for _, l := range d.Losses {
		if l < minLoss {
			minLoss = l
		}
		if l > maxLoss {
			maxLoss = l
		}
	}
	rule := plotter.XYs{
		{X: d.LogLambda, Y: minLoss},
		{X: d.LogLambda, Y: maxLoss},
	}
	ruleLine, err := plotter.NewLine(rule)
	if err != nil {
		return selgoErrors.Wrap(err, "build breakpoint rule")
	}
	ruleLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(scatter, fitLine, ruleLine)
	p.Legend.Add("loss", scatter)
	p.Legend.Add("segmented fit", fitLine)
	p.Legend.Add("chosen lambda", ruleLine)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return selgoErrors.Wrap(err, "save diagnostic plot")
	}
	return nil
}
