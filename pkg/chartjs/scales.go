package chartjs

import (
	"math"

	"gonum.org/v1/plot"
)

// logBaseline is where bars start on a logarithmic value axis.
const logBaseline = 1.0

// logAxes reports which of the first x and y axes are logarithmic.
func (c *Chart) logAxes() (x, y bool) {
	s := c.options().Scales
	x = len(s.XAxes) > 0 && s.XAxes[0].Type == "logarithmic"
	y = len(s.YAxes) > 0 && s.YAxes[0].Type == "logarithmic"
	return x, y
}

// applyScales applies the first configured x and y axis to the plot. It
// runs after the datasets were added so that tick bounds override the data
// range.
func (c *Chart) applyScales(p *plot.Plot, opts *Options) {
	if len(opts.Scales.XAxes) > 0 {
		ax := opts.Scales.XAxes[0]
		applyAxis(&p.X, ax)
		if !boolOr(ax.Display, true) {
			p.HideX()
		}
	}
	if len(opts.Scales.YAxes) > 0 {
		ax := opts.Scales.YAxes[0]
		applyAxis(&p.Y, ax)
		if !boolOr(ax.Display, true) {
			p.HideY()
		}
	}
}

func applyAxis(a *plot.Axis, ax Axis) {
	if ax.ScaleLabel.Display {
		a.Label.Text = ax.ScaleLabel.LabelString
	}
	if ax.Ticks.BeginAtZero {
		if a.Min > 0 {
			a.Min = 0
		}
		if a.Max < 0 {
			a.Max = 0
		}
	}
	if ax.Ticks.Min != nil {
		a.Min = *ax.Ticks.Min
	}
	if ax.Ticks.Max != nil {
		a.Max = *ax.Ticks.Max
	}
	if ax.Type == "logarithmic" {
		// A log scale is undefined at and below zero.
		if a.Min <= 0 || math.IsInf(a.Min, 0) || math.IsNaN(a.Min) {
			a.Min = logBaseline
		}
		if a.Max <= a.Min || math.IsInf(a.Max, 0) || math.IsNaN(a.Max) {
			a.Max = a.Min * 10
		}
		a.Scale = plot.LogScale{}
		a.Tick.Marker = plot.LogTicks{Prec: -1}
	}
}
