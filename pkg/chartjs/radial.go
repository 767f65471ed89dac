package chartjs

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg/draw"
)

// errNoSlices is returned when a radial dataset has no positive value.
var errNoSlices = errors.New("radial chart needs at least one positive value")

// configureRadial hides the cartesian axes; pie and doughnut charts are
// rendered by go-chart and composited into the plot's data area.
func configureRadial(c *Chart) error {
	c.plot.HideAxes()
	return nil
}

func drawRadial(donut bool) func(c *Chart, ds *Dataset, index int) error {
	return func(c *Chart, ds *Dataset, index int) error {
		if c.radialDrawn {
			// go-chart draws a single series per chart.
			return nil
		}
		values := make([]gochart.Value, 0, len(ds.Data))
		for k, p := range ds.Data {
			if p.Null || p.Y <= 0 {
				continue
			}
			label := ""
			if k < len(c.config.Data.Labels) {
				label = c.config.Data.Labels[k]
			}
			values = append(values, gochart.Value{
				Label: label,
				Value: p.Y,
				Style: gochart.Style{
					FillColor:   toDrawingColor(c.datasetColor(ds.BackgroundColor, k, k)),
					StrokeColor: toDrawingColor(c.color(ds.BorderColor.At(k), color.White)),
					StrokeWidth: ds.BorderWidth,
					FontColor:   toDrawingColor(c.color(c.options().DefaultFontColor, color.Black)),
				},
			})
		}
		if len(values) == 0 {
			return errNoSlices
		}
		c.plot.Add(&radialPlotter{chart: c, values: values, donut: donut})
		c.radialDrawn = true
		return nil
	}
}

func toDrawingColor(c color.Color) drawing.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return drawing.Color{R: n.R, G: n.G, B: n.B, A: n.A}
}

// radialPlotter rasterizes a go-chart pie or doughnut at the device
// resolution of its canvas area and draws it as an image.
type radialPlotter struct {
	chart  *Chart
	values []gochart.Value
	donut  bool
}

// Plot implements plot.Plotter.
func (r *radialPlotter) Plot(dc draw.Canvas, _ *plot.Plot) {
	size := dc.Rectangle.Size()
	dpi := 72 * r.chart.ratio
	w := int(math.Round(size.X.Dots(dpi)))
	h := int(math.Round(size.Y.Dots(dpi)))
	if w <= 0 || h <= 0 {
		return
	}
	img, err := r.render(w, h)
	if err != nil {
		r.chart.lib.log().Warn("failed to render radial chart", "chart", r.chart.ID, "error", err)
		return
	}
	dc.DrawImage(dc.Rectangle, img)
}

func (r *radialPlotter) render(w, h int) (image.Image, error) {
	bg := gochart.Style{FillColor: drawing.ColorTransparent}
	var buf bytes.Buffer
	var err error
	if r.donut {
		ch := gochart.DonutChart{Width: w, Height: h, Background: bg, Canvas: bg, Values: r.values}
		err = ch.Render(gochart.PNG, &buf)
	} else {
		ch := gochart.PieChart{Width: w, Height: h, Background: bg, Canvas: bg, Values: r.values}
		err = ch.Render(gochart.PNG, &buf)
	}
	if err != nil {
		return nil, fmt.Errorf("go-chart render: %w", err)
	}
	return png.Decode(&buf)
}
