package chartjs

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

func ptr[T any](v T) *T { return &v }

func registerBuiltins(l *Library) {
	l.Register("line", &Controller{Configure: configureCategory(false), Draw: drawLine})
	l.Register("bar", &Controller{Configure: configureCategory(false), Draw: drawBar})
	l.Register("horizontalBar", &Controller{Configure: configureCategory(true), Draw: drawBar})
	l.Register("scatter", &Controller{Configure: configureCartesian, Draw: drawScatter})
	l.Register("bubble", &Controller{Configure: configureCartesian, Draw: drawBubble})
	l.Register("pie", &Controller{Configure: configureRadial, Draw: drawRadial(false)})
	l.Register("doughnut", &Controller{Configure: configureRadial, Draw: drawRadial(true)})

	l.SetDefaults("line", &Defaults{BorderWidth: 3, PointRadius: ptr(3.0), ShowLine: ptr(true)})
	l.SetDefaults("bar", &Defaults{})
	l.SetDefaults("horizontalBar", &Defaults{})
	l.SetDefaults("scatter", &Defaults{BorderWidth: 1, PointRadius: ptr(3.0), ShowLine: ptr(false)})
	l.SetDefaults("bubble", &Defaults{BorderWidth: 1})
	l.SetDefaults("pie", &Defaults{BorderColor: Colors{"#fff"}, BorderWidth: 2})
	l.SetDefaults("doughnut", &Defaults{BorderColor: Colors{"#fff"}, BorderWidth: 2})
}

// configureCartesian adds the grid unless both axes hide their grid lines.
func configureCartesian(c *Chart) error {
	opts := c.options()
	g := plotter.NewGrid()
	if len(opts.Scales.XAxes) > 0 {
		ax := opts.Scales.XAxes[0]
		if !boolOr(ax.GridLines.Display, true) {
			g.Vertical.Color = nil
		} else {
			g.Vertical.Color = c.color(ax.GridLines.Color, g.Vertical.Color)
		}
	}
	if len(opts.Scales.YAxes) > 0 {
		ax := opts.Scales.YAxes[0]
		if !boolOr(ax.GridLines.Display, true) {
			g.Horizontal.Color = nil
		} else {
			g.Horizontal.Color = c.color(ax.GridLines.Color, g.Horizontal.Color)
		}
	}
	if g.Vertical.Color != nil || g.Horizontal.Color != nil {
		c.plot.Add(g)
	}
	return nil
}

// configureCategory labels the index axis with the chart's labels.
func configureCategory(horizontal bool) func(c *Chart) error {
	return func(c *Chart) error {
		if err := configureCartesian(c); err != nil {
			return err
		}
		labels := c.config.Data.Labels
		if len(labels) == 0 {
			return nil
		}
		if horizontal {
			c.plot.NominalY(labels...)
		} else {
			c.plot.NominalX(labels...)
		}
		return nil
	}
}

// xys returns the dataset's points and their data indices, skipping gaps.
// Points without an x value are placed at their index. Points that a
// logarithmic axis cannot place (at or below zero) are dropped.
func (c *Chart) xys(ds *Dataset) (plotter.XYs, []int) {
	logX, logY := c.logAxes()
	pts := make(plotter.XYs, 0, len(ds.Data))
	idx := make([]int, 0, len(ds.Data))
	for i, p := range ds.Data {
		if p.Null {
			continue
		}
		x := float64(i)
		if p.HasX {
			x = p.X
		}
		if logX && x <= 0 || logY && p.Y <= 0 {
			c.lib.log().Debug("skipping point outside log scale", "label", ds.Label, "index", i)
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: p.Y})
		idx = append(idx, i)
	}
	return pts, idx
}

func dashes(d []float64) []vg.Length {
	if len(d) == 0 {
		return nil
	}
	out := make([]vg.Length, len(d))
	for i, v := range d {
		out[i] = vg.Points(v)
	}
	return out
}

func withAlpha(c color.Color, a float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * a)
	return n
}

func radius(ds *Dataset, def float64) float64 {
	if ds.PointRadius != nil {
		return *ds.PointRadius
	}
	return def
}

func drawLine(c *Chart, ds *Dataset, index int) error {
	pts, _ := c.xys(ds)
	if len(pts) == 0 {
		return nil
	}
	border := c.datasetColor(ds.BorderColor, 0, index)
	var thumbs []plot.Thumbnailer

	if boolOr(ds.ShowLine, true) {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create line: %w", err)
		}
		line.LineStyle.Color = border
		line.LineStyle.Width = vg.Points(ds.BorderWidth)
		line.LineStyle.Dashes = dashes(ds.BorderDash)
		if ds.Fill {
			line.FillColor = c.color(ds.BackgroundColor.At(0), withAlpha(border, 0.1))
		}
		c.plot.Add(line)
		thumbs = append(thumbs, line)
	}
	if r := radius(ds, 0); r > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to create points: %w", err)
		}
		sc.GlyphStyle.Color = border
		sc.GlyphStyle.Radius = vg.Points(r)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		c.plot.Add(sc)
		thumbs = append(thumbs, sc)
	}
	c.addLegend(ds.Label, thumbs...)
	return nil
}

func drawScatter(c *Chart, ds *Dataset, index int) error {
	return drawLine(c, ds, index)
}

func drawBubble(c *Chart, ds *Dataset, index int) error {
	pts, idx := c.xys(ds)
	if len(pts) == 0 {
		return nil
	}
	radii := make([]float64, len(idx))
	for k, i := range idx {
		radii[k] = ds.Data[i].R
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create bubbles: %w", err)
	}
	fill := c.datasetColor(ds.BackgroundColor, 0, index)
	sc.GlyphStyle = draw.GlyphStyle{Color: fill, Radius: vg.Points(3), Shape: draw.CircleGlyph{}}
	sc.GlyphStyleFunc = func(k int) draw.GlyphStyle {
		return draw.GlyphStyle{Color: fill, Radius: vg.Points(radii[k]), Shape: draw.CircleGlyph{}}
	}
	c.plot.Add(sc)
	c.addLegend(ds.Label, sc)
	return nil
}

// barSlot returns how many bar datasets share each category and the
// position of dataset index among them.
func (c *Chart) barSlot(index int) (n, pos int) {
	for i, ds := range c.config.Data.Datasets {
		if ds == nil || ds.Hidden {
			continue
		}
		switch c.datasetType(ds) {
		case "bar", "horizontalBar":
		default:
			continue
		}
		if i == index {
			pos = n
		}
		n++
	}
	return n, pos
}

func drawBar(c *Chart, ds *Dataset, index int) error {
	values := make(plotter.Values, len(ds.Data))
	for i, p := range ds.Data {
		if !p.Null {
			values[i] = p.Y
		}
	}
	if len(values) == 0 {
		return nil
	}
	horizontal := c.datasetType(ds) == "horizontalBar" || c.config.Type == "horizontalBar"
	logX, logY := c.logAxes()
	logValues := horizontal && logX || !horizontal && logY
	if logValues {
		// Bars rise from the log baseline instead of zero; values at or
		// below zero collapse onto it.
		for i, v := range values {
			if v <= 0 {
				values[i] = 0
			} else {
				values[i] = v - logBaseline
			}
		}
	}
	n, pos := c.barSlot(index)
	if n == 0 {
		n = 1
	}

	categories := len(values)
	if l := len(c.config.Data.Labels); l > categories {
		categories = l
	}
	w, h := c.ctx.Size()
	extent := w
	if horizontal {
		extent = h
	}
	width := extent * 0.8 / vg.Length(categories) * 0.8 / vg.Length(n)

	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return fmt.Errorf("failed to create bars: %w", err)
	}
	if logValues {
		base := &plotter.BarChart{Values: make(plotter.Values, len(values)), Width: width, Horizontal: horizontal}
		for i := range base.Values {
			base.Values[i] = logBaseline
		}
		bars.StackOn(base)
	}
	bars.Color = c.datasetColor(ds.BackgroundColor, 0, index)
	bars.LineStyle.Width = vg.Points(ds.BorderWidth)
	bars.LineStyle.Color = c.datasetColor(ds.BorderColor, 0, index)
	if ds.BorderWidth == 0 {
		bars.LineStyle.Color = color.Transparent
	}
	bars.Horizontal = horizontal
	bars.Offset = width * (vg.Length(pos) - vg.Length(n-1)/2)
	c.plot.Add(bars)
	c.addLegend(ds.Label, bars)
	return nil
}
