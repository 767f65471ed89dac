package chartjs

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/user/chartjs-node-go/pkg/canvas"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	defaultFontSize  = 12
	defaultFontColor = "#666"
)

var defaultTypeface = font.Font{Typeface: "Liberation", Variant: "Sans"}

// Chart is a chart bound to a canvas context.
type Chart struct {
	ID int

	lib       *Library
	ctx       *canvas.Context2D
	config    *Configuration
	plot      *plot.Plot
	ratio     float64
	destroyed bool

	radialDrawn bool
}

// New constructs a chart from cfg and draws it onto ctx. It fails with
// ErrPlatformUnavailable unless a virtual document has been installed in
// the library's global namespace.
func (l *Library) New(ctx *canvas.Context2D, cfg *Configuration) (*Chart, error) {
	if ctx == nil {
		return nil, errors.New("chartjs: nil canvas context")
	}
	if cfg == nil {
		return nil, errors.New("chartjs: nil configuration")
	}
	if !l.globals.Defined("document") {
		return nil, ErrPlatformUnavailable
	}

	ratio := 1.0
	if r, ok := l.globals.Float("devicePixelRatio"); ok && r > 0 {
		ratio = r
	}
	if cfg.Options != nil && cfg.Options.DevicePixelRatio > 0 {
		ratio = cfg.Options.DevicePixelRatio
	}
	ctx.Owner().SetPixelRatio(ratio)

	c := &Chart{
		ID:     l.chartID(),
		lib:    l,
		ctx:    ctx,
		config: cfg,
		ratio:  ratio,
	}
	for _, p := range l.plugins.All() {
		if h, ok := p.(BeforeInitHook); ok {
			if err := h.BeforeInit(c); err != nil {
				return nil, fmt.Errorf("plugin %s: beforeInit: %w", p.ID(), err)
			}
		}
	}
	if err := c.Update(); err != nil {
		return nil, err
	}
	l.log().Debug("chart created", "id", c.ID, "type", cfg.Type, "datasets", len(cfg.Data.Datasets))
	return c, nil
}

// Config returns the chart's configuration.
func (c *Chart) Config() *Configuration { return c.config }

// Plot returns the plot built by the last Update, or nil once destroyed.
func (c *Chart) Plot() *plot.Plot { return c.plot }

// Canvas returns the canvas the chart draws onto.
func (c *Chart) Canvas() *canvas.Canvas { return c.ctx.Owner() }

// Library returns the library that created the chart.
func (c *Chart) Library() *Library { return c.lib }

// PixelRatio returns the device pixel ratio the chart was drawn for.
func (c *Chart) PixelRatio() float64 { return c.ratio }

// Destroyed reports whether Destroy has been called.
func (c *Chart) Destroyed() bool { return c.destroyed }

// Update rebuilds the plot from the configuration and redraws the canvas.
// A panic raised by the plotting backend is returned as ErrDrawFailed.
func (c *Chart) Update() (err error) {
	if c.destroyed {
		return ErrChartDestroyed
	}
	defer func() {
		if r := recover(); r != nil {
			c.ctx.Clear()
			err = fmt.Errorf("%w: %v", ErrDrawFailed, r)
		}
	}()
	p, err := c.build()
	if err != nil {
		return err
	}
	c.plot = p

	c.ctx.Clear()
	dc := draw.New(c.ctx)
	plugins := c.lib.plugins.All()
	for _, pl := range plugins {
		if h, ok := pl.(BeforeDrawHook); ok {
			if err := h.BeforeDraw(c, dc); err != nil {
				return fmt.Errorf("plugin %s: beforeDraw: %w", pl.ID(), err)
			}
		}
	}
	p.Draw(dc)
	for _, pl := range plugins {
		if h, ok := pl.(AfterDrawHook); ok {
			if err := h.AfterDraw(c, dc); err != nil {
				return fmt.Errorf("plugin %s: afterDraw: %w", pl.ID(), err)
			}
		}
	}
	return nil
}

// Destroy runs the plugins' destroy hooks and clears the canvas. It is safe
// to call more than once.
func (c *Chart) Destroy() {
	if c.destroyed {
		return
	}
	for _, p := range c.lib.plugins.All() {
		if h, ok := p.(DestroyHook); ok {
			h.Destroy(c)
		}
	}
	c.destroyed = true
	c.plot = nil
	c.ctx.Clear()
}

func (c *Chart) options() *Options {
	if c.config.Options == nil {
		c.config.Options = &Options{}
	}
	return c.config.Options
}

func (c *Chart) build() (*plot.Plot, error) {
	opts := c.options()
	typ := c.config.Type
	if typ == "" {
		return nil, fmt.Errorf("%w: configuration has no type", ErrUnknownChartType)
	}
	ctrl, err := c.lib.Controller(typ)
	if err != nil {
		return nil, err
	}

	p := newPlot(opts.LatexText)
	c.plot = p
	c.radialDrawn = false
	p.BackgroundColor = c.color(opts.BackgroundColor, color.Transparent)
	c.applyFonts(p, opts)
	if opts.Title.Display && opts.Title.Text != "" {
		p.Title.Text = opts.Title.Text
		if opts.Title.FontSize > 0 {
			p.Title.TextStyle.Font.Size = vg.Points(opts.Title.FontSize)
		}
		p.Title.TextStyle.Color = c.color(opts.Title.FontColor, p.Title.TextStyle.Color)
	}
	applyLegendPosition(&p.Legend, opts.Legend.Position)

	if ctrl.Configure != nil {
		if err := ctrl.Configure(c); err != nil {
			return nil, fmt.Errorf("configuring %s chart: %w", typ, err)
		}
	}
	for i, ds := range c.config.Data.Datasets {
		if ds == nil || ds.Hidden {
			continue
		}
		dsType := c.datasetType(ds)
		dctrl := ctrl
		if dsType != typ {
			if dctrl, err = c.lib.Controller(dsType); err != nil {
				return nil, fmt.Errorf("dataset %d: %w", i, err)
			}
		}
		if dctrl.Draw == nil {
			continue
		}
		if err := dctrl.Draw(c, c.lib.applyDefaults(ds, dsType), i); err != nil {
			return nil, fmt.Errorf("drawing dataset %d (%s): %w", i, dsType, err)
		}
	}
	if ctrl.Finish != nil {
		if err := ctrl.Finish(c); err != nil {
			return nil, fmt.Errorf("finishing %s chart: %w", typ, err)
		}
	}
	c.applyScales(p, opts)
	return p, nil
}

func (c *Chart) datasetType(ds *Dataset) string {
	if ds.Type != "" {
		return ds.Type
	}
	return c.config.Type
}

// color parses s, falling back to def when s is empty or invalid.
func (c *Chart) color(s string, def color.Color) color.Color {
	if s == "" {
		return def
	}
	clr, err := ParseColor(s)
	if err != nil {
		c.lib.log().Debug("ignoring color", "value", s, "error", err)
		return def
	}
	return clr
}

// datasetColor returns the dataset's k-th color from list, or the palette
// color for the dataset index.
func (c *Chart) datasetColor(list Colors, k, index int) color.Color {
	return c.color(list.At(k), plotutil.Color(index))
}

func (c *Chart) applyFonts(p *plot.Plot, opts *Options) {
	fnt := defaultTypeface
	if fam := opts.DefaultFontFamily; fam != "" {
		candidate := font.Font{Typeface: font.Typeface(fam)}
		if font.DefaultCache.Has(candidate) {
			fnt = candidate
		} else {
			c.lib.log().Debug("font family not registered, using default", "family", fam)
		}
	}
	size := opts.DefaultFontSize
	if size <= 0 {
		size = defaultFontSize
	}
	clr := c.color(opts.DefaultFontColor, c.color(defaultFontColor, color.Black))

	styles := []*text.Style{
		&p.X.Label.TextStyle, &p.Y.Label.TextStyle,
		&p.X.Tick.Label, &p.Y.Tick.Label,
		&p.Legend.TextStyle,
	}
	for _, st := range styles {
		st.Font.Typeface, st.Font.Variant = fnt.Typeface, fnt.Variant
		st.Font.Size = vg.Points(size)
		st.Color = clr
	}
	p.Title.TextStyle.Font.Typeface, p.Title.TextStyle.Font.Variant = fnt.Typeface, fnt.Variant
	p.Title.TextStyle.Font.Size = vg.Points(size + 2)
	p.Title.TextStyle.Color = clr
}

func applyLegendPosition(l *plot.Legend, pos string) {
	switch pos {
	case "bottom":
		l.Top = false
	case "left":
		l.Top, l.Left = true, true
	default:
		l.Top = true
	}
}

func (c *Chart) legendVisible() bool {
	return boolOr(c.options().Legend.Display, true)
}

func (c *Chart) addLegend(label string, thumbs ...plot.Thumbnailer) {
	if label == "" || len(thumbs) == 0 || !c.legendVisible() {
		return
	}
	c.plot.Legend.Add(label, thumbs...)
}

// newPlot creates a plot whose text is typeset as LaTeX when latex is set.
func newPlot(latex bool) *plot.Plot {
	p := plot.New()
	if !latex {
		return p
	}
	h := text.Latex{Fonts: font.DefaultCache}
	for _, st := range []*text.Style{
		&p.Title.TextStyle,
		&p.X.Label.TextStyle, &p.Y.Label.TextStyle,
		&p.X.Tick.Label, &p.Y.Tick.Label,
		&p.Legend.TextStyle,
	} {
		st.Handler = h
	}
	return p
}
