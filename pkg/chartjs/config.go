package chartjs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Configuration describes one chart: its type, data and options. It decodes
// from the same JSON shape the browser library accepts.
type Configuration struct {
	Type    string   `json:"type"`
	Data    Data     `json:"data"`
	Options *Options `json:"options,omitempty"`
}

// Data holds the category labels and the datasets of a chart.
type Data struct {
	Labels   []string   `json:"labels,omitempty"`
	Datasets []*Dataset `json:"datasets"`
}

// Dataset is one series. Type overrides the chart type for mixed charts.
type Dataset struct {
	Type            string    `json:"type,omitempty"`
	Label           string    `json:"label,omitempty"`
	Data            []Point   `json:"data"`
	BackgroundColor Colors    `json:"backgroundColor,omitempty"`
	BorderColor     Colors    `json:"borderColor,omitempty"`
	BorderWidth     float64   `json:"borderWidth,omitempty"`
	BorderDash      []float64 `json:"borderDash,omitempty"`
	Fill            bool      `json:"fill,omitempty"`
	PointRadius     *float64  `json:"pointRadius,omitempty"`
	ShowLine        *bool     `json:"showLine,omitempty"`
	Hidden          bool      `json:"hidden,omitempty"`
}

// Point is a data value. Plain numbers decode into Y; objects carry x, y
// and, for bubble charts, r. A JSON null is a gap.
type Point struct {
	X, Y, R float64
	HasX    bool
	Null    bool
}

// UnmarshalJSON accepts a number, null, or an {x, y, r} object.
func (p *Point) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = Point{Null: true}
		return nil
	}
	if len(b) > 0 && b[0] == '{' {
		var raw struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
			R float64  `json:"r"`
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("invalid data point %s: %w", b, err)
		}
		*p = Point{R: raw.R}
		if raw.X != nil {
			p.X, p.HasX = *raw.X, true
		}
		if raw.Y == nil {
			p.Null = true
		} else {
			p.Y = *raw.Y
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid data point %s: %w", b, err)
	}
	*p = Point{Y: v}
	return nil
}

// MarshalJSON writes plain values as numbers and others as objects.
func (p Point) MarshalJSON() ([]byte, error) {
	switch {
	case p.Null:
		return []byte("null"), nil
	case !p.HasX && p.R == 0:
		return json.Marshal(p.Y)
	}
	return json.Marshal(struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		R float64 `json:"r,omitempty"`
	}{p.X, p.Y, p.R})
}

// Values builds plain data points.
func Values(vs ...float64) []Point {
	pts := make([]Point, len(vs))
	for i, v := range vs {
		pts[i] = Point{Y: v}
	}
	return pts
}

// XY builds an {x, y} point.
func XY(x, y float64) Point { return Point{X: x, Y: y, HasX: true} }

// Colors is a CSS color or a list of them, one per data point.
type Colors []string

// UnmarshalJSON accepts a string or an array of strings.
func (c *Colors) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Colors{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("invalid color list %s: %w", b, err)
	}
	*c = list
	return nil
}

// At returns the color for index i, cycling through the list.
func (c Colors) At(i int) string {
	if len(c) == 0 {
		return ""
	}
	return c[i%len(c)]
}

// Options configures how a chart is drawn.
type Options struct {
	Responsive          bool    `json:"responsive"`
	MaintainAspectRatio bool    `json:"maintainAspectRatio,omitempty"`
	Animation           any     `json:"animation,omitempty"`
	Width               int     `json:"width,omitempty"`
	Height              int     `json:"height,omitempty"`
	DevicePixelRatio    float64 `json:"devicePixelRatio,omitempty"`
	BackgroundColor     string  `json:"backgroundColor,omitempty"`
	LatexText           bool    `json:"latexText,omitempty"`

	DefaultFontFamily string  `json:"defaultFontFamily,omitempty"`
	DefaultFontSize   float64 `json:"defaultFontSize,omitempty"`
	DefaultFontColor  string  `json:"defaultFontColor,omitempty"`

	Title  Title  `json:"title,omitempty"`
	Legend Legend `json:"legend,omitempty"`
	Scales Scales `json:"scales,omitempty"`

	// Fonts are registered with the canvas before the chart is drawn.
	Fonts FontList `json:"fonts,omitempty"`

	// Plugins are registered globally with the library before drawing.
	Plugins []Plugin `json:"-"`
	// Charts registers or extends chart types before drawing.
	Charts []ChartType `json:"-"`
}

// Title configures the chart title.
type Title struct {
	Display   bool    `json:"display,omitempty"`
	Text      string  `json:"text,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty"`
	FontColor string  `json:"fontColor,omitempty"`
}

// Legend configures the dataset legend. It is shown unless Display is false.
type Legend struct {
	Display  *bool  `json:"display,omitempty"`
	Position string `json:"position,omitempty"`
}

// Scales holds the cartesian axes.
type Scales struct {
	XAxes []Axis `json:"xAxes,omitempty"`
	YAxes []Axis `json:"yAxes,omitempty"`
}

// Axis configures one cartesian axis.
type Axis struct {
	ID         string     `json:"id,omitempty"`
	Type       string     `json:"type,omitempty"`
	Display    *bool      `json:"display,omitempty"`
	Position   string     `json:"position,omitempty"`
	ScaleLabel ScaleLabel `json:"scaleLabel,omitempty"`
	Ticks      Ticks      `json:"ticks,omitempty"`
	GridLines  GridLines  `json:"gridLines,omitempty"`
}

// ScaleLabel is the axis title.
type ScaleLabel struct {
	Display     bool   `json:"display,omitempty"`
	LabelString string `json:"labelString,omitempty"`
}

// Ticks bounds an axis.
type Ticks struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	BeginAtZero bool     `json:"beginAtZero,omitempty"`
}

// GridLines configures the grid drawn for an axis.
type GridLines struct {
	Display *bool  `json:"display,omitempty"`
	Color   string `json:"color,omitempty"`
}

// FontSpec names a font file and the family it is registered under.
type FontSpec struct {
	Path   string `json:"path"`
	Family string `json:"family"`
}

// FontList is a single font descriptor or a list of them.
type FontList []FontSpec

// UnmarshalJSON accepts an object or an array of objects.
func (f *FontList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one FontSpec
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*f = FontList{one}
		return nil
	}
	var list []FontSpec
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("invalid fonts %s: %w", b, err)
	}
	*f = list
	return nil
}

// ChartType registers a chart type before drawing. When BaseType is set the
// new type falls back to the base type's controller for any hook the
// Controller leaves nil.
type ChartType struct {
	Type       string
	Defaults   *Defaults
	Controller *Controller
	BaseType   string
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
