// Package dom provides a minimal virtual browser window: a document parsed
// from HTML whose <canvas> elements are backed by software canvases, and
// the set of window properties a browser-oriented charting engine probes
// for.
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ChartCanvasID is the id of the canvas element in the chart document.
const ChartCanvasID = "myChart"

const chartDocument = `<html>
  <body>
    <div id="chart-div" style="font-size:40; width:%[1]d; height:%[2]d;">
      <canvas id="` + ChartCanvasID + `" width=%[1]d height=%[2]d></canvas>
    </div>
  </body>
</html>`

// HTML defaults for a canvas without width/height attributes.
const (
	defaultCanvasWidth  = 300
	defaultCanvasHeight = 150
)

var (
	// ErrInvalidDimensions is returned for a non-positive chart size.
	ErrInvalidDimensions = errors.New("invalid chart dimensions")
	// ErrNotFound is returned when no element matches an id.
	ErrNotFound = errors.New("element not found")
	// ErrNotCanvas is returned when an element is not a canvas.
	ErrNotCanvas = errors.New("element is not a canvas")
	// ErrClosed is returned when a closed window is used.
	ErrClosed = errors.New("window is closed")
)

// Options configures a new window.
type Options struct {
	URL              string
	DevicePixelRatio float64
	UserAgent        string
}

func (o *Options) normalize() {
	if o.URL == "" {
		o.URL = "https://example.org/"
	}
	if o.DevicePixelRatio <= 0 {
		o.DevicePixelRatio = 1
	}
	if o.UserAgent == "" {
		o.UserAgent = "chartjs-node-go"
	}
}

// Navigator describes the virtual user agent.
type Navigator struct {
	UserAgent string
}

// Window is a virtual browser window.
type Window struct {
	mu        sync.Mutex
	document  *Document
	location  *url.URL
	navigator *Navigator
	ratio     float64
	closed    bool
}

// NewChartWindow returns a window whose document holds a single
// width x height canvas with id ChartCanvasID.
func NewChartWindow(width, height int, opts Options) (*Window, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return New(fmt.Sprintf(chartDocument, width, height), opts)
}

// New parses markup into a window's document.
func New(markup string, opts Options) (*Window, error) {
	opts.normalize()
	loc, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid window url %q: %w", opts.URL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	d := &Document{doc: doc, canvases: make(map[string]*canvas.Canvas)}
	if err := d.materializeCanvases(); err != nil {
		return nil, err
	}
	return &Window{
		document:  d,
		location:  loc,
		navigator: &Navigator{UserAgent: opts.UserAgent},
		ratio:     opts.DevicePixelRatio,
	}, nil
}

// Document returns the window's document.
func (w *Window) Document() *Document { return w.document }

// DevicePixelRatio returns the window's device pixel ratio.
func (w *Window) DevicePixelRatio() float64 { return w.ratio }

// Location returns the window's URL.
func (w *Window) Location() *url.URL { return w.location }

// Navigator returns the window's user agent description.
func (w *Window) Navigator() *Navigator { return w.navigator }

// Properties returns the window's own enumerable properties, keyed by the
// name a browser exposes them under.
func (w *Window) Properties() map[string]any {
	innerWidth, innerHeight := 0, 0
	if c, err := w.document.CanvasByID(ChartCanvasID); err == nil {
		innerWidth, innerHeight = c.Width(), c.Height()
	}
	return map[string]any{
		"window":                   w,
		"self":                     w,
		"document":                 w.document,
		"navigator":                w.navigator,
		"location":                 w.location,
		"devicePixelRatio":         w.ratio,
		"innerWidth":               innerWidth,
		"innerHeight":              innerHeight,
		"HTMLCanvasElement":        reflect.TypeOf((*canvas.Canvas)(nil)),
		"CanvasRenderingContext2D": reflect.TypeOf((*canvas.Context2D)(nil)),
	}
}

// Close releases the document's canvases. It is safe to call repeatedly.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, c := range w.document.canvases {
		c.Close()
	}
}

// Closed reports whether Close has been called.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Document is a parsed HTML document.
type Document struct {
	doc      *goquery.Document
	canvases map[string]*canvas.Canvas
}

// Element is a node of the document.
type Element struct {
	ID      string
	TagName string
	sel     *goquery.Selection
	canvas  *canvas.Canvas
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// IsCanvas reports whether the element is a <canvas>.
func (e *Element) IsCanvas() bool {
	return len(e.sel.Nodes) > 0 && e.sel.Nodes[0].DataAtom == atom.Canvas
}

// Canvas returns the canvas backing a <canvas> element.
func (e *Element) Canvas() (*canvas.Canvas, error) {
	if e.canvas == nil {
		return nil, fmt.Errorf("%w: <%s id=%q>", ErrNotCanvas, e.TagName, e.ID)
	}
	return e.canvas, nil
}

// GetElementByID returns the first element whose id is id, or nil.
func (d *Document) GetElementByID(id string) *Element {
	var found *goquery.Selection
	d.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &Element{
		ID:      id,
		TagName: goquery.NodeName(found),
		sel:     found,
		canvas:  d.canvases[id],
	}
}

// CanvasByID returns the canvas backing the <canvas> element with id.
func (d *Document) CanvasByID(id string) (*canvas.Canvas, error) {
	el := d.GetElementByID(id)
	if el == nil {
		return nil, fmt.Errorf("%w: #%s", ErrNotFound, id)
	}
	return el.Canvas()
}

// WriteTo serializes the document as HTML, including the ids assigned to
// canvases that had none.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	for _, n := range d.doc.Nodes {
		if err := html.Render(cw, n); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	k, err := c.w.Write(p)
	c.n += int64(k)
	return k, err
}

// Canvases returns the number of canvas elements in the document.
func (d *Document) Canvases() int {
	return d.doc.Find("canvas").Length()
}

func (d *Document) materializeCanvases() error {
	var err error
	d.doc.Find("canvas").EachWithBreak(func(i int, s *goquery.Selection) bool {
		width := intAttr(s, "width", defaultCanvasWidth)
		height := intAttr(s, "height", defaultCanvasHeight)
		var c *canvas.Canvas
		c, err = canvas.New(width, height)
		if err != nil {
			err = fmt.Errorf("canvas %d: %w", i, err)
			return false
		}
		id, ok := s.Attr("id")
		if !ok {
			id = "canvas-" + strconv.Itoa(i)
			s.SetAttr("id", id)
		}
		d.canvases[id] = c
		return true
	})
	return err
}

func intAttr(s *goquery.Selection, name string, def int) int {
	v, ok := s.Attr(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
