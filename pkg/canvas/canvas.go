// Package canvas is the software canvas charts are drawn onto. Drawing is
// captured by a vg recorder and replayed onto a gonum/plot backend when the
// canvas is encoded, so a single drawing can be exported as PNG, JPEG, TIFF,
// BMP, GIF, SVG, PDF or EPS.
package canvas

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/recorder"
)

// ErrClosed is returned when a closed canvas is used.
var ErrClosed = errors.New("canvas is closed")

// ErrInvalidDimensions is returned for a canvas with a non-positive side.
var ErrInvalidDimensions = errors.New("invalid canvas dimensions")

// Canvas is an off-screen drawing surface measured in CSS pixels.
type Canvas struct {
	mu         sync.Mutex
	width      int
	height     int
	ratio      float64
	background color.Color
	ctx        *Context2D
	closed     bool
}

// New creates a width x height canvas with a transparent background.
func New(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Canvas{
		width:      width,
		height:     height,
		ratio:      1,
		background: color.Transparent,
	}, nil
}

// Width returns the canvas width in CSS pixels.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height in CSS pixels.
func (c *Canvas) Height() int { return c.height }

// PixelRatio returns the device pixel ratio raster output is scaled by.
func (c *Canvas) PixelRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

// SetPixelRatio sets the device pixel ratio. Non-positive ratios are ignored.
func (c *Canvas) SetPixelRatio(r float64) {
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return
	}
	c.mu.Lock()
	c.ratio = r
	c.mu.Unlock()
}

// SetBackground sets the color raster output is composited over.
func (c *Canvas) SetBackground(bg color.Color) {
	if bg == nil {
		bg = color.Transparent
	}
	c.mu.Lock()
	c.background = bg
	c.mu.Unlock()
}

// GetContext returns the canvas' drawing context. Only "2d" is supported,
// and repeated calls return the same context.
func (c *Canvas) GetContext(kind string) (*Context2D, error) {
	if kind != "2d" {
		return nil, fmt.Errorf("unsupported context type %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.ctx == nil {
		c.ctx = &Context2D{Canvas: &recorder.Canvas{}, owner: c}
	}
	return c.ctx, nil
}

// Close discards everything drawn and makes the canvas unusable.
func (c *Canvas) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		c.ctx.Actions = nil
	}
	c.closed = true
}

// Closed reports whether Close has been called.
func (c *Canvas) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// dpi is the raster resolution; one CSS pixel is one point at ratio 1.
func (c *Canvas) dpi() int {
	return int(math.Round(72 * c.ratio))
}

// Context2D records drawing operations for its canvas. It satisfies
// vg.CanvasSizer so it can be wrapped by draw.New.
type Context2D struct {
	*recorder.Canvas
	owner *Canvas
}

// Size returns the drawable area; one CSS pixel maps to one point.
func (ctx *Context2D) Size() (w, h vg.Length) {
	return vg.Length(ctx.owner.width), vg.Length(ctx.owner.height)
}

// Owner returns the canvas the context draws onto.
func (ctx *Context2D) Owner() *Canvas { return ctx.owner }

// Clear drops every recorded operation.
func (ctx *Context2D) Clear() {
	ctx.owner.mu.Lock()
	ctx.Actions = ctx.Actions[:0]
	ctx.owner.mu.Unlock()
}

// Len returns the number of recorded drawing operations.
func (ctx *Context2D) Len() int {
	ctx.owner.mu.Lock()
	defer ctx.owner.mu.Unlock()
	return len(ctx.Actions)
}
