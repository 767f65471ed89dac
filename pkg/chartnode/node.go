// Package chartnode renders chart configurations to static images outside a
// browser. A Node installs a virtual browser window into the global
// namespace, lets the charting engine draw onto a software canvas, and
// exposes the result as a buffer, a stream, a data URL or a file. Destroy
// removes exactly the globals the node added.
package chartnode

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/chartjs-node-go/internal/dom"
	"github.com/user/chartjs-node-go/internal/global"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"github.com/user/chartjs-node-go/pkg/chartjs"
)

// State is the lifecycle state of a node.
type State int

const (
	StateIdle State = iota
	StateDrawing
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Node.
type Option func(*Node)

// WithDevicePixelRatio sets the ratio exposed as window.devicePixelRatio.
// Values <= 0 are ignored.
func WithDevicePixelRatio(r float64) Option {
	return func(n *Node) {
		if r > 0 {
			n.ratio = r
		}
	}
}

// WithLibrary draws with lib instead of chartjs.Default. The node installs
// its window into lib's namespace.
func WithLibrary(lib *chartjs.Library) Option {
	return func(n *Node) {
		if lib != nil {
			n.lib = lib
		}
	}
}

// WithLogger sets the node's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// Node is a single chart rendering session. Its methods are serialized by
// a mutex; listeners registered with OnBeforeDraw must not call back into
// the node.
type Node struct {
	mu sync.Mutex

	width, height int
	ratio         float64
	lib           *chartjs.Library
	logger        *slog.Logger
	listeners     []func(*chartjs.Library)

	state     State
	window    *dom.Window
	canvas    *canvas.Canvas
	chart     *chartjs.Chart
	installed []string
}

// New returns an idle node that renders width x height charts. Dimensions
// are validated when a chart is drawn.
func New(width, height int, opts ...Option) *Node {
	n := &Node{
		width:  width,
		height: height,
		ratio:  1,
		lib:    chartjs.Default,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Width returns the chart width in pixels.
func (n *Node) Width() int { return n.width }

// Height returns the chart height in pixels.
func (n *Node) Height() int { return n.height }

// DevicePixelRatio returns the node's device pixel ratio.
func (n *Node) DevicePixelRatio() float64 { return n.ratio }

// Library returns the charting library the node draws with.
func (n *Node) Library() *chartjs.Library { return n.lib }

// State returns the node's lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Chart returns the drawn chart, or nil when the node is not ready.
func (n *Node) Chart() *chartjs.Chart {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chart
}

// OnBeforeDraw registers fn to be called during every DrawChart, after the
// window is installed and before the chart is constructed.
func (n *Node) OnBeforeDraw(fn func(lib *chartjs.Library)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	n.mu.Unlock()
}

func (n *Node) globals() *global.Namespace {
	return n.lib.Globals()
}

// DrawChart tears down any previous session, installs a fresh virtual
// window and draws cfg onto its canvas. On failure the partial session is
// torn down and the node is left destroyed.
func (n *Node) DrawChart(cfg *chartjs.Configuration) (*chartjs.Chart, error) {
	if cfg == nil {
		return nil, opError("draw", ErrNilConfiguration)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.destroyLocked()
	n.state = StateDrawing

	chart, err := n.drawRecovering(cfg)
	if err != nil {
		n.destroyLocked()
		n.state = StateDestroyed
		return nil, opError("draw", err)
	}
	n.chart = chart
	n.state = StateReady
	n.logger.Debug("chart drawn",
		"type", cfg.Type,
		"width", n.width,
		"height", n.height,
		"ratio", chart.PixelRatio(),
		"globals", len(n.installed))
	return chart, nil
}

// drawRecovering runs draw, turning a panic into an error so that the
// caller still tears the session down.
func (n *Node) drawRecovering(cfg *chartjs.Configuration) (chart *chartjs.Chart, err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("recovered from panic while drawing", "type", cfg.Type, "panic", r)
			chart, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return n.draw(cfg)
}

func (n *Node) draw(cfg *chartjs.Configuration) (*chartjs.Chart, error) {
	win, err := dom.NewChartWindow(n.width, n.height, dom.Options{DevicePixelRatio: n.ratio})
	if err != nil {
		return nil, err
	}
	n.window = win
	n.installed = n.globals().Install(win.Properties())

	cnv, err := win.Document().CanvasByID(dom.ChartCanvasID)
	if err != nil {
		return nil, err
	}
	n.canvas = cnv

	opts := cfg.Options
	if opts == nil {
		opts = &chartjs.Options{}
	}
	for _, f := range opts.Fonts {
		if err := canvas.RegisterFont(f.Path, f.Family); err != nil {
			return nil, err
		}
	}

	for _, fn := range n.listeners {
		fn(n.lib)
	}

	if len(opts.Plugins) > 0 {
		n.lib.Plugins().Register(opts.Plugins...)
	}
	if len(opts.Charts) > 0 {
		if err := n.lib.RegisterChartTypes(opts.Charts); err != nil {
			return nil, fmt.Errorf("registering chart types: %w", err)
		}
	}

	fixed := staticConfig(cfg, opts, n.width, n.height)
	ctx, err := cnv.GetContext("2d")
	if err != nil {
		return nil, err
	}
	return n.lib.New(ctx, fixed)
}

// staticConfig returns a copy of cfg with a non-responsive, non-animated,
// fixed-size options block. cfg itself is not modified.
func staticConfig(cfg *chartjs.Configuration, opts *chartjs.Options, width, height int) *chartjs.Configuration {
	o := *opts
	o.Responsive = false
	o.MaintainAspectRatio = false
	o.Animation = false
	o.Width = width
	o.Height = height
	out := *cfg
	out.Options = &o
	return &out
}

// Destroy releases the chart, removes the globals the node installed and
// closes its window. It is safe to call at any time and more than once.
func (n *Node) Destroy() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyLocked() {
		n.state = StateDestroyed
	}
}

// destroyLocked tears down the current session and reports whether there
// was one.
func (n *Node) destroyLocked() bool {
	active := n.chart != nil || n.window != nil || n.installed != nil
	if n.chart != nil {
		n.chart.Destroy()
		n.chart = nil
	}
	if n.installed != nil {
		n.globals().Uninstall(n.installed)
		n.logger.Debug("globals removed", "count", len(n.installed))
		n.installed = nil
	}
	if n.window != nil {
		n.window.Close()
		n.window = nil
	}
	n.canvas = nil
	return active
}
