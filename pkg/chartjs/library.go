// Package chartjs adapts chart configurations in the Chart.js shape to
// gonum/plot. The Library type is the engine handle: it owns the registry of
// chart type controllers, per-type dataset defaults and the global plugin
// service, and constructs charts on a canvas 2D context once the browser
// platform has been installed in the global namespace.
package chartjs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/user/chartjs-node-go/internal/global"
)

var (
	// ErrPlatformUnavailable is returned when no virtual document is
	// installed in the global namespace.
	ErrPlatformUnavailable = errors.New("no browser platform: document is not defined")
	// ErrUnknownChartType is returned for a type with no controller.
	ErrUnknownChartType = errors.New("unknown chart type")
	// ErrControllerCycle is returned when a chart type extends itself.
	ErrControllerCycle = errors.New("chart type extends itself")
	// ErrChartDestroyed is returned when a destroyed chart is updated.
	ErrChartDestroyed = errors.New("chart has been destroyed")
	// ErrDrawFailed is returned when the plotting backend cannot draw the
	// configuration, such as LaTeX it cannot typeset.
	ErrDrawFailed = errors.New("chart could not be drawn")
)

// Controller draws datasets of one chart type. Any hook may be nil; a type
// registered with a base type uses the base's hook in that case.
type Controller struct {
	// Configure prepares the plot before datasets are drawn. It runs once,
	// for the chart's own type.
	Configure func(c *Chart) error
	// Draw adds the plotters for one dataset.
	Draw func(c *Chart, ds *Dataset, index int) error
	// Finish runs once after every dataset has been drawn.
	Finish func(c *Chart) error
}

// Defaults are applied to datasets of a type for fields they leave unset.
type Defaults struct {
	BackgroundColor Colors
	BorderColor     Colors
	BorderWidth     float64
	PointRadius     *float64
	ShowLine        *bool
	Fill            *bool
}

type registration struct {
	ctrl *Controller
	base string
}

// Library is the charting engine handle.
type Library struct {
	mu          sync.RWMutex
	globals     *global.Namespace
	controllers map[string]registration
	defaults    map[string]*Defaults
	plugins     *PluginService
	logger      *slog.Logger
	nextID      int
}

// Default is the library bound to the process-wide namespace.
var Default = NewLibrary(global.Default)

// NewLibrary returns a library with the built-in chart types, consulting ns
// for the browser platform.
func NewLibrary(ns *global.Namespace) *Library {
	l := &Library{
		globals:     ns,
		controllers: make(map[string]registration),
		defaults:    make(map[string]*Defaults),
		plugins:     &PluginService{},
		logger:      slog.Default(),
	}
	registerBuiltins(l)
	return l
}

// SetLogger replaces the library's logger.
func (l *Library) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
}

func (l *Library) log() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}

// Globals returns the namespace the library probes for a browser platform.
func (l *Library) Globals() *global.Namespace { return l.globals }

// Plugins returns the global plugin service.
func (l *Library) Plugins() *PluginService { return l.plugins }

// Register installs ctrl as the controller for typ, replacing any previous
// registration. A nil controller draws nothing.
func (l *Library) Register(typ string, ctrl *Controller) {
	l.mu.Lock()
	l.controllers[typ] = registration{ctrl: ctrl}
	l.mu.Unlock()
}

// Extend registers typ as an extension of base: hooks ctrl leaves nil are
// delegated to base's controller when the chart is drawn.
func (l *Library) Extend(typ, base string, ctrl *Controller) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.controllers[base]; !ok {
		return fmt.Errorf("%w: base type %q", ErrUnknownChartType, base)
	}
	if typ == base {
		return fmt.Errorf("%w: %q", ErrControllerCycle, typ)
	}
	l.controllers[typ] = registration{ctrl: ctrl, base: base}
	return nil
}

// Controller resolves the effective controller for typ, following base
// types for unset hooks.
func (l *Library) Controller(typ string) (*Controller, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := &Controller{}
	seen := make(map[string]bool)
	for name := typ; name != ""; {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrControllerCycle, typ)
		}
		seen[name] = true
		reg, ok := l.controllers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChartType, name)
		}
		if c := reg.ctrl; c != nil {
			if out.Configure == nil {
				out.Configure = c.Configure
			}
			if out.Draw == nil {
				out.Draw = c.Draw
			}
			if out.Finish == nil {
				out.Finish = c.Finish
			}
		}
		name = reg.base
	}
	return out, nil
}

// Types returns the registered chart types, sorted.
func (l *Library) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	types := make([]string, 0, len(l.controllers))
	for t := range l.controllers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// SetDefaults sets the dataset defaults for typ.
func (l *Library) SetDefaults(typ string, d *Defaults) {
	l.mu.Lock()
	l.defaults[typ] = d
	l.mu.Unlock()
}

// Defaults returns the dataset defaults for typ, inherited from its base
// types when typ has none of its own.
func (l *Library) Defaults(typ string) *Defaults {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	for name := typ; name != "" && !seen[name]; name = l.controllers[name].base {
		seen[name] = true
		if d := l.defaults[name]; d != nil {
			return d
		}
	}
	return nil
}

// RegisterChartTypes registers each chart type: its defaults, and its
// controller either standalone or as an extension of BaseType.
func (l *Library) RegisterChartTypes(types []ChartType) error {
	for _, ct := range types {
		if ct.Type == "" {
			return fmt.Errorf("%w: empty type name", ErrUnknownChartType)
		}
		d := ct.Defaults
		if d == nil {
			d = &Defaults{}
		}
		l.SetDefaults(ct.Type, d)
		if ct.BaseType != "" {
			if err := l.Extend(ct.Type, ct.BaseType, ct.Controller); err != nil {
				return err
			}
			continue
		}
		l.Register(ct.Type, ct.Controller)
	}
	return nil
}

// applyDefaults returns ds with typ's defaults filled into unset fields.
// The configuration's dataset is not modified.
func (l *Library) applyDefaults(ds *Dataset, typ string) *Dataset {
	d := l.Defaults(typ)
	if d == nil {
		return ds
	}
	out := *ds
	if len(out.BackgroundColor) == 0 {
		out.BackgroundColor = d.BackgroundColor
	}
	if len(out.BorderColor) == 0 {
		out.BorderColor = d.BorderColor
	}
	if out.BorderWidth == 0 {
		out.BorderWidth = d.BorderWidth
	}
	if out.PointRadius == nil {
		out.PointRadius = d.PointRadius
	}
	if out.ShowLine == nil {
		out.ShowLine = d.ShowLine
	}
	if !out.Fill && d.Fill != nil {
		out.Fill = *d.Fill
	}
	return &out
}

func (l *Library) chartID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}
