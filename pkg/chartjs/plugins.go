package chartjs

import (
	"image/color"
	"sync"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Plugin extends every chart drawn by a library. A plugin opts into hooks
// by also implementing BeforeInitHook, BeforeDrawHook, AfterDrawHook or
// DestroyHook.
type Plugin interface {
	ID() string
}

// BeforeInitHook runs when a chart is constructed, before its first draw.
type BeforeInitHook interface {
	BeforeInit(c *Chart) error
}

// BeforeDrawHook runs on the full canvas before the plot is drawn.
type BeforeDrawHook interface {
	BeforeDraw(c *Chart, dc draw.Canvas) error
}

// AfterDrawHook runs on the full canvas after the plot is drawn.
type AfterDrawHook interface {
	AfterDraw(c *Chart, dc draw.Canvas) error
}

// DestroyHook runs when a chart is destroyed.
type DestroyHook interface {
	Destroy(c *Chart)
}

// PluginService holds the plugins registered with a library.
type PluginService struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// Register adds plugins. A plugin whose ID is already registered replaces
// the earlier one.
func (s *PluginService) Register(plugins ...Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
next:
	for _, p := range plugins {
		if p == nil {
			continue
		}
		for i, old := range s.plugins {
			if old.ID() == p.ID() {
				s.plugins[i] = p
				continue next
			}
		}
		s.plugins = append(s.plugins, p)
	}
}

// Unregister removes the plugin with the given id.
func (s *PluginService) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.plugins {
		if p.ID() == id {
			s.plugins = append(s.plugins[:i], s.plugins[i+1:]...)
			return
		}
	}
}

// Clear removes every plugin.
func (s *PluginService) Clear() {
	s.mu.Lock()
	s.plugins = nil
	s.mu.Unlock()
}

// Count returns the number of registered plugins.
func (s *PluginService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plugins)
}

// All returns the registered plugins in registration order.
func (s *PluginService) All() []Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Plugin(nil), s.plugins...)
}

// PluginFuncs builds a plugin from optional hook functions.
type PluginFuncs struct {
	Name         string
	OnBeforeInit func(c *Chart) error
	OnBeforeDraw func(c *Chart, dc draw.Canvas) error
	OnAfterDraw  func(c *Chart, dc draw.Canvas) error
	OnDestroy    func(c *Chart)
}

func (p *PluginFuncs) ID() string { return p.Name }

func (p *PluginFuncs) BeforeInit(c *Chart) error {
	if p.OnBeforeInit == nil {
		return nil
	}
	return p.OnBeforeInit(c)
}

func (p *PluginFuncs) BeforeDraw(c *Chart, dc draw.Canvas) error {
	if p.OnBeforeDraw == nil {
		return nil
	}
	return p.OnBeforeDraw(c, dc)
}

func (p *PluginFuncs) AfterDraw(c *Chart, dc draw.Canvas) error {
	if p.OnAfterDraw == nil {
		return nil
	}
	return p.OnAfterDraw(c, dc)
}

func (p *PluginFuncs) Destroy(c *Chart) {
	if p.OnDestroy != nil {
		p.OnDestroy(c)
	}
}

// BackgroundPlugin fills the whole canvas with clr before each draw.
func BackgroundPlugin(clr color.Color) Plugin {
	return &PluginFuncs{
		Name: "background",
		OnBeforeDraw: func(_ *Chart, dc draw.Canvas) error {
			r := dc.Rectangle
			dc.FillPolygon(clr, []vg.Point{
				r.Min,
				{X: r.Max.X, Y: r.Min.Y},
				r.Max,
				{X: r.Min.X, Y: r.Max.Y},
			})
			return nil
		},
	}
}
