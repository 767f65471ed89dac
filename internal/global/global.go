// Package global holds the process-wide property namespace consulted by the
// charting engine. A chart session installs the properties of its virtual
// window here for the duration of a render and removes exactly those it
// added when it is torn down.
package global

import (
	"sort"
	"sync"
)

// Default is the namespace shared by every session in the process.
var Default = New()

// Namespace is a named property bag safe for concurrent use.
type Namespace struct {
	mu    sync.RWMutex
	props map[string]any
}

// New returns an empty namespace.
func New() *Namespace {
	return &Namespace{props: make(map[string]any)}
}

// Defined reports whether name holds a property.
func (n *Namespace) Defined(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.props[name]
	return ok
}

// Get returns the property stored under name.
func (n *Namespace) Get(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.props[name]
	return v, ok
}

// Float returns the property stored under name as a float64.
// Integer values are converted; anything else reports false.
func (n *Namespace) Float(name string) (float64, bool) {
	v, ok := n.Get(name)
	if !ok {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	}
	return 0, false
}

// Set stores v under name, replacing any previous value.
func (n *Namespace) Set(name string, v any) {
	n.mu.Lock()
	n.props[name] = v
	n.mu.Unlock()
}

// Delete removes name. Deleting an undefined name is a no-op.
func (n *Namespace) Delete(name string) {
	n.mu.Lock()
	delete(n.props, name)
	n.mu.Unlock()
}

// Names returns the defined names in sorted order.
func (n *Namespace) Names() []string {
	n.mu.RLock()
	names := make([]string, 0, len(n.props))
	for k := range n.props {
		names = append(names, k)
	}
	n.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of defined names.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.props)
}

// Install copies every property of props whose name is not already defined
// and returns the names it added, sorted. Pre-existing names are left
// untouched so that Uninstall never removes a property it did not create.
func (n *Namespace) Install(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n.mu.Lock()
	defer n.mu.Unlock()
	added := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := n.props[k]; ok {
			continue
		}
		n.props[k] = props[k]
		added = append(added, k)
	}
	return added
}

// Uninstall removes each of names.
func (n *Namespace) Uninstall(names []string) {
	n.mu.Lock()
	for _, k := range names {
		delete(n.props, k)
	}
	n.mu.Unlock()
}
