package engine

import (
	"sort"
	"sync"
)

// Registry holds named views, one for each panel of hosts.
type Registry struct {
	mux     sync.Mutex
	views   map[string]*View
	factory func(name string) *View
}

func NewRegistry(factory func(name string) *View) *Registry {
	return &Registry{views: map[string]*View{}, factory: factory}
}

func (r *Registry) Get(name string) (*View, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	v, ok := r.views[name]
	return v, ok
}

// Ensure returns the view with the name, creating it if missing.
func (r *Registry) Ensure(name string) *View {
	r.mux.Lock()
	defer r.mux.Unlock()
	if v, ok := r.views[name]; ok {
		return v
	}
	v := r.factory(name)
	r.views[name] = v
	return v
}

// Remove closes and forgets the view. It returns false if there is no such view.
func (r *Registry) Remove(name string) bool {
	r.mux.Lock()
	v, ok := r.views[name]
	delete(r.views, name)
	r.mux.Unlock()

	if ok {
		v.Close()
	}
	return ok
}

// Names of views, sorted.
func (r *Registry) Names() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	names := make([]string, 0, len(r.views))
	for n := range r.views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tick ticks every view, and returns how many of them have scheduled an automatic refresh.
func (r *Registry) Tick() int {
	r.mux.Lock()
	views := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mux.Unlock()

	scheduled := 0
	for _, v := range views {
		if v.Tick() {
			scheduled += 1
		}
	}
	return scheduled
}

// Close closes every view.
func (r *Registry) Close() {
	r.mux.Lock()
	views := r.views
	r.views = map[string]*View{}
	r.mux.Unlock()

	for _, v := range views {
		v.Close()
	}
}
