// Package decoder implements the module registry and the per-packet
// decode walk. Protocol modules register factories by name; the registry
// instantiates them, assigns integer ids, owns the global parameter and
// event tables, and resolves cross-module references once all modules
// are present.
package decoder

import (
	"fmt"

	"firestige.xyz/strix/internal/core"
)

// ModID identifies a registered module. ModNone terminates the walk.
type ModID int

// ModNone is returned by a module to stop decoding, either because it
// is the last layer or because the payload is short or unknown.
const ModNone ModID = -1

// Module is one protocol decoder. Decode reads from the payload cursor,
// annotates the property, and returns the id of the next module or
// ModNone. Decode must not block and must not panic on malformed input.
type Module interface {
	// Setup resolves references to other modules after every module is
	// registered. Lookups made here are recorded for cycle detection.
	Setup(rt *Registry) error
	Decode(pd *core.Payload, prop *core.Property) ModID
}

// Factory builds a module instance. The DefContext prefixes parameter
// names with the module's name; event names stay bare and global.
type Factory func(ctx *DefContext) Module

type namedFactory struct {
	name    string
	factory Factory
}

var defaultFactories []namedFactory

// RegisterModule adds a factory to the default module set, in call
// order. Protocol packages call this from init.
func RegisterModule(name string, f Factory) {
	defaultFactories = append(defaultFactories, namedFactory{name: name, factory: f})
}

// Registry holds the instantiated module set and the global parameter
// and event tables.
type Registry struct {
	names    []string
	modules  []Module
	idByName map[string]ModID

	params      []*core.ParamDef
	paramByName map[string]core.ParamID

	events      []*core.EventDef
	eventByName map[string]core.EventID

	edges    map[ModID][]ModID
	setupCur ModID
	setup    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		idByName:    make(map[string]ModID),
		paramByName: make(map[string]core.ParamID),
		eventByName: make(map[string]core.EventID),
		edges:       make(map[ModID][]ModID),
		setupCur:    ModNone,
	}
}

// Register instantiates a module under the given name and assigns its
// id. Duplicate names are a configuration error.
func (r *Registry) Register(name string, f Factory) (ModID, error) {
	if r.setup {
		return ModNone, fmt.Errorf("decoder: register %q after setup", name)
	}
	if _, ok := r.idByName[name]; ok {
		return ModNone, fmt.Errorf("decoder: module %q already registered", name)
	}
	id := ModID(len(r.modules))
	r.idByName[name] = id
	r.names = append(r.names, name)
	r.modules = append(r.modules, f(&DefContext{reg: r, mod: name}))
	return id, nil
}

// RegisterDefaults registers every module added via RegisterModule, in
// registration order.
func (r *Registry) RegisterDefaults() error {
	for _, nf := range defaultFactories {
		if _, err := r.Register(nf.name, nf.factory); err != nil {
			return err
		}
	}
	return nil
}

// Setup runs each module's Setup and then rejects cyclic module
// references. Call exactly once, after registration.
func (r *Registry) Setup() error {
	for id, m := range r.modules {
		r.setupCur = ModID(id)
		if err := m.Setup(r); err != nil {
			r.setupCur = ModNone
			return fmt.Errorf("decoder: setup %q: %w", r.names[id], err)
		}
	}
	r.setupCur = ModNone
	if err := r.checkCycles(); err != nil {
		return err
	}
	r.setup = true
	return nil
}

// LookupModule resolves a module name to its id. During Setup the
// lookup is recorded as an edge from the calling module for the cycle
// check.
func (r *Registry) LookupModule(name string) (ModID, error) {
	id, ok := r.idByName[name]
	if !ok {
		return ModNone, fmt.Errorf("decoder: unknown module %q", name)
	}
	if r.setupCur != ModNone {
		r.edges[r.setupCur] = append(r.edges[r.setupCur], id)
	}
	return id, nil
}

// ModuleName returns the registered name for id.
func (r *Registry) ModuleName(id ModID) string {
	if id < 0 || int(id) >= len(r.names) {
		return ""
	}
	return r.names[id]
}

// ModuleCount returns the number of registered modules.
func (r *Registry) ModuleCount() int { return len(r.modules) }

// LookupParam resolves a fully qualified parameter name, e.g.
// "tcp.src_port".
func (r *Registry) LookupParam(name string) *core.ParamDef {
	id, ok := r.paramByName[name]
	if !ok {
		return nil
	}
	return r.params[id]
}

// ParamSize returns the size of the global parameter table.
func (r *Registry) ParamSize() int { return len(r.params) }

// LookupEventID resolves an event name, core.EventNone when unknown.
func (r *Registry) LookupEventID(name string) core.EventID {
	id, ok := r.eventByName[name]
	if !ok {
		return core.EventNone
	}
	return id
}

// EventName returns the name for an event id.
func (r *Registry) EventName(id core.EventID) string {
	if id < 0 || int(id) >= len(r.events) {
		return ""
	}
	return r.events[id].Name()
}

// EventSize returns the size of the global event table.
func (r *Registry) EventSize() int { return len(r.events) }

func (r *Registry) checkCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(r.modules))
	var visit func(id ModID) error
	visit = func(id ModID) error {
		color[id] = gray
		for _, next := range r.edges[id] {
			switch color[next] {
			case gray:
				return fmt.Errorf("decoder: cyclic module reference %q -> %q",
					r.names[id], r.names[next])
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range r.modules {
		if color[id] == white {
			if err := visit(ModID(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DefContext scopes parameter and event definitions to one module while
// its factory runs.
type DefContext struct {
	reg *Registry
	mod string
}

// DefineParam declares a parameter. Its public name is the module name
// joined with a dot, e.g. "tcp.seq". A duplicate is a programming error
// and panics.
func (c *DefContext) DefineParam(name string, factory ...core.ValueFactory) *core.ParamDef {
	full := c.mod + "." + name
	if _, ok := c.reg.paramByName[full]; ok {
		panic(fmt.Sprintf("decoder: parameter %q defined twice", full))
	}
	var vf core.ValueFactory
	if len(factory) > 0 {
		vf = factory[0]
	}
	id := core.ParamID(len(c.reg.params))
	def := core.NewParamDef(id, full, vf)
	c.reg.params = append(c.reg.params, def)
	c.reg.paramByName[full] = id
	return def
}

// DefineEvent declares an event under its bare name. Event names are
// global; a duplicate across modules is a programming error and panics.
func (c *DefContext) DefineEvent(name string) *core.EventDef {
	if _, ok := c.reg.eventByName[name]; ok {
		panic(fmt.Sprintf("decoder: event %q defined twice", name))
	}
	id := core.EventID(len(c.reg.events))
	def := core.NewEventDef(id, name)
	c.reg.events = append(c.reg.events, def)
	c.reg.eventByName[name] = id
	return def
}

// Decoder walks a packet through the module chain.
type Decoder struct {
	reg  *Registry
	root ModID
}

// NewDecoder returns a decoder rooted at the named module, usually the
// link layer.
func NewDecoder(reg *Registry, root string) (*Decoder, error) {
	id, ok := reg.idByName[root]
	if !ok {
		return nil, fmt.Errorf("decoder: unknown root module %q", root)
	}
	return &Decoder{reg: reg, root: id}, nil
}

// Registry returns the registry the decoder was built from.
func (d *Decoder) Registry() *Registry { return d.reg }

// Decode resolves the packet through the module chain starting at the
// root. The walk is bounded by the module count; the cycle check at
// Setup makes the bound unreachable in a correct configuration.
func (d *Decoder) Decode(pd *core.Payload, prop *core.Property) {
	mod := d.root
	for steps := 0; mod != ModNone && steps <= len(d.reg.modules); steps++ {
		mod = d.reg.modules[mod].Decode(pd, prop)
	}
}
