// Package plugin hosts the event bus that lets compiled-in extensions
// observe protocol lifecycle events without risking the dispatch path.
// Handlers run out-of-band: a slow or panicking handler never blocks or
// fails the command that triggered it.
package plugin

import (
	"fmt"
	"sync"

	"originchats/pkg/logger"
)

// Lifecycle events emitted by the dispatcher and the auth flow.
const (
	EventUserConnect = "user_connect"
	EventNewMessage  = "new_message"
	EventTyping      = "typing"
)

// Session is the triggering connection's identity as seen by handlers.
type Session struct {
	User  string
	Roles []string
}

// HostContext gives handlers controlled access to server facilities.
type HostContext struct {
	// Broadcast sends a packet to every authenticated connection.
	Broadcast func(v any)
	// Online returns the usernames of authenticated connections.
	Online func() []string
}

// Plugin is a loadable unit: a name, the events it handles and one
// handler entry point. RequiredRoles, when non-empty, restricts delivery
// to events triggered by sessions holding at least one of those roles.
type Plugin interface {
	Name() string
	Handles() []string
	RequiredRoles() []string
	Handle(event string, sess Session, payload map[string]any, host *HostContext)
}

// Factory builds a fresh plugin instance. Reload re-invokes the factory
// and atomically swaps the plugin's whole handler set.
type Factory func() Plugin

// Info describes a loaded plugin for plugins_list.
type Info struct {
	Name    string   `json:"name"`
	Handles []string `json:"handles"`
}

type entry struct {
	plugin string
	p      Plugin
}

// Registry maps event names to ordered handler lists. Emit snapshots the
// list under the read lock, so a concurrent reload swaps lists without an
// in-flight emit ever observing a partially-removed set.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
	handlers  map[string][]entry
	host      *HostContext
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		handlers:  make(map[string][]entry),
		host:      &HostContext{},
	}
}

// SetHost installs the host context handed to handlers. Called once during
// wiring, before any event is emitted.
func (r *Registry) SetHost(h *HostContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h != nil {
		r.host = h
	}
}

// Register instantiates the factory's plugin and appends its handlers to
// every event it declares.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := f()
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin has no name")
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	r.attach(name, p)
	logger.Info("plugin_loaded", "plugin", name, "handles", p.Handles())
	return nil
}

// attach appends a plugin's handlers. Caller holds the write lock.
func (r *Registry) attach(name string, p Plugin) {
	for _, ev := range p.Handles() {
		r.handlers[ev] = append(r.handlers[ev], entry{plugin: name, p: p})
	}
}

// detach removes every handler owned by the named plugin, swapping in
// freshly built lists. Caller holds the write lock.
func (r *Registry) detach(name string) {
	for ev, list := range r.handlers {
		kept := make([]entry, 0, len(list))
		for _, e := range list {
			if e.plugin != name {
				kept = append(kept, e)
			}
		}
		r.handlers[ev] = kept
	}
}

// List returns loaded plugins in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		p := r.factories[name]()
		out = append(out, Info{Name: name, Handles: p.Handles()})
	}
	return out
}

// Reload re-instantiates one plugin and atomically swaps its handler set.
func (r *Registry) Reload(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[name]
	if !ok {
		logger.Warn("plugin_reload_unknown", "plugin", name)
		return false
	}
	r.detach(name)
	r.attach(name, f())
	logger.Info("plugin_reloaded", "plugin", name)
	return true
}

// ReloadAll rebuilds every plugin from its factory, preserving
// registration order, and returns how many were reloaded.
func (r *Registry) ReloadAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]entry)
	for _, name := range r.order {
		r.attach(name, r.factories[name]())
	}
	logger.Info("plugins_reloaded", "count", len(r.order))
	return len(r.order)
}

// Emit schedules delivery of an event to all matching handlers. Handlers
// whose required roles do not intersect the session's roles are skipped.
// Delivery happens on a separate goroutine, in registration order, each
// invocation isolated by panic recovery; Emit itself never blocks.
func (r *Registry) Emit(event string, sess Session, payload map[string]any) {
	r.mu.RLock()
	snapshot := append([]entry(nil), r.handlers[event]...)
	host := r.host
	r.mu.RUnlock()
	if len(snapshot) == 0 {
		return
	}
	go func() {
		for _, e := range snapshot {
			if !roleMatch(e.p.RequiredRoles(), sess.Roles) {
				continue
			}
			invoke(e, event, sess, payload, host)
		}
	}()
}

func invoke(e entry, event string, sess Session, payload map[string]any, host *HostContext) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("plugin_panic", "plugin", e.plugin, "event", event, "error", rec)
		}
	}()
	e.p.Handle(event, sess, payload, host)
}

// roleMatch reports whether required is empty or intersects roles.
func roleMatch(required, roles []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, need := range required {
		for _, have := range roles {
			if need == have {
				return true
			}
		}
	}
	return false
}
