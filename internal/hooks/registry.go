package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/actingweb/actingweb-go/internal/permissions"
)

// propertyHook is one registered (pattern, operation) interceptor.
// Hooks are kept in registration order; matching hooks chain.
type propertyHook struct {
	pattern string
	op      PropertyOp
	fn      PropertyFunc
}

// Registry is the typed hook dispatch table. Registration happens at
// startup from the composition root; dispatch happens concurrently from
// request handlers, so reads take the shared lock.
type Registry struct {
	mu sync.RWMutex

	lifecycle map[LifecycleEvent][]LifecycleFunc
	property  []propertyHook
	callbacks map[string]CallbackFunc
	app       map[string]AppCallbackFunc

	methods   map[string]Handler
	actions   map[string]Handler
	tools     map[string]Handler
	prompts   map[string]Handler
	resources map[string]Handler

	log *slog.Logger
}

// NewRegistry creates an empty hook registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		lifecycle: make(map[LifecycleEvent][]LifecycleFunc),
		callbacks: make(map[string]CallbackFunc),
		app:       make(map[string]AppCallbackFunc),
		methods:   make(map[string]Handler),
		actions:   make(map[string]Handler),
		tools:     make(map[string]Handler),
		prompts:   make(map[string]Handler),
		resources: make(map[string]Handler),
		log:       log.With("subsystem", "hooks"),
	}
}

// OnLifecycle registers an observer for a lifecycle event. Multiple
// observers run in registration order.
func (r *Registry) OnLifecycle(ev LifecycleEvent, fn LifecycleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle[ev] = append(r.lifecycle[ev], fn)
}

// OnProperty registers a property interceptor for names matching the
// glob pattern and the given operation.
func (r *Registry) OnProperty(pattern string, op PropertyOp, fn PropertyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.property = append(r.property, propertyHook{
		pattern: pattern,
		op:      op,
		fn:      fn,
	})
}

// OnCallback registers the handler for POST /callbacks/{name}.
func (r *Registry) OnCallback(name string, fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[name] = fn
}

// OnAppCallback registers an app-level callback (AppCallbackBot or
// AppCallbackOAuth).
func (r *Registry) OnAppCallback(name string, fn AppCallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app[name] = fn
}

// RegisterMethod exposes a handler under /methods/{name}.
func (r *Registry) RegisterMethod(h Handler) {
	r.register(r.methods, h)
}

// RegisterAction exposes a handler under /actions/{name}.
func (r *Registry) RegisterAction(h Handler) {
	r.register(r.actions, h)
}

// RegisterTool exposes a handler as an MCP tool.
func (r *Registry) RegisterTool(h Handler) {
	r.register(r.tools, h)
}

// RegisterPrompt exposes a handler as an MCP prompt.
func (r *Registry) RegisterPrompt(h Handler) {
	r.register(r.prompts, h)
}

// RegisterResource exposes a handler under /resources and as an MCP
// resource. The descriptor name may be a URI pattern.
func (r *Registry) RegisterResource(h Handler) {
	r.register(r.resources, h)
}

func (r *Registry) register(m map[string]Handler, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[h.Name] = h
}

// EmitLifecycle runs every observer for the event. Observer errors are
// joined so a veto-capable caller can inspect them; they are also
// logged for callers that ignore the return.
func (r *Registry) EmitLifecycle(
	ctx context.Context, ev LifecycleEvent, actorID string,
	payload map[string]any,
) error {

	r.mu.RLock()
	fns := r.lifecycle[ev]
	r.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx, actorID, payload); err != nil {
			r.log.WarnContext(ctx, "Lifecycle hook failed",
				"event", ev,
				"actor_id", actorID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TransformProperty chains every matching property hook over the value.
// Each hook sees the previous hook's output. ErrRejected (or any other
// hook error) aborts the chain.
func (r *Registry) TransformProperty(
	ctx context.Context, op PropertyOp, actorID, name string,
	value json.RawMessage,
) (json.RawMessage, error) {

	r.mu.RLock()
	hooks := r.property
	r.mu.RUnlock()

	for _, h := range hooks {
		if h.op != op || !permissions.MatchPattern(h.pattern, name) {
			continue
		}

		out, err := h.fn(ctx, actorID, name, value)
		if err != nil {
			return nil, fmt.Errorf(
				"property hook %q on %s: %w", h.pattern, name, err,
			)
		}
		if out != nil {
			value = out
		}
	}
	return value, nil
}

// InvokeCallback dispatches an actor-level callback. The boolean is
// false when no handler is registered for the name.
func (r *Registry) InvokeCallback(
	ctx context.Context, actorID, name string, body json.RawMessage,
) (json.RawMessage, bool, error) {

	r.mu.RLock()
	fn, ok := r.callbacks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	out, err := fn(ctx, actorID, name, body)
	return out, true, err
}

// InvokeAppCallback dispatches an app-level callback by name.
func (r *Registry) InvokeAppCallback(
	ctx context.Context, name string, body json.RawMessage,
) (json.RawMessage, bool, error) {

	r.mu.RLock()
	fn, ok := r.app[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	out, err := fn(ctx, body)
	return out, true, err
}

// Method looks up a registered method handler.
func (r *Registry) Method(name string) (Handler, bool) {
	return r.lookup(r.methods, name)
}

// Action looks up a registered action handler.
func (r *Registry) Action(name string) (Handler, bool) {
	return r.lookup(r.actions, name)
}

// Tool looks up a registered tool handler.
func (r *Registry) Tool(name string) (Handler, bool) {
	return r.lookup(r.tools, name)
}

// Prompt looks up a registered prompt handler.
func (r *Registry) Prompt(name string) (Handler, bool) {
	return r.lookup(r.prompts, name)
}

// Resource looks up a resource handler. An exact name match wins;
// otherwise the first registered handler whose name pattern matches the
// target is returned, so URI patterns like notes://* work.
func (r *Registry) Resource(target string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.resources[target]; ok {
		return h, true
	}
	for _, name := range sortedKeys(r.resources) {
		if permissions.MatchPattern(name, target) {
			return r.resources[name], true
		}
	}
	return Handler{}, false
}

func (r *Registry) lookup(m map[string]Handler, name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := m[name]
	return h, ok
}

// Tools returns the registered tool handlers sorted by name.
func (r *Registry) Tools() []Handler { return r.list(r.tools) }

// Prompts returns the registered prompt handlers sorted by name.
func (r *Registry) Prompts() []Handler { return r.list(r.prompts) }

// Resources returns the registered resource handlers sorted by name.
func (r *Registry) Resources() []Handler { return r.list(r.resources) }

// Methods returns the registered method handlers sorted by name.
func (r *Registry) Methods() []Handler { return r.list(r.methods) }

// Actions returns the registered action handlers sorted by name.
func (r *Registry) Actions() []Handler { return r.list(r.actions) }

func (r *Registry) list(m map[string]Handler) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, 0, len(m))
	for _, name := range sortedKeys(m) {
		out = append(out, m[name])
	}
	return out
}

func sortedKeys(m map[string]Handler) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
