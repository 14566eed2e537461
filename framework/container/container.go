package container

import (
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ── Storage tiers ─────────────────────────────────────────────────────────────

// definition is an eager service: a producer plus its lifecycle.
type definition struct {
	producer Producer
	shared   bool
}

// deferredEntry is a factory waiting for the first lookup of its identifier.
type deferredEntry struct {
	factory DeferredFactory
	shared  bool

	// set for entries standing in for a deferred provider
	placeholder bool
}

// registry holds the state shared by a container and every view of it handed
// to producers.
type registry struct {
	mu sync.Mutex

	// identifier → factory not yet materialised
	deferred map[string]*deferredEntry

	// identifier → eager definition
	defs map[string]*definition

	// identifier → resolved instance (shared definitions only)
	instances map[string]any

	flights singleflight.Group

	// identifier → chain currently running its flight
	owners map[string]uint64

	// chain → identifier it is blocked on
	waits map[uint64]string

	// identifier → decorators applied to every built instance
	extenders map[string][]Extender

	// tag → identifiers
	tags map[string][]string

	hooks []func(id string, instance any)

	// serialises Extend against itself
	extendMu sync.Mutex

	chains atomic.Uint64
	logger *zap.Logger
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is a name-keyed service container with deferred, eager and cached
// tiers.
//
// It supports:
//   - Register / Instance / Bind (eager)
//   - Defer / Singleton / Transient (deferred until first Resolve)
//   - Resolve / Make and the generic Resolve[T] / MustResolve[T]
//   - Extend / AfterResolving / Tag / Tagged
//   - Has / Resolved / Identifiers
//   - Remove / Reset
//
// A Container is safe for concurrent use. Producers receive a view of the
// container bound to the current resolution chain; registrations made through
// a view land in the same tables. A view tracks its chain for cycle detection,
// so a producer that keeps the container for later use, or hands it to other
// goroutines, should keep Root() instead.
type Container struct {
	reg *registry

	// resolution chain this view belongs to, zero for a root container
	chain uint64

	// identifiers being resolved on this chain, outermost first
	stack []string
}

// Option configures a Container.
type Option func(*registry)

// WithLogger sets the logger used for debug-level registration events.
func WithLogger(logger *zap.Logger) Option {
	return func(r *registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	r := &registry{
		deferred:  make(map[string]*deferredEntry),
		defs:      make(map[string]*definition),
		instances: make(map[string]any),
		owners:    make(map[string]uint64),
		waits:     make(map[uint64]string),
		extenders: make(map[string][]Extender),
		tags:      make(map[string][]string),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return &Container{reg: r}
}

// Root returns a view of the same container detached from any resolution
// chain.
func (c *Container) Root() *Container {
	if c.chain == 0 {
		return c
	}
	return &Container{reg: c.reg}
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register stores a definition under id, replacing any earlier definition or
// deferred entry and dropping a cached instance.
//
//	c.Register("config", container.Value(cfg), true)
//	c.Register("request-id", container.Func(newRequestID), false)
func (c *Container) Register(id string, p Producer, shared bool) {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deferred, id)
	delete(r.instances, id)
	r.defs[id] = &definition{producer: p, shared: shared}
	r.logger.Debug("service registered", zap.String("service", id), zap.Bool("shared", shared))
}

// Instance registers a pre-built value as a shared service.
//
//	c.Instance("config", myConfig)
func (c *Container) Instance(id string, v any) {
	c.Register(id, Value(v), true)
}

// Bind registers a transient factory, invoked on every Resolve.
//
//	c.Bind("UserRepository", func(c *container.Container) (any, error) {
//	    db, err := container.Resolve[*sql.DB](c, "db")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &SQLUserRepository{DB: db}, nil
//	})
func (c *Container) Bind(id string, f Factory) {
	c.Register(id, Func(f), false)
}

// Defer stores a factory that runs on the first Resolve of id. The Producer
// it returns is registered as a shared service.
//
//	c.Defer("db", func(c *container.Container) (container.Producer, error) {
//	    cfg, err := container.Resolve[*config.Config](c, "config")
//	    if err != nil {
//	        return container.Producer{}, err
//	    }
//	    return container.Value(sql.OpenDB(cfg.DSN())), nil
//	})
func (c *Container) Defer(id string, f DeferredFactory) {
	c.DeferShared(id, f, true)
}

// DeferShared is Defer with an explicit lifecycle for the promoted definition.
func (c *Container) DeferShared(id string, f DeferredFactory, shared bool) {
	if f == nil {
		panic("container: Defer called with a nil factory")
	}
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
	r.deferred[id] = &deferredEntry{factory: f, shared: shared}
	r.logger.Debug("service deferred", zap.String("service", id), zap.Bool("shared", shared))
}

// Singleton defers f; its first result is cached and reused.
//
//	c.Singleton("cache", func(c *container.Container) (any, error) {
//	    return cache.NewMemory(), nil
//	})
func (c *Container) Singleton(id string, f Factory) {
	c.DeferShared(id, deferFunc(f), true)
}

// Transient defers f; once promoted, every Resolve invokes it again.
func (c *Container) Transient(id string, f Factory) {
	c.DeferShared(id, deferFunc(f), false)
}

func deferFunc(f Factory) DeferredFactory {
	p := Func(f)
	return func(*Container) (Producer, error) { return p, nil }
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extender decorates an instance of a service after its producer built it.
type Extender func(instance any, c *Container) any

// Extend decorates every instance built for id from now on. A cached instance
// is decorated in place. Extenders must not call Extend.
//
//	c.Extend("logger", func(instance any, c *container.Container) any {
//	    return instance.(*zap.Logger).With(zap.String("component", "billing"))
//	})
func (c *Container) Extend(id string, fn Extender) {
	if fn == nil {
		panic("container: Extend called with a nil extender")
	}
	r := c.reg
	r.extendMu.Lock()
	defer r.extendMu.Unlock()

	r.mu.Lock()
	r.extenders[id] = append(r.extenders[id], fn)
	instance, cached := r.instances[id]
	def := r.defs[id]
	r.mu.Unlock()
	if !cached {
		return
	}

	extended := fn(instance, c.Root())
	r.mu.Lock()
	if _, still := r.instances[id]; still && r.defs[id] == def {
		r.instances[id] = extended
	}
	r.mu.Unlock()
}

// AfterResolving registers fn to run after the container builds an instance.
// Cached instances served again do not trigger it.
//
//	c.AfterResolving(func(id string, instance any) {
//	    logger.Debug("built", zap.String("service", id))
//	})
func (c *Container) AfterResolving(fn func(id string, instance any)) {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(slices.Clip(r.hooks), fn)
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag adds ids to a named group.
//
//	c.Tag([]string{"cpu-report", "memory-report"}, "reports")
func (c *Container) Tag(ids []string, tag string) {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag] = append(r.tags[tag], ids...)
}

// Tagged resolves every identifier in the group, in tagging order. The first
// failure is returned unchanged.
//
//	reports, err := c.Tagged("reports")
func (c *Container) Tagged(tag string) ([]any, error) {
	r := c.reg
	r.mu.Lock()
	ids := slices.Clone(r.tags[tag])
	r.mu.Unlock()

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		instance, err := c.Resolve(id)
		if err != nil {
			return nil, err
		}
		out = append(out, instance)
	}
	return out, nil
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// Has reports whether id has a definition or a pending deferred entry. It
// never promotes or instantiates anything.
func (c *Container) Has(id string) bool {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	_, hasDef := r.defs[id]
	_, hasDeferred := r.deferred[id]
	return hasDef || hasDeferred
}

// Resolved reports whether an instance of id is cached.
func (c *Container) Resolved(id string) bool {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[id]
	return ok
}

// Identifiers returns every registered or deferred identifier, sorted.
func (c *Container) Identifiers() []string {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.defs)+len(r.deferred))
	for id := range r.defs {
		seen[id] = struct{}{}
	}
	for id := range r.deferred {
		seen[id] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// ── Removal ───────────────────────────────────────────────────────────────────

// Remove clears id from every tier. Removing an unknown identifier is a no-op.
func (c *Container) Remove(id string) {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deferred, id)
	delete(r.defs, id)
	delete(r.instances, id)
	delete(r.extenders, id)
	r.logger.Debug("service removed", zap.String("service", id))
}

// Reset empties every tier and drops extenders, tags and hooks. References to
// the container stay valid.
func (c *Container) Reset() {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deferred = make(map[string]*deferredEntry)
	r.defs = make(map[string]*definition)
	r.instances = make(map[string]any)
	r.extenders = make(map[string][]Extender)
	r.tags = make(map[string][]string)
	r.hooks = nil
	r.logger.Debug("container reset")
}

// ── Generics helper ───────────────────────────────────────────────────────────

// Resolve resolves id and type-asserts the result.
//
//	db, err := container.Resolve[*sql.DB](c, "db")
func Resolve[T any](c *Container, id string) (T, error) {
	var zero T
	instance, err := c.Resolve(id)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, errors.NotValidf("service %q of type %T as %s", id, instance, reflect.TypeFor[T]())
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](c *Container, id string) T {
	typed, err := Resolve[T](c, id)
	if err != nil {
		panic(err)
	}
	return typed
}

// Make resolves id and panics on error.
func (c *Container) Make(id string) any {
	instance, err := c.Resolve(id)
	if err != nil {
		panic(err)
	}
	return instance
}
