// Package container provides a name-keyed service container and a Service
// Provider system for Go.
//
// # Overview
//
// The container keeps three tiers per identifier: deferred factories, eager
// definitions and cached instances. Deferred factories are promoted to
// definitions on first lookup; shared definitions are built once and cached,
// transient ones are rebuilt on every Resolve.
//
// There is no package-level container. Create one at startup and pass it to
// the code that needs it, or carry it through a request with WithContainer.
//
// # Container Lifecycle
//
//  1. Create: c := container.New(container.WithLogger(logger))
//  2. Register providers: registry.Register(&MyProvider{})
//  3. Boot: registry.Boot()  (safe to resolve everything after this)
//  4. Serve requests
//
// # Registrations
//
//	// Pre-built value, shared
//	c.Instance("config", cfg)
//
//	// Eager producer with an explicit lifecycle
//	c.Register("clock", container.Value(clock.WallClock), true)
//	c.Register("request-id", container.Func(newRequestID), false)
//
//	// Transient: a new instance every Resolve
//	c.Bind("Foo", func(c *container.Container) (any, error) { return &Foo{}, nil })
//
//	// Deferred: nothing runs until the first Resolve
//	c.Singleton("cache", func(c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*Config](c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.NewMemory(cfg.CacheSize), nil
//	})
//	c.Transient("report", newReport)
//
//	// Deferred with a producer chosen at promotion time
//	c.Defer("db", func(c *container.Container) (container.Producer, error) {
//	    return container.Value(openDB()), nil
//	})
//
// # Resolving
//
//	// Untyped
//	raw, err := c.Resolve("cache")
//
//	// Generic, no type assertion required
//	cache, err := container.Resolve[*MemoryCache](c, "cache")
//
// Errors from producers are returned unchanged. An unknown identifier yields a
// *NotFoundError and a resolution that re-enters itself, directly or through
// other services, yields a *CyclicResolutionError:
//
//	if errors.Is(err, container.ErrNotFound) { ... }
//	if errors.Is(err, container.ErrCyclicResolution) { ... }
//
// # Decorators, Hooks and Tags
//
//	// Wrap every instance built for "logger"; a cached one is wrapped in place
//	c.Extend("logger", func(instance any, c *container.Container) any {
//	    return instance.(*zap.Logger).Named("app")
//	})
//
//	// Runs after each build, not on cache hits
//	c.AfterResolving(func(id string, instance any) { ... })
//
//	c.Tag([]string{"cpu-report", "memory-report"}, "reports")
//	reports, err := c.Tagged("reports")
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("mailer", newMailer)
//	}
//
//	func (p *AppServiceProvider) Boot(app *container.Container) error {
//	    // safe to resolve other services here
//	    return nil
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot()
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) {
//	    app.Singleton("heavy", func(c *container.Container) (any, error) {
//	        return heavySetup() // only called on first c.Resolve("heavy")
//	    })
//	}
//
// Concurrent first resolutions of a deferred provider's identifiers share one
// load. A deferred provider loaded before Boot is booted by Boot. One loaded
// after Boot is booted while its service is being resolved, so its Boot must
// not resolve the identifiers it provides; if that Boot fails, the provider
// is loaded again on the next resolution.
package container
