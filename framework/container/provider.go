package container

import (
	"fmt"
	"slices"
	"sync"

	"github.com/juju/errors"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups related registrations.
//
// Register binds services into the container. Boot is called after all
// eager providers are registered, making it safe to resolve other services
// inside Boot.
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("mailer", func(c *container.Container) (any, error) {
//	        cfg, err := container.Resolve[*config.Config](c, "config")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return mail.NewSMTP(cfg.Mail), nil
//	    })
//	}
type ServiceProvider interface {
	// Register binds services into the container.
	// Do NOT resolve other services here; use Boot for that.
	Register(app *Container)

	// Boot runs once every eager provider is registered.
	Boot(app *Container) error

	// Provides lists the identifiers a deferred provider registers.
	Provides() []string

	// IsDeferred reports whether the provider loads on the first resolution
	// of one of its Provides identifiers instead of at registration.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with no-op Boot, Provides and
// IsDeferred.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container) error { return nil }
func (p *BaseProvider) Provides() []string      { return nil }
func (p *BaseProvider) IsDeferred() bool        { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots ServiceProviders against one
// container, including deferred providers.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	registered map[ServiceProvider]bool

	// deferred provider → key of the flight loading it
	loads  map[ServiceProvider]string
	loaded map[ServiceProvider]bool

	// deferred providers loaded before Boot
	unbooted []ServiceProvider
	booted   bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		registered: make(map[ServiceProvider]bool),
		loads:      make(map[ServiceProvider]string),
		loaded:     make(map[ServiceProvider]bool),
	}
}

// Register adds a provider. Eager providers register immediately and, when
// the registry is already booted, boot immediately too. Deferred providers
// only leave placeholders for their Provides identifiers. Registering the
// same provider twice is a no-op.
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		r.loads[provider] = fmt.Sprintf("provider#%d %T", len(r.loads)+1, provider)
		r.mu.Unlock()
		r.placehold(provider)
		return nil
	}

	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	provider.Register(r.app)
	if booted {
		if err := provider.Boot(r.app); err != nil {
			return errors.Annotatef(err, "booting %T", provider)
		}
	}
	return nil
}

func (r *ProviderRegistry) placehold(provider ServiceProvider) {
	for _, id := range provider.Provides() {
		r.app.deferPlaceholder(id, r.loader(provider, id))
	}
}

// loader returns the placeholder factory for one identifier of a deferred
// provider. Placeholders of one provider share a single load; the provider's
// own registrations then replace them.
func (r *ProviderRegistry) loader(provider ServiceProvider, id string) DeferredFactory {
	return func(c *Container) (Producer, error) {
		r.mu.Lock()
		key := r.loads[provider]
		r.mu.Unlock()

		err := c.exclusive(key, func(c *Container) error {
			return r.load(c, provider)
		})
		if err != nil {
			return Producer{}, err
		}
		if c.placeholderPending(id) {
			return Producer{}, errors.NotImplementedf("service %q from deferred provider %T", id, provider)
		}
		return Producer{}, nil
	}
}

// load registers a deferred provider and boots it if the registry is booted.
// A failed Boot puts the placeholders back so the next resolution loads the
// provider again.
func (r *ProviderRegistry) load(c *Container, provider ServiceProvider) error {
	r.mu.Lock()
	done := r.loaded[provider]
	r.mu.Unlock()
	if done {
		return nil
	}

	provider.Register(c)

	r.mu.Lock()
	if !r.booted {
		r.loaded[provider] = true
		r.unbooted = append(r.unbooted, provider)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := provider.Boot(c); err != nil {
		r.placehold(provider)
		return errors.Annotatef(err, "booting %T", provider)
	}
	r.mu.Lock()
	r.loaded[provider] = true
	r.mu.Unlock()
	return nil
}

// Boot calls Boot on every eager provider and on every deferred provider
// already loaded, once.
func (r *ProviderRegistry) Boot() error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := append(slices.Clone(r.eager), r.unbooted...)
	r.unbooted = nil
	r.mu.Unlock()

	for _, provider := range providers {
		if err := provider.Boot(r.app); err != nil {
			return errors.Annotatef(err, "booting %T", provider)
		}
	}
	return nil
}

// Booted returns true if Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.eager)
}

// ── Placeholders ──────────────────────────────────────────────────────────────

func (c *Container) deferPlaceholder(id string, f DeferredFactory) {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
	r.deferred[id] = &deferredEntry{factory: f, shared: true, placeholder: true}
}

// placeholderPending reports whether id still maps to a provider placeholder.
func (c *Container) placeholderPending(id string) bool {
	r := c.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.deferred[id]
	return ok && entry.placeholder
}
