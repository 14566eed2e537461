package container

import (
	"slices"

	"go.uber.org/zap"
)

// maxPromotions bounds how many times one flight follows a deferred factory
// that re-defers its own identifier.
const maxPromotions = 16

// promoted is the flight result for a definition promoted as transient. Each
// caller then invokes the producer itself.
type promoted struct{}

// Resolve returns the instance registered under id.
//
// A deferred entry is promoted on the first call, then the definition is
// served from the instance cache or by invoking its producer. Shared services
// are built at most once per successful resolution even under concurrent first
// access. Producer errors are returned unchanged and nothing is cached.
//
//	raw, err := c.Resolve("cache")
func (c *Container) Resolve(id string) (any, error) {
	if slices.Contains(c.stack, id) {
		return nil, c.cycle(id)
	}
	if c.chain == 0 {
		c = &Container{reg: c.reg, chain: c.reg.chains.Add(1)}
	}
	return c.resolve(id)
}

func (c *Container) resolve(id string) (any, error) {
	r := c.reg
	for {
		r.mu.Lock()
		if _, deferred := r.deferred[id]; !deferred {
			if instance, ok := r.instances[id]; ok {
				r.mu.Unlock()
				return instance, nil
			}
			def, ok := r.defs[id]
			if !ok {
				r.mu.Unlock()
				return nil, &NotFoundError{ID: id}
			}
			if !def.shared {
				r.mu.Unlock()
				instance, _, err := c.child(id).build(id, def)
				if err != nil {
					return nil, err
				}
				r.resolved(id, instance)
				return instance, nil
			}
		}
		r.mu.Unlock()

		instance, err := c.flight(id, func() (any, error) {
			return c.materialize(id)
		})
		if err != nil {
			return nil, err
		}
		if _, ok := instance.(promoted); ok {
			continue
		}
		return instance, nil
	}
}

// flight joins or starts the flight for key. The chain that starts it owns
// key until fn returns; chains that join are recorded as waiting on key.
func (c *Container) flight(key string, fn func() (any, error)) (any, error) {
	r := c.reg
	r.mu.Lock()
	if r.deadlocks(c.chain, key) {
		r.mu.Unlock()
		return nil, c.cycle(key)
	}
	r.waits[c.chain] = key
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waits, c.chain)
		r.mu.Unlock()
	}()

	v, err, _ := r.flights.Do(key, func() (any, error) {
		r.mu.Lock()
		delete(r.waits, c.chain)
		r.owners[key] = c.chain
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			if r.owners[key] == c.chain {
				delete(r.owners, key)
			}
			r.mu.Unlock()
		}()
		return fn()
	})
	return v, err
}

// exclusive runs fn in the flight for key, outside the service tables. Chains
// arriving while fn runs block and share its error, and take part in cycle
// detection like chains waiting on a service.
func (c *Container) exclusive(key string, fn func(c *Container) error) error {
	if slices.Contains(c.stack, key) {
		return c.cycle(key)
	}
	if c.chain == 0 {
		c = &Container{reg: c.reg, chain: c.reg.chains.Add(1)}
	}
	_, err := c.flight(key, func() (any, error) {
		return nil, fn(c.child(key))
	})
	return err
}

// materialize runs inside the flight for id: it promotes a deferred entry if
// present, then builds and caches a shared instance.
func (c *Container) materialize(id string) (any, error) {
	r := c.reg
	view := c.child(id)
	for n := 0; ; n++ {
		r.mu.Lock()
		entry := r.deferred[id]
		r.mu.Unlock()
		if entry == nil {
			break
		}
		if n == maxPromotions {
			return nil, view.cycle(id)
		}
		p, err := entry.factory(view)
		if err != nil {
			return nil, err
		}
		// A factory that re-registered id has written after this entry;
		// that later write wins.
		r.mu.Lock()
		if r.deferred[id] == entry {
			delete(r.deferred, id)
			delete(r.instances, id)
			r.defs[id] = &definition{producer: p, shared: entry.shared}
			r.logger.Debug("deferred service promoted", zap.String("service", id), zap.Bool("shared", entry.shared))
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	if instance, ok := r.instances[id]; ok {
		r.mu.Unlock()
		return instance, nil
	}
	def, ok := r.defs[id]
	r.mu.Unlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if !def.shared {
		return promoted{}, nil
	}

	instance, applied, err := view.build(id, def)
	if err != nil {
		return nil, err
	}
	for {
		r.mu.Lock()
		// Removed or replaced while building: hand out the instance uncached.
		if r.defs[id] != def {
			r.mu.Unlock()
			break
		}
		exts := r.extenders[id]
		if len(exts) <= applied {
			r.instances[id] = instance
			r.mu.Unlock()
			break
		}
		r.mu.Unlock()
		// Extended while building.
		for _, ext := range exts[applied:] {
			instance = ext(instance, view)
		}
		applied = len(exts)
	}
	r.resolved(id, instance)
	return instance, nil
}

// build invokes the producer of def and applies the extenders of id. It
// returns how many extenders were applied.
func (c *Container) build(id string, def *definition) (any, int, error) {
	instance, err := def.producer.produce(c)
	if err != nil {
		return nil, 0, err
	}
	r := c.reg
	r.mu.Lock()
	exts := r.extenders[id]
	r.mu.Unlock()
	for _, ext := range exts {
		instance = ext(instance, c)
	}
	return instance, len(exts), nil
}

// resolved fires the AfterResolving hooks for a freshly built instance.
func (r *registry) resolved(id string, instance any) {
	r.mu.Lock()
	hooks := r.hooks
	r.mu.Unlock()
	for _, hook := range hooks {
		hook(id, instance)
	}
}

// deadlocks reports whether chain waiting on id closes a cycle in the
// wait-for graph: id's flight is owned by a chain that waits, transitively,
// on a flight owned by chain. Must hold mu.
func (r *registry) deadlocks(chain uint64, id string) bool {
	seen := make(map[uint64]bool)
	for next := id; ; {
		owner, ok := r.owners[next]
		if !ok {
			return false
		}
		if owner == chain {
			return true
		}
		if seen[owner] {
			return false
		}
		seen[owner] = true
		if next, ok = r.waits[owner]; !ok {
			return false
		}
	}
}

// child returns the view handed to producers of id.
func (c *Container) child(id string) *Container {
	return &Container{
		reg:   c.reg,
		chain: c.chain,
		stack: append(slices.Clip(c.stack), id),
	}
}

func (c *Container) cycle(id string) *CyclicResolutionError {
	return &CyclicResolutionError{Path: append(slices.Clone(c.stack), id)}
}
