package container

// Factory builds a service instance from the container it is resolved in.
type Factory func(c *Container) (any, error)

// DeferredFactory builds the Producer of a deferred service. It runs once, on
// the first resolution of the identifier it was deferred under.
type DeferredFactory func(c *Container) (Producer, error)

type producerKind uint8

const (
	valueProducer producerKind = iota
	funcProducer
)

// Producer is either a Factory invoked on resolution or a pre-built value.
// The zero Producer yields a nil value.
type Producer struct {
	kind    producerKind
	factory Factory
	value   any
}

// Func wraps a factory that is invoked every time the service is built.
//
//	c.Register("mailer", container.Func(func(c *container.Container) (any, error) {
//	    return mail.NewSMTP(container.MustResolve[*config.Config](c, "config")), nil
//	}), true)
func Func(f Factory) Producer {
	if f == nil {
		panic("container: Func called with a nil factory")
	}
	return Producer{kind: funcProducer, factory: f}
}

// Value wraps a pre-built instance.
//
//	c.Register("config", container.Value(cfg), true)
func Value(v any) Producer {
	return Producer{kind: valueProducer, value: v}
}

// IsFunc reports whether p invokes a factory.
func (p Producer) IsFunc() bool { return p.kind == funcProducer }

func (p Producer) produce(c *Container) (any, error) {
	if p.kind == funcProducer {
		return p.factory(c)
	}
	return p.value, nil
}
