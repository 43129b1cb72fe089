package di

// Token is a typed handle for a service registered in the container.
// It pairs a unique name with the service's Go type so call sites get
// compile-time type safety instead of bare string lookups and casts.
type Token[T any] struct {
	name string
}

// NewToken creates a token for services of type T under the given name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registry key for the token.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a lazy factory for the token's service.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves the token's service from the registry.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	return sr.Get(token.name).(T)
}
