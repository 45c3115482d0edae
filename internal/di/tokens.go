package di

import (
	"fmt"
	"sync"
)

// Token is a typed service key. Contexts declare their tokens in a di
// package and expose typed getters over them.
type Token[T any] struct {
	name string
}

// NewToken creates a token with a unique name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registration key.
func (t Token[T]) Name() string { return t.name }

// lazy defers construction until first resolution and caches the result.
type lazy[T any] struct {
	once    sync.Once
	factory func(ServiceRegistry) T
	value   T
}

func (l *lazy[T]) resolve(s ServiceRegistry) T {
	l.once.Do(func() {
		l.value = l.factory(s)
	})
	return l.value
}

// RegisterToken registers a lazy singleton factory under the token.
func RegisterToken[T any](c Container, tok Token[T], factory func(ServiceRegistry) T) {
	c.Register(tok.name, &lazy[T]{factory: factory})
}

// GetToken resolves the token, constructing the service on first use.
// Panics when the token was never registered: resolution happens during
// startup wiring where that is a programming error.
func GetToken[T any](s ServiceRegistry, tok Token[T]) T {
	svc := s.Get(tok.name)
	if svc == nil {
		panic(fmt.Sprintf("di: token %q not registered", tok.name))
	}
	l, ok := svc.(*lazy[T])
	if !ok {
		panic(fmt.Sprintf("di: token %q registered with unexpected type %T", tok.name, svc))
	}
	return l.resolve(s)
}
