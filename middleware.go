package bpush

// Middleware decorates the top-level listener of a connection for cross-cutting concerns. Decorators
// usually embed the wrapped [Listener] and override the callbacks they are interested in.
type Middleware func(Listener) Listener

// RestMiddleware decorates route listeners. The chain is built once per pooled route listener and reused
// across requests. Decorators with per-request state implement [Resetter]; the pool resets every layer of
// the chain, so they must not forward Reset themselves.
type RestMiddleware func(RestListener) RestListener

// Wrap takes the inner listener l and wraps it with middleware. The order is that of the Gorilla and Chi
// router. That is: the middleware provided first is called first and is the "outer" most wrapping, the
// middleware provided last will be the "inner most" wrapping (closest to the listener).
func Wrap(l Listener, m ...Middleware) Listener {
	return wrap(l, m)
}

// WrapRest is [Wrap] for route listeners.
func WrapRest(l RestListener, m ...RestMiddleware) RestListener {
	return wrap(l, m)
}

func wrap[L any, M ~func(L) L](l L, m []M) L {
	wrapped := l
	for i := len(m) - 1; i >= 0; i-- {
		wrapped = m[i](wrapped)
	}

	return wrapped
}

// WrapFactory applies the middleware to every listener the factory constructs.
func WrapFactory(newFn func() Listener, m ...Middleware) func() Listener {
	if len(m) < 1 {
		return newFn
	}

	return func() Listener { return Wrap(newFn(), m...) }
}

// chainedRest is a pooled route listener together with the middleware chain around it.
type chainedRest struct {
	RestListener
	layers []RestListener
}

// WrapRestFactory applies the middleware to every route listener the factory constructs. The result
// resets all layers of the chain on release.
func WrapRestFactory(newFn func() RestListener, m ...RestMiddleware) func() RestListener {
	if len(m) < 1 {
		return newFn
	}

	return func() RestListener {
		l := newFn()
		c := &chainedRest{layers: make([]RestListener, 0, len(m)+1)}
		c.layers = append(c.layers, l)

		for i := len(m) - 1; i >= 0; i-- {
			l = m[i](l)
			c.layers = append(c.layers, l)
		}

		c.RestListener = l

		return c
	}
}

// Reset resets the layers from the innermost outwards.
func (c *chainedRest) Reset() {
	for _, l := range c.layers {
		if rs, ok := l.(Resetter); ok {
			rs.Reset()
		}
	}
}

var _ Resetter = &chainedRest{}
