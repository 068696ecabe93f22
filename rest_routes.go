package bpush

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type restEntry struct {
	pattern string
	name    string
	factory func() RestListener
	mws     []RestMiddleware
}

// RestRoutes collects the routes of a rest application at startup. Routes are matched by a [Tree] once
// the collection is frozen with [RestRoutes.Build].
type RestRoutes struct {
	sep         byte
	reverser    *Reverser
	entries     []restEntry
	middlewares struct {
		captured bool
		buffered []RestMiddleware
	}
}

// NewRestRoutes creates a route collection with default settings.
func NewRestRoutes() *RestRoutes {
	return NewRestRoutesWith(DefaultSeparator, NewReverser())
}

// NewRestRoutesWith creates a route collection with custom settings.
func NewRestRoutesWith(sep byte, reverser *Reverser) *RestRoutes {
	return &RestRoutes{sep: sep, reverser: reverser}
}

// Reverse returns the url based on the name and parameter values.
func (m *RestRoutes) Reverse(name string, vals ...string) (string, error) {
	return m.reverser.Reverse(name, vals...)
}

// Use allows providing of middleware.
func (m *RestRoutes) Use(mw ...RestMiddleware) {
	m.ensureNoUseAfterHandle()
	m.middlewares.buffered = append(m.middlewares.buffered, mw...)
}

// Handle registers the listener factory for the pattern. The optional name allows reversing the pattern
// into a url. Invalid patterns are reported by [RestRoutes.Build], or by a panic when a name is given.
func (m *RestRoutes) Handle(pattern string, factory func() RestListener, name ...string) {
	var n string
	if len(name) > 0 {
		n = name[0]
	}

	m.handle(restEntry{
		pattern: pattern,
		name:    n,
		factory: factory,
		mws:     append([]RestMiddleware(nil), m.middlewares.buffered...),
	})
}

// Mount registers all routes of sub below prefix. The middleware of this collection wraps that of sub,
// and named routes of sub are named the same here.
func (m *RestRoutes) Mount(prefix string, sub *RestRoutes) {
	prefix = strings.TrimRight(prefix, string(m.sep))

	for _, e := range sub.entries {
		m.handle(restEntry{
			pattern: prefix + string(m.sep) + strings.TrimLeft(e.pattern, string(m.sep)),
			name:    e.name,
			factory: e.factory,
			mws:     append(append([]RestMiddleware(nil), m.middlewares.buffered...), e.mws...),
		})
	}

	sub.middlewares.captured = true
}

// Build freezes the collection into an immutable route table.
func (m *RestRoutes) Build() (*RestTable, error) {
	tree := NewTree[*restRoute](m.sep)
	for _, e := range m.entries {
		if e.factory == nil {
			return nil, errors.Newf("no listener factory for pattern %q", e.pattern)
		}

		if err := tree.Insert(e.pattern, &restRoute{
			pattern: e.pattern,
			pool:    NewPool(WrapRestFactory(e.factory, e.mws...)),
		}); err != nil {
			return nil, errors.Wrap(err, "failed to build route table")
		}
	}

	return &RestTable{tree: tree}, nil
}

func (m *RestRoutes) handle(e restEntry) {
	m.middlewares.captured = true

	if e.name != "" {
		e.pattern = m.reverser.Named(e.name, e.pattern)
	}

	m.entries = append(m.entries, e)
}

func (m *RestRoutes) ensureNoUseAfterHandle() {
	if m.middlewares.captured {
		panic("bpush: cannot call Use() after calling Handle")
	}
}

// HandleFunc registers a buffered handler function for the pattern, see [ToRest].
func (m *RestRoutes) HandleFunc(pattern string, fn HandlerFunc, name ...string) {
	m.Handle(pattern, ToRest(fn, 0), name...)
}
