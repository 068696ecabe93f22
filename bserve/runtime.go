package bserve

import (
	"net/http"

	"github.com/advdv/bpush"
	"github.com/carlmjohnson/requests"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into handler constructors via fx instead of reaching for globals.
//
// Example:
//
//	type Handlers struct{ rt *bserve.Runtime[Env] }
//
//	func NewHandlers(rt *bserve.Runtime[Env]) *Handlers { return &Handlers{rt: rt} }
//
//	func (h *Handlers) Create(req *bpush.Request, resp bpush.RestResponse) error {
//	    loc, err := h.rt.Reverse("get-item", id)
//	    // ...
//	}
type Runtime[E Environment] struct {
	env       E
	routes    *bpush.RestRoutes
	transport http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, routes *bpush.RestRoutes, transport http.RoundTripper) *Runtime[E] {
	return &Runtime[E]{env: env, routes: routes, transport: transport}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the URL for a named route with the given parameters.
// The route must have been registered with a name using Handle/HandleFunc.
func (r *Runtime[E]) Reverse(name string, params ...string) (string, error) {
	return r.routes.Reverse(name, params...)
}

// NewRequest returns a request builder for outbound calls. Its transport records client spans and
// propagates the trace context.
func (r *Runtime[E]) NewRequest() *requests.Builder {
	return newRequestBuilder(r.transport)
}
