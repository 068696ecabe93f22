package bpush

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// RestListener is the simplified vocabulary of a route listener. Headers and body brackets are not
// delivered; path parameters arrive right after OnRequestStarted, in pattern order, followed by the query
// and form parameters.
//
// Route listeners are pooled per route. Factories must return pointers, and an instance must clear its
// per-request state before it is released, either in OnRequestFinished or by implementing [Resetter].
type RestListener interface {
	OnRequestStarted(method string, resp RestResponse) error
	OnParameter(name string, value *Span) error
	OnBodyPart(p []byte) error
	OnError(err error) error
	OnRequestFinished() error
}

// BaseRestListener implements every [RestListener] callback as a no-op.
type BaseRestListener struct{}

func (BaseRestListener) OnRequestStarted(string, RestResponse) error { return nil }
func (BaseRestListener) OnParameter(string, *Span) error             { return nil }
func (BaseRestListener) OnBodyPart([]byte) error                     { return nil }
func (BaseRestListener) OnError(error) error                         { return nil }
func (BaseRestListener) OnRequestFinished() error                    { return nil }

var _ RestListener = BaseRestListener{}

// RestResponse is the response facade handed to route listeners.
type RestResponse struct{ r *Response }

// Success selects a 2xx status.
func (r RestResponse) Success() Success { return r.r.Success() }

// Failure selects a 4xx or 5xx status.
func (r RestResponse) Failure() Failure { return r.r.Failure() }

// Redirect selects a 3xx status.
func (r RestResponse) Redirect() Redirect { return r.r.Redirect() }

// Committed reports whether the response was committed.
func (r RestResponse) Committed() bool { return r.r.Committed() }

// Context returns the context of the current request.
func (r RestResponse) Context() context.Context {
	if r.r == nil {
		return context.Background()
	}

	return r.r.Context()
}

type restRoute struct {
	pattern string
	pool    *Pool[RestListener]
}

// RestTable is the immutable route table built by [RestRoutes.Build]. It is shared by all routers.
type RestTable struct {
	tree *Tree[*restRoute]
}

// NewRouter constructs a top-level listener that dispatches to the table's routes. It has the signature
// of a [Pool] factory.
func (t *RestTable) NewRouter() Listener {
	return &RestRouter{table: t}
}

// Lookup resolves path without dispatching, it returns the pattern of the matching route.
func (t *RestTable) Lookup(path string) (string, bool) {
	route, _, ok := t.tree.Find(path, nil)
	if !ok {
		return "", false
	}

	return route.pattern, true
}

// PoolStats returns the pool counters of the route registered with pattern.
func (t *RestTable) PoolStats(pattern string) (PoolStats, bool) {
	var (
		stats PoolStats
		found bool
	)

	t.walk(t.tree.root, func(r *restRoute) {
		if r.pattern == pattern {
			stats, found = r.pool.Stats(), true
		}
	})

	return stats, found
}

func (t *RestTable) walk(n *node[*restRoute], fn func(*restRoute)) {
	if n == nil {
		return
	}

	if n.terminal {
		fn(n.value)
	}

	for _, c := range n.literals {
		t.walk(c, fn)
	}

	t.walk(n.param, fn)
}

// RestRouter is the top-level listener that resolves each request to a route, borrows a listener from
// the route's pool and translates the full vocabulary into the [RestListener] one.
type RestRouter struct {
	BaseListener

	table  *RestTable
	params []Param
	span   Span

	route     *restRoute
	target    RestListener
	multipart bool
}

func (r *RestRouter) OnRequestStarted(method, url string, resp *Response) error {
	route, params, ok := r.table.tree.Find(url, r.params[:0])
	r.params = params

	if !ok {
		path := url
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}

		return resp.Failure().Custom(http.StatusNotFound, "No such url!\n"+path, nil).Commit()
	}

	l, err := route.pool.Borrow()
	if err != nil {
		return errors.Wrapf(err, "failed to borrow listener for route %q", route.pattern)
	}

	r.route, r.target = route, l

	if err := r.target.OnRequestStarted(method, RestResponse{resp}); err != nil {
		return err
	}

	for _, p := range r.params {
		if resp.Committed() {
			break
		}

		r.span.Set(url, p.Start, p.Len)
		err := r.target.OnParameter(p.Name, &r.span)
		r.span.Clear()

		if err != nil {
			return errors.Wrapf(err, "path parameter %q", p.Name)
		}
	}

	return nil
}

func (r *RestRouter) OnParameter(name, value string) error {
	if r.target == nil {
		return nil
	}

	r.span.SetString(value)
	defer r.span.Clear()

	return r.target.OnParameter(name, &r.span)
}

func (r *RestRouter) OnBodyContent(p []byte) error {
	if r.target == nil {
		return nil
	}

	return r.target.OnBodyPart(p)
}

func (r *RestRouter) OnPartStarted() error {
	if r.target == nil || r.multipart {
		return nil
	}

	r.multipart = true

	return r.target.OnError(ErrMultipartUnsupported)
}

func (r *RestRouter) OnError(cause error) error {
	if r.target == nil {
		return nil
	}

	return r.target.OnError(cause)
}

// OnRequestFinished finishes the route listener and releases it to its pool, also when it faults.
func (r *RestRouter) OnRequestFinished() (err error) {
	if r.target == nil {
		return nil
	}

	defer func() {
		if rerr := r.route.pool.Release(r.target); rerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(rerr, "failed to release listener for route %q", r.route.pattern))
		}

		r.Reset()
	}()

	return r.target.OnRequestFinished()
}

// Reset clears the per-request state.
func (r *RestRouter) Reset() {
	r.route, r.target = nil, nil
	r.params = r.params[:0]
	r.multipart = false
	r.span.Clear()
}

var (
	_ Listener = &RestRouter{}
	_ Resetter = &RestRouter{}
)
