// Package bpush turns the framed events of HTTP requests into ordered callbacks on reusable listeners.
//
// # Overview
//
// A transport decodes the bytes arriving on a connection and pushes the result into a [Connection]:
// the start of a request, its parameters, headers, body bytes and multipart parts, errors, and the end
// of the request. The connection forwards these to a [Listener] it borrowed from a [Pool] and makes
// sure the listener sees properly bracketed requests:
//
//	started (parameter | header | body | part)* error? finished
//
// Every request ends with exactly one OnRequestFinished, also when the transport fails or the
// connection is torn down. Once a response is committed, the remaining events of the request are
// dropped except for OnRequestFinished. A committed response closes the connection: there is no
// keep-alive.
//
// A minimal example:
//
//	routes := bpush.NewRestRoutes()
//	routes.HandleFunc("/items/{id}", func(req *bpush.Request, resp bpush.RestResponse) error {
//	    if req.Param("id") == "" {
//	        return bpush.NewError(bpush.CodeBadRequest, errors.New("missing id"))
//	    }
//	    return resp.Success().NoContent().Commit()
//	}, "get-item")
//
//	table, err := routes.Build()
//	pool := bpush.NewPool(table.NewRouter)
//
// # Listeners
//
// The full [Listener] vocabulary is useful for middleware and for streaming consumers. Embed
// [BaseListener] to only implement the callbacks of interest. Most applications use the [RestRouter]
// instead: it resolves every request against a [RestTable] of path patterns and translates the events
// into the smaller [RestListener] vocabulary. Path parameters are delivered as a [Span], a view on the
// request url that is only valid during the callback. Listeners that keep a value must copy it.
//
// Route listeners are pooled per route and reused across requests and connections. They must not keep
// per-request state after they are released: implement [Resetter] or clear it in OnRequestFinished.
//
// # Routing
//
// Patterns consist of segments separated by '/' (or another separator, see [NewTree]). A segment is
// either literal or a named parameter like "{id}". At every level a literal segment takes precedence
// over a parameter. Unmatched urls are answered with a 404 without borrowing a route listener.
//
// # Responses
//
// A [Response] writes the status line, headers and a body of declared length into a buffer that is
// flushed whenever it runs full. [Response.Commit] ends the response; any write afterwards returns
// [ErrCommitted]. The status groups return an [OutputMessage] that chains headers and the body:
//
//	msg := resp.Success().OK().Header("X-Request-Id", id)
//	body, err := msg.Body("application/json", len(data))
//	...
//	return msg.Commit()
//
// # Errors
//
// Errors and panics of listeners are recovered by the connection and reported to the [Logger]. When a
// request finishes without a committed response, the connection commits a best-effort plain-text
// response. Its status is that of the last [*Error] the listener returned, see [NewError], or 500.
package bpush
