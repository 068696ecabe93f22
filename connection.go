package bpush

import (
	"io"

	"github.com/cockroachdb/errors"
)

// State is the request state of a connection.
type State uint8

const (
	StateIdle State = iota
	StateStarted
	StateActive
	StateFinished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnOption configures a connection.
type ConnOption func(*Connection)

// WithLogger sets the logger that faults are reported to.
func WithLogger(logs Logger) ConnOption {
	return func(c *Connection) { c.logs = logs }
}

// WithResponseBufferSize sets the capacity of the outbound response buffer.
func WithResponseBufferSize(size int) ConnOption {
	return func(c *Connection) { c.bufSize = size }
}

// Connection is the per-connection state machine between the transport and the listener. The transport
// calls its event methods strictly sequentially, from one goroutine at a time, so it needs no locking.
//
// The connection borrows one top-level listener when it is opened and returns it to the pool when it is
// closed. It guarantees that the listener sees properly bracketed requests: every started request is
// finished exactly once, also when the transport reports an error or the connection is torn down, and no
// events are delivered after the response was committed.
type Connection struct {
	pool     *Pool[Listener]
	listener Listener
	resp     *Response
	logs     Logger
	bufSize  int

	state     State
	committed bool
	lastErr   error
}

// NewConnection inits a connection whose responses are written to out.
func NewConnection(pool *Pool[Listener], out io.WriteCloser, opts ...ConnOption) *Connection {
	c := &Connection{pool: pool}
	for _, opt := range opts {
		opt(c)
	}

	if c.logs == nil {
		c.logs = NewStdLogger(nil)
	}

	c.resp = NewResponse(out, c.bufSize)
	c.resp.onCommit = c.onCommitted

	return c
}

// State returns the current state.
func (c *Connection) State() State { return c.state }

// Committed reports whether the response of the current request was committed. The transport should
// stop reading once it is.
func (c *Connection) Committed() bool { return c.committed }

// Response returns the connection's response writer.
func (c *Connection) Response() *Response { return c.resp }

// Open borrows the top-level listener. When the pool fails the connection stays usable but answers
// every request with a best-effort error response.
func (c *Connection) Open() {
	l, err := c.pool.Borrow()
	if err != nil {
		c.logs.LogPoolError(errors.Wrap(err, "failed to borrow listener"))
		return
	}

	c.listener = l
}

// RequestStarted starts a new request.
func (c *Connection) RequestStarted(method, url string) {
	switch {
	case c.committed || c.state == StateClosed:
		return
	case c.inRequest():
		c.logs.LogProtocolError(errors.Wrapf(ErrProtocolViolation,
			"request %s %s started while another request is in progress", method, url))
		return
	}

	c.state, c.lastErr = StateStarted, nil
	c.resp.reset()

	if c.listener == nil {
		c.logs.LogListenerError("OnRequestStarted", ErrNoListener)
		c.finish(ErrNoListener)
		return
	}

	if err := c.call("OnRequestStarted", func() error {
		return c.listener.OnRequestStarted(method, url, c.resp)
	}); err != nil {
		c.finish(err)
	}
}

// Parameter delivers a query or form parameter.
func (c *Connection) Parameter(name, value string) {
	c.deliver("OnParameter", func() error { return c.listener.OnParameter(name, value) })
}

// Header delivers a request header.
func (c *Connection) Header(name, value string) {
	c.deliver("OnHeader", func() error { return c.listener.OnHeader(name, value) })
}

// BodyStarted marks the start of a simple (non-multipart) body.
func (c *Connection) BodyStarted() {
	c.deliver("OnBodyStarted", func() error { return c.listener.OnBodyStarted() })
}

// BodyContent delivers a chunk of the body. p is only valid during the call.
func (c *Connection) BodyContent(p []byte) {
	c.deliver("OnBodyContent", func() error { return c.listener.OnBodyContent(p) })
}

// BodyFinished marks the end of a simple body.
func (c *Connection) BodyFinished() {
	c.deliver("OnBodyFinished", func() error { return c.listener.OnBodyFinished() })
}

// PartStarted marks the start of a multipart part.
func (c *Connection) PartStarted() {
	c.deliver("OnPartStarted", func() error { return c.listener.OnPartStarted() })
}

// PartContent delivers a chunk of a multipart part. p is only valid during the call.
func (c *Connection) PartContent(p []byte) {
	c.deliver("OnPartContent", func() error { return c.listener.OnPartContent(p) })
}

// PartFinished marks the end of a multipart part.
func (c *Connection) PartFinished() {
	c.deliver("OnPartFinished", func() error { return c.listener.OnPartFinished() })
}

// Error reports a transport error. The error is delivered to the listener and the request is finished,
// whatever the listener does with it.
func (c *Connection) Error(cause error) {
	if !c.inRequest() {
		c.logs.LogProtocolError(errors.Wrap(cause, "transport error outside of a request"))
		return
	}

	if !c.committed {
		c.record(c.call("OnError", func() error { return c.listener.OnError(cause) }))
	}

	c.finish(cause)
}

// RequestFinished ends the current request. Unlike the other events it is delivered after commit as
// well, it is the listener's only signal to release per-request resources.
func (c *Connection) RequestFinished() {
	if !c.inRequest() {
		if !c.committed {
			c.logs.LogProtocolError(errors.Wrap(ErrProtocolViolation, "request finished without being started"))
		}
		return
	}

	c.finish(nil)
}

// Close tears the connection down: a request in progress is finished and the listener is returned to
// its pool. Close is idempotent.
func (c *Connection) Close() {
	if c.state == StateClosed {
		return
	}

	if c.inRequest() {
		c.finish(nil)
	}

	if c.listener != nil {
		if err := c.pool.Release(c.listener); err != nil {
			c.logs.LogPoolError(errors.Wrap(err, "failed to release listener"))
		}

		c.listener = nil
	}

	if !c.committed {
		// no response for a request that never started, only close the outbound side
		if err := c.resp.finish(nil); err != nil {
			c.logs.LogResponseError(err)
		}
	}

	c.resp.Free()
	c.state = StateClosed
}

func (c *Connection) inRequest() bool {
	return c.state == StateStarted || c.state == StateActive
}

// deliver forwards an event of the request body section.
func (c *Connection) deliver(callback string, fn func() error) {
	switch {
	case c.committed || c.state == StateClosed:
		return
	case !c.inRequest():
		c.logs.LogProtocolError(errors.Wrapf(ErrProtocolViolation, "%s outside of a request", callback))
		return
	}

	c.state = StateActive
	c.record(c.call(callback, fn))
}

// finish delivers OnRequestFinished exactly once and commits a best-effort error response when the
// listener did not commit one.
func (c *Connection) finish(cause error) {
	c.record(cause)
	c.state = StateFinished

	if c.listener != nil {
		c.record(c.call("OnRequestFinished", c.listener.OnRequestFinished))
	}

	if !c.committed {
		err := c.lastErr
		if err == nil {
			err = ErrNotCommitted
			c.logs.LogResponseError(err)
		}

		if ferr := c.resp.fail(statusOf(err)); ferr != nil {
			c.logs.LogResponseError(errors.Wrap(ferr, "failed to write best-effort error response"))
		}
	}

	if c.state != StateClosed {
		c.state = StateIdle
	}
}

func (c *Connection) record(err error) {
	if err != nil {
		c.lastErr = err
	}
}

// call invokes one listener callback, recovering from panics. Faults are logged and returned.
func (c *Connection) call(callback string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("listener panicked: %v", r)
		}

		if err != nil {
			c.logs.LogListenerError(callback, err)
		}
	}()

	return fn()
}

func (c *Connection) onCommitted() {
	c.committed = true

	if c.listener != nil {
		_ = c.call("OnCommitted", func() error {
			c.listener.OnCommitted()
			return nil
		})
	}
}
