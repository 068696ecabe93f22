package bpush

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultResponseBufferSize is the capacity of a response's outbound buffer unless configured otherwise.
const DefaultResponseBufferSize = 4096

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, DefaultResponseBufferSize)
		return &buf
	},
}

type respState uint8

const (
	respIdle respState = iota
	respHeaders
	respBody
	respCommitted
)

// Response writes one HTTP/1.1 response per request into a buffer that is handed to the outbound writer
// whenever it runs full. Every response is terminated by [Response.Commit], which flushes what remains,
// closes the outbound writer and notifies the connection. There is no keep-alive: a committed response
// ends the connection.
//
// The status-group helpers ([Response.Success], [Response.Failure], [Response.Redirect]) return an
// [OutputMessage] that chains header and body calls. Errors in such a chain are sticky and are returned
// from [OutputMessage.Body] or [OutputMessage.Commit].
type Response struct {
	out      io.WriteCloser
	buf      []byte
	pooled   *[]byte
	state    respState
	status   int
	flushed  bool
	werr     error
	err      error
	onCommit func()
	body     BodyWriter
	ctx      context.Context
}

// NewResponse inits a response that writes to out through a buffer of the given capacity. A size of zero
// or less uses [DefaultResponseBufferSize].
func NewResponse(out io.WriteCloser, size int) *Response {
	r := &Response{out: out}
	r.body.r = r

	if size <= 0 || size == DefaultResponseBufferSize {
		r.pooled = bufPool.Get().(*[]byte)
		r.buf = (*r.pooled)[:0]
	} else {
		r.buf = make([]byte, 0, size)
	}

	return r
}

// Status returns the status code written so far, or zero.
func (r *Response) Status() int { return r.status }

// Committed reports whether the response was committed.
func (r *Response) Committed() bool { return r.state == respCommitted }

// Flushed reports whether any bytes were handed to the outbound writer already.
func (r *Response) Flushed() bool { return r.flushed }

// WriteStatusLine starts the response. A "Connection: close" header is always included.
func (r *Response) WriteStatusLine(code int) error {
	switch r.state {
	case respCommitted:
		return ErrCommitted
	case respIdle:
	default:
		return errors.Wrapf(ErrInvalidState, "status line after status %d", r.status)
	}

	if code < 100 || code > 999 {
		return errors.Newf("bpush: invalid status code %d", code)
	}

	reason := http.StatusText(code)
	if reason == "" {
		reason = "Unknown"
	}

	r.status, r.state = code, respHeaders

	var line [64]byte
	b := append(line[:0], "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(code), 10)
	b = append(b, ' ')
	if err := r.append(b); err != nil {
		return err
	}

	if err := r.appendString(reason); err != nil {
		return err
	}

	return r.appendString("\r\nConnection: close\r\n")
}

// WriteHeader appends a header to the response. It must be called after the status line and before the
// body is opened.
func (r *Response) WriteHeader(name, value string) error {
	switch r.state {
	case respCommitted:
		return ErrCommitted
	case respHeaders:
	default:
		return errors.Wrapf(ErrInvalidState, "header %q outside of the header section", name)
	}

	if err := r.appendString(name); err != nil {
		return err
	}

	if err := r.appendString(": "); err != nil {
		return err
	}

	if err := r.appendString(value); err != nil {
		return err
	}

	return r.appendString("\r\n")
}

// OpenBody ends the header section with the given content type and length and returns the writer for
// the body. The length is not verified against what is written.
func (r *Response) OpenBody(contentType string, length int) (*BodyWriter, error) {
	if length < 0 {
		return nil, ErrChunkedUnsupported
	}

	if r.state == respHeaders {
		if err := r.WriteHeader("Content-Type", contentType); err != nil {
			return nil, err
		}

		var num [20]byte
		if err := r.WriteHeader("Content-Length", string(strconv.AppendInt(num[:0], int64(length), 10))); err != nil {
			return nil, err
		}
	}

	switch r.state {
	case respCommitted:
		return nil, ErrCommitted
	case respHeaders:
	default:
		return nil, errors.Wrap(ErrInvalidState, "body opened twice or before the status line")
	}

	if err := r.appendString("\r\n"); err != nil {
		return nil, err
	}

	r.state = respBody

	return &r.body, nil
}

// Commit flushes the response, closes the outbound writer and marks the response as committed. Only the
// first call has an effect, later calls return [ErrCommitted].
func (r *Response) Commit() error {
	switch r.state {
	case respCommitted:
		return ErrCommitted
	case respIdle:
		return errors.Wrap(ErrInvalidState, "commit before the status line")
	case respHeaders:
		if err := r.appendString("Content-Length: 0\r\n\r\n"); err != nil {
			return r.finish(err)
		}
	}

	return r.finish(r.flush())
}

// finish makes the response terminal regardless of earlier write errors.
func (r *Response) finish(err error) error {
	r.state = respCommitted

	if cerr := r.out.Close(); cerr != nil {
		err = errors.CombineErrors(err, errors.Wrap(cerr, "failed to close outbound"))
	}

	if r.onCommit != nil {
		r.onCommit()
	}

	return err
}

// fail commits a best-effort plain-text error response. When part of the response already left the
// buffer it cannot be replaced and the connection is only closed.
func (r *Response) fail(status int) error {
	if r.state == respCommitted {
		return nil
	}

	if r.flushed {
		return r.finish(errors.Newf("bpush: response partially sent, cannot replace with status %d", status))
	}

	r.buf, r.state, r.status, r.err = r.buf[:0], respIdle, 0, nil

	return r.Failure().Custom(status, http.StatusText(status), nil).Commit()
}

// reset prepares the response for the next request on the same connection.
func (r *Response) reset() {
	if r.state != respCommitted && !r.flushed {
		r.buf = r.buf[:0]
		r.state, r.status = respIdle, 0
	}

	r.err, r.ctx = nil, nil
}

// Context returns the context of the current request. It is cleared when the next request starts.
func (r *Response) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}

	return r.ctx
}

// SetContext replaces the context of the current request. Middleware uses it to hand values, such as a
// trace span, to the listeners it wraps.
func (r *Response) SetContext(ctx context.Context) { r.ctx = ctx }

// Free returns the buffer to the pool. The response must not be used afterwards.
func (r *Response) Free() {
	if r.pooled != nil {
		*r.pooled = r.buf[:0]
		bufPool.Put(r.pooled)
		r.pooled = nil
	}

	r.buf = nil
}

func (r *Response) append(p []byte) error {
	if r.state == respCommitted {
		return ErrCommitted
	}

	if r.werr != nil {
		return r.werr
	}

	if len(r.buf)+len(p) > cap(r.buf) {
		if err := r.flush(); err != nil {
			return err
		}

		if len(p) > cap(r.buf) {
			return r.write(p)
		}
	}

	r.buf = append(r.buf, p...)

	return nil
}

func (r *Response) appendString(s string) error {
	if r.state == respCommitted {
		return ErrCommitted
	}

	if r.werr != nil {
		return r.werr
	}

	for len(r.buf)+len(s) > cap(r.buf) {
		n := copy(r.buf[len(r.buf):cap(r.buf)], s)
		r.buf, s = r.buf[:len(r.buf)+n], s[n:]

		if err := r.flush(); err != nil {
			return err
		}
	}

	r.buf = append(r.buf, s...)

	return nil
}

func (r *Response) flush() error {
	if len(r.buf) == 0 {
		return r.werr
	}

	err := r.write(r.buf)
	r.buf = r.buf[:0]

	return err
}

func (r *Response) write(p []byte) error {
	if r.werr != nil {
		return r.werr
	}

	r.flushed = true
	if _, err := r.out.Write(p); err != nil {
		r.werr = errors.Wrap(err, "failed to write to outbound")
		return r.werr
	}

	return nil
}

// BodyWriter appends the body of a response.
type BodyWriter struct{ r *Response }

func (w *BodyWriter) Write(p []byte) (int, error) {
	if err := w.r.append(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *BodyWriter) WriteString(s string) (int, error) {
	if err := w.r.appendString(s); err != nil {
		return 0, err
	}

	return len(s), nil
}

func (w *BodyWriter) WriteByte(c byte) error {
	b := [1]byte{c}
	return w.r.append(b[:])
}

var (
	_ io.Writer       = &BodyWriter{}
	_ io.StringWriter = &BodyWriter{}
	_ io.ByteWriter   = &BodyWriter{}
)

// OutputMessage is the header and body part of a response whose status line was written.
type OutputMessage struct{ r *Response }

// Header appends a header.
func (m OutputMessage) Header(name, value string) OutputMessage {
	m.r.keep(m.r.WriteHeader(name, value))
	return m
}

// Body opens the body with a declared length.
func (m OutputMessage) Body(contentType string, length int) (*BodyWriter, error) {
	if m.r.err != nil {
		return nil, m.r.err
	}

	return m.r.OpenBody(contentType, length)
}

// Commit commits the response and reports any error that happened while building it.
func (m OutputMessage) Commit() error {
	err := m.r.err
	m.r.err = nil

	if cerr := m.r.Commit(); cerr != nil {
		return errors.CombineErrors(err, cerr)
	}

	return err
}

// keep records the first error of a chain.
func (r *Response) keep(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

func (r *Response) statusLine(code int) OutputMessage {
	r.keep(r.WriteStatusLine(code))
	return OutputMessage{r}
}

// Success selects a 2xx status.
func (r *Response) Success() Success { return Success{r} }

// Failure selects a 4xx or 5xx status.
func (r *Response) Failure() Failure { return Failure{r} }

// Redirect selects a 3xx status.
func (r *Response) Redirect() Redirect { return Redirect{r} }

// Success groups the 2xx statuses.
type Success struct{ r *Response }

func (s Success) OK() OutputMessage             { return s.r.statusLine(http.StatusOK) }
func (s Success) Created() OutputMessage        { return s.r.statusLine(http.StatusCreated) }
func (s Success) Accepted() OutputMessage       { return s.r.statusLine(http.StatusAccepted) }
func (s Success) NoContent() OutputMessage      { return s.r.statusLine(http.StatusNoContent) }
func (s Success) Custom(code int) OutputMessage { return s.r.statusLine(code) }

// Failure groups the 4xx and 5xx statuses. The variants that take a message write a plain-text body with
// the message and the error text, so the returned message only needs to be committed.
type Failure struct{ r *Response }

func (f Failure) BadRequest() OutputMessage   { return f.r.statusLine(http.StatusBadRequest) }
func (f Failure) Unauthorized() OutputMessage { return f.r.statusLine(http.StatusUnauthorized) }
func (f Failure) Forbidden() OutputMessage    { return f.r.statusLine(http.StatusForbidden) }
func (f Failure) NotFound() OutputMessage     { return f.r.statusLine(http.StatusNotFound) }

func (f Failure) InternalServerError(msg string, err error) OutputMessage {
	return f.Custom(http.StatusInternalServerError, msg, err)
}

func (f Failure) Custom(code int, msg string, err error) OutputMessage {
	m := f.r.statusLine(code)
	if msg == "" && err == nil {
		return m
	}

	text := msg
	if err != nil {
		if text != "" {
			text += "\n"
		}
		text += err.Error()
	}

	body, berr := m.Body("text/plain; charset=utf-8", len(text))
	if berr != nil {
		f.r.keep(berr)
		return m
	}

	_, werr := body.WriteString(text)
	f.r.keep(werr)

	return m
}

// Redirect groups the 3xx statuses, each with its Location header.
type Redirect struct{ r *Response }

func (d Redirect) MovedPermanently(location string) OutputMessage {
	return d.Custom(http.StatusMovedPermanently, location)
}

func (d Redirect) Found(location string) OutputMessage {
	return d.Custom(http.StatusFound, location)
}

func (d Redirect) SeeOther(location string) OutputMessage {
	return d.Custom(http.StatusSeeOther, location)
}

func (d Redirect) Custom(code int, location string) OutputMessage {
	return d.r.statusLine(code).Header("Location", location)
}
