package bpush

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Request is the buffered form of a request, assembled from the events of a [RestListener].
type Request struct {
	Method string
	Params map[string]string
	Body   []byte
}

// Param returns the parameter value, or an empty string.
func (r *Request) Param(name string) string { return r.Params[name] }

// Handler serves a fully buffered request. It mirrors the classic request/response handler shape on top
// of the push vocabulary: parameters and body are collected first and the handler runs once the request
// has finished arriving.
type Handler interface {
	ServeBPush(req *Request, resp RestResponse) error
}

// HandlerFunc allow casting a function to implement [Handler].
type HandlerFunc func(req *Request, resp RestResponse) error

// ServeBPush implements the [Handler] interface.
func (f HandlerFunc) ServeBPush(req *Request, resp RestResponse) error {
	return f(req, resp)
}

// DefaultMaxBodySize bounds the body a [Handler] buffers.
const DefaultMaxBodySize = 1 << 20

// ToRest converts a handler into a route listener factory. Bodies larger than maxBody (or
// [DefaultMaxBodySize] when zero or less) fail the request with 413. An error returned by the handler
// is reported when it did not commit a response, the connection then responds with the error's code.
func ToRest(h Handler, maxBody int) func() RestListener {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	return func() RestListener {
		return &handlerListener{h: h, max: maxBody, req: Request{Params: map[string]string{}}}
	}
}

type handlerListener struct {
	h    Handler
	max  int
	req  Request
	resp RestResponse
	err  error
}

func (l *handlerListener) OnRequestStarted(method string, resp RestResponse) error {
	l.req.Method, l.resp = method, resp
	return nil
}

func (l *handlerListener) OnParameter(name string, value *Span) error {
	l.req.Params[strings.Clone(name)] = strings.Clone(value.String())
	return nil
}

func (l *handlerListener) OnBodyPart(p []byte) error {
	if len(l.req.Body)+len(p) > l.max {
		l.err = NewError(CodeRequestEntityTooLarge, errors.Newf("body exceeds %d bytes", l.max))
		return l.err
	}

	l.req.Body = append(l.req.Body, p...)

	return nil
}

func (l *handlerListener) OnError(err error) error {
	if l.err == nil {
		l.err = err
	}

	return nil
}

func (l *handlerListener) OnRequestFinished() error {
	if l.err != nil {
		return l.err
	}

	if l.resp.Committed() {
		return nil
	}

	return l.h.ServeBPush(&l.req, l.resp)
}

func (l *handlerListener) Reset() {
	clear(l.req.Params)
	l.req.Method, l.req.Body = "", l.req.Body[:0]
	l.resp, l.err = RestResponse{}, nil
}

var (
	_ RestListener = &handlerListener{}
	_ Resetter     = &handlerListener{}
)
