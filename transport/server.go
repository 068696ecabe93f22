// Package transport accepts TCP connections, decodes HTTP/1.1 requests and pushes them as framed events
// into a bpush.Connection.
package transport

import (
	"bufio"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/advdv/bpush"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by [Server.Serve] after [Server.Shutdown] was called.
var ErrServerClosed = errors.New("transport: server closed")

const (
	DefaultReadBufferSize = 4096
	DefaultBodyChunkSize  = 8192
	DefaultMaxFormSize    = 1 << 20
)

// Server serves one request per accepted connection. Each connection is handled by its own goroutine
// that delivers the request's events sequentially.
type Server struct {
	// Pool lends the top-level listener of every connection.
	Pool *bpush.Pool[bpush.Listener]
	// Logs receives the faults of connections and of the transport itself.
	Logs bpush.Logger
	// MaxConns limits the number of connections served at the same time, zero means no limit.
	MaxConns int
	// ReadBufferSize is the size of the buffered reader that decodes the request head.
	ReadBufferSize int
	// BodyChunkSize is the maximum size of the chunks in which the body is delivered.
	BodyChunkSize int
	// MaxFormSize bounds url-encoded bodies and the fields of multipart bodies.
	MaxFormSize int64
	// ResponseBufferSize is the capacity of the response buffer of every connection.
	ResponseBufferSize int
	// ReadTimeout bounds the time to read the whole request, zero means no timeout.
	ReadTimeout time.Duration

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

// ListenAndServe listens on the TCP network address and serves the connections it accepts.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := Listen(context.Background(), addr, false)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down. It always returns a non-nil error,
// after [Server.Shutdown] that is [ErrServerClosed].
func (s *Server) Serve(ln net.Listener) error {
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}

	if !s.track(ln, nil) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrack(ln, nil)

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}

			return errors.Wrap(err, "failed to accept")
		}

		if !s.track(nil, nc) {
			nc.Close()
			return ErrServerClosed
		}

		go s.serveConn(nc)
	}
}

// Shutdown stops accepting connections and waits for the active ones to finish. When ctx expires first
// the remaining connections are closed and the context's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true

	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.CombineErrors(err, errors.Wrap(cerr, "failed to close listener"))
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for nc := range s.conns {
			nc.Close()
		}
		s.mu.Unlock()

		return errors.CombineErrors(err, ctx.Err())
	}
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *Server) track(ln net.Listener, nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if ln != nil {
		if s.listeners == nil {
			s.listeners = make(map[net.Listener]struct{})
		}
		s.listeners[ln] = struct{}{}
	}

	if nc != nil {
		if s.conns == nil {
			s.conns = make(map[net.Conn]struct{})
		}
		s.conns[nc] = struct{}{}
		s.wg.Add(1)
	}

	return true
}

func (s *Server) untrack(ln net.Listener, nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ln != nil {
		delete(s.listeners, ln)
	}

	if nc != nil {
		delete(s.conns, nc)
		s.wg.Done()
	}
}

func (s *Server) logs() bpush.Logger {
	if s.Logs == nil {
		return bpush.NewStdLogger(nil)
	}

	return s.Logs
}

// outbound half-closes TCP connections on commit, so the peer sees the end of the response while the
// server still owns the socket.
type outbound struct{ net.Conn }

func (o outbound) Close() error {
	if hc, ok := o.Conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}

	return o.Conn.Close()
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.untrack(nil, nc)
	defer nc.Close()

	logs := s.logs()
	conn := bpush.NewConnection(s.Pool, outbound{nc},
		bpush.WithLogger(logs),
		bpush.WithResponseBufferSize(s.ResponseBufferSize))

	conn.Open()
	defer conn.Close()

	if s.ReadTimeout > 0 {
		if err := nc.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			logs.LogProtocolError(errors.Wrap(err, "failed to set read deadline"))
			return
		}
	}

	br := bufio.NewReaderSize(nc, lo.Ternary(s.ReadBufferSize > 0, s.ReadBufferSize, DefaultReadBufferSize))

	req, err := http.ReadRequest(br)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logs.LogProtocolError(errors.Wrap(err, "failed to read request"))
		}
		return
	}

	// the body is not closed: that would drain what is left of it after an early commit
	(&pusher{s: s, conn: conn, logs: logs}).push(req)
}

// pusher translates one decoded request into connection events. Every step checks for a committed
// response, after which nothing is read anymore.
type pusher struct {
	s    *Server
	conn *bpush.Connection
	logs bpush.Logger
}

func (p *pusher) push(req *http.Request) {
	target := req.RequestURI
	if req.URL.IsAbs() {
		target = req.URL.RequestURI()
	}

	p.conn.RequestStarted(req.Method, target)

	if !p.each(req.URL.RawQuery, p.conn.Parameter) || p.done() {
		return
	}

	p.conn.Header("Host", req.Host)
	for _, name := range sortedKeys(req.Header) {
		for _, value := range req.Header[name] {
			if p.done() {
				return
			}
			p.conn.Header(name, value)
		}
	}

	if req.ContentLength != 0 && !p.done() {
		if !p.pushBody(req) {
			return
		}
	}

	p.conn.RequestFinished()
}

func (p *pusher) done() bool { return p.conn.Committed() }

func (p *pusher) fail(err error) bool {
	p.logs.LogProtocolError(err)
	p.conn.Error(err)

	return false
}

func (p *pusher) pushBody(req *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return p.pushMultipart(req)
	case "application/x-www-form-urlencoded":
		return p.pushForm(req.Body)
	default:
		p.conn.BodyStarted()
		if !p.pushChunks(req.Body, p.conn.BodyContent) {
			return false
		}

		p.conn.BodyFinished()

		return true
	}
}

func (p *pusher) pushForm(body io.Reader) bool {
	data, err := p.readLimited(body)
	if err != nil {
		return p.fail(errors.Wrap(err, "failed to read form body"))
	}

	return p.each(string(data), p.conn.Parameter)
}

func (p *pusher) pushMultipart(req *http.Request) bool {
	mr, err := req.MultipartReader()
	if err != nil {
		return p.fail(bpush.NewError(bpush.CodeBadRequest, errors.Wrap(err, "invalid multipart body")))
	}

	for !p.done() {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return true
		} else if err != nil {
			return p.fail(errors.Wrap(err, "failed to read multipart part"))
		}

		if part.FileName() == "" {
			value, err := p.readLimited(part)
			if err != nil {
				return p.fail(errors.Wrapf(err, "failed to read form field %q", part.FormName()))
			}

			p.conn.Parameter(part.FormName(), string(value))
			continue
		}

		p.conn.PartStarted()
		if !p.pushChunks(part, p.conn.PartContent) {
			return false
		}
		p.conn.PartFinished()
	}

	return true
}

func (p *pusher) pushChunks(r io.Reader, deliver func([]byte)) bool {
	buf := make([]byte, lo.Ternary(p.s.BodyChunkSize > 0, p.s.BodyChunkSize, DefaultBodyChunkSize))

	for !p.done() {
		n, err := r.Read(buf)
		if n > 0 {
			deliver(buf[:n])
		}

		switch {
		case errors.Is(err, io.EOF):
			return true
		case err != nil:
			return p.fail(errors.Wrap(err, "failed to read body"))
		}
	}

	return false
}

func (p *pusher) readLimited(r io.Reader) ([]byte, error) {
	limit := lo.Ternary(p.s.MaxFormSize > 0, p.s.MaxFormSize, DefaultMaxFormSize)

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > limit {
		return nil, bpush.NewError(bpush.CodeRequestEntityTooLarge, errors.Newf("form exceeds %d bytes", limit))
	}

	return data, nil
}

// each delivers the pairs of a url-encoded string in wire order.
func (p *pusher) each(raw string, deliver func(name, value string)) bool {
	for raw != "" && !p.done() {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}

		name, value, _ := strings.Cut(pair, "=")

		name, err := url.QueryUnescape(name)
		if err != nil {
			return p.fail(bpush.NewError(bpush.CodeBadRequest, errors.Wrap(err, "invalid parameter name")))
		}

		value, err = url.QueryUnescape(value)
		if err != nil {
			return p.fail(bpush.NewError(bpush.CodeBadRequest, errors.Wrapf(err, "invalid value of %q", name)))
		}

		deliver(name, value)
	}

	return true
}

func sortedKeys(h http.Header) []string {
	keys := lo.Keys(h)
	slices.Sort(keys)

	return keys
}
