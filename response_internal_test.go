package bpush

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbound struct {
	bytes.Buffer
	writes int
	closed int
	err    error
}

func (o *outbound) Write(p []byte) (int, error) {
	o.writes++
	if o.err != nil {
		return 0, o.err
	}

	return o.Buffer.Write(p)
}

func (o *outbound) Close() error {
	o.closed++
	return nil
}

func BenchmarkResponse(b *testing.B) {
	for _, dat := range [][]byte{
		make([]byte, 1024),    // 1KiB
		make([]byte, 1024*64), // 64KiB
	} {
		b.Run("buffered-"+strconv.Itoa(len(dat)), func(b *testing.B) {
			b.ReportAllocs()

			for range b.N {
				out := &outbound{}
				resp := NewResponse(out, 0)

				body, err := resp.Success().OK().Body("application/octet-stream", len(dat))
				require.NoError(b, err)

				_, err = body.Write(dat)
				require.NoError(b, err)
				require.NoError(b, resp.Commit())

				resp.Free()
			}
		})
	}
}

func TestResponseWire(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, r *Response)
		exp   string
	}{
		{
			name: "ok with body",
			write: func(t *testing.T, r *Response) {
				body, err := r.Success().OK().Header("X-Foo", "bar").Body("text/plain", 1)
				require.NoError(t, err)
				require.NoError(t, body.WriteByte('7'))
				require.NoError(t, r.Commit())
			},
			exp: "HTTP/1.1 200 OK\r\nConnection: close\r\nX-Foo: bar\r\n" +
				"Content-Type: text/plain\r\nContent-Length: 1\r\n\r\n7",
		},
		{
			name: "no body",
			write: func(t *testing.T, r *Response) {
				require.NoError(t, r.Success().NoContent().Commit())
			},
			exp: "HTTP/1.1 204 No Content\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "redirect",
			write: func(t *testing.T, r *Response) {
				require.NoError(t, r.Redirect().SeeOther("/foo").Commit())
			},
			exp: "HTTP/1.1 303 See Other\r\nConnection: close\r\nLocation: /foo\r\nContent-Length: 0\r\n\r\n",
		},
		{
			name: "failure with message and error",
			write: func(t *testing.T, r *Response) {
				require.NoError(t, r.Failure().InternalServerError("oops", errors.New("boom")).Commit())
			},
			exp: "HTTP/1.1 500 Internal Server Error\r\nConnection: close\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\nContent-Length: 9\r\n\r\noops\nboom",
		},
		{
			name: "unknown reason",
			write: func(t *testing.T, r *Response) {
				require.NoError(t, r.Success().Custom(299).Commit())
			},
			exp: "HTTP/1.1 299 Unknown\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &outbound{}
			r := NewResponse(out, 0)
			defer r.Free()

			tt.write(t, r)

			require.Equal(t, tt.exp, out.String())
			require.Equal(t, 1, out.closed)
			require.True(t, r.Committed())
		})
	}
}

func TestResponseFlushOnCapacity(t *testing.T) {
	out := &outbound{}
	r := NewResponse(out, 16)

	body, err := r.Success().OK().Body("text/plain", 100)
	require.NoError(t, err)
	require.True(t, r.Flushed())

	_, err = body.WriteString(strings.Repeat("a", 100))
	require.NoError(t, err)
	require.NoError(t, r.Commit())

	assert.Greater(t, out.writes, 1)
	assert.True(t, strings.HasSuffix(out.String(), "\r\n\r\n"+strings.Repeat("a", 100)))
}

func TestResponseCommitOnce(t *testing.T) {
	out := &outbound{}
	r := NewResponse(out, 0)

	var commits int
	r.onCommit = func() { commits++ }

	require.NoError(t, r.Success().OK().Commit())
	require.ErrorIs(t, r.Commit(), ErrCommitted)
	require.ErrorIs(t, r.WriteStatusLine(200), ErrCommitted)
	require.ErrorIs(t, r.WriteHeader("a", "b"), ErrCommitted)

	_, err := r.OpenBody("text/plain", 0)
	require.ErrorIs(t, err, ErrCommitted)

	require.Equal(t, 1, commits)
	require.Equal(t, 1, out.closed)
}

func TestResponseOutOfOrder(t *testing.T) {
	r := NewResponse(&outbound{}, 0)

	require.ErrorIs(t, r.WriteHeader("a", "b"), ErrInvalidState)
	require.ErrorIs(t, r.Commit(), ErrInvalidState)

	require.NoError(t, r.WriteStatusLine(200))
	require.ErrorIs(t, r.WriteStatusLine(200), ErrInvalidState)

	_, err := r.OpenBody("text/plain", 0)
	require.NoError(t, err)
	require.ErrorIs(t, r.WriteHeader("a", "b"), ErrInvalidState)

	_, err = r.OpenBody("text/plain", 0)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestResponseStickyChainError(t *testing.T) {
	r := NewResponse(&outbound{}, 0)

	require.NoError(t, r.WriteStatusLine(200))

	msg := r.Success().Created().Header("X-Foo", "bar")
	_, err := msg.Body("text/plain", 0)
	require.ErrorIs(t, err, ErrInvalidState)

	err = msg.Commit()
	require.ErrorIs(t, err, ErrInvalidState)
	require.True(t, r.Committed())
}

func TestResponseChunkedUnsupported(t *testing.T) {
	r := NewResponse(&outbound{}, 0)

	_, err := r.Success().OK().Body("text/plain", -1)
	require.ErrorIs(t, err, ErrChunkedUnsupported)
}

func TestResponseInvalidStatus(t *testing.T) {
	r := NewResponse(&outbound{}, 0)
	require.ErrorContains(t, r.WriteStatusLine(42), "invalid status code 42")
}

func TestResponseWriteFailure(t *testing.T) {
	out := &outbound{err: errors.New("broken pipe")}
	r := NewResponse(out, 0)

	err := r.Success().OK().Commit()
	require.ErrorContains(t, err, "broken pipe")
	require.True(t, r.Committed())
	require.Equal(t, 1, out.closed)
}

func TestResponseFail(t *testing.T) {
	t.Run("replaces a buffered response", func(t *testing.T) {
		out := &outbound{}
		r := NewResponse(out, 0)

		_, err := r.Success().OK().Body("text/plain", 10)
		require.NoError(t, err)
		require.NoError(t, r.fail(400))

		require.Equal(t, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\nContent-Length: 11\r\n\r\nBad Request", out.String())
	})

	t.Run("only closes a partially sent response", func(t *testing.T) {
		out := &outbound{}
		r := NewResponse(out, 16)

		_, err := r.Success().OK().Body("text/plain", 10)
		require.NoError(t, err)
		require.ErrorContains(t, r.fail(500), "partially sent")
		require.True(t, r.Committed())
		require.Equal(t, 1, out.closed)
		require.NotContains(t, out.String(), "500")
	})

	t.Run("no-op after commit", func(t *testing.T) {
		out := &outbound{}
		r := NewResponse(out, 0)

		require.NoError(t, r.Success().OK().Commit())
		require.NoError(t, r.fail(500))
		require.Equal(t, 1, out.closed)
	})
}
