package bserve

import (
	"strings"
	"time"

	"github.com/advdv/bpush"
)

// exchange tracks one request from its start until it has both finished and committed, which may
// happen in either order.
type exchange struct {
	resp      *bpush.Response
	method    string
	path      string
	start     time.Time
	err       error
	active    bool
	finished  bool
	committed bool
}

func (x *exchange) begin(method, url string, resp *bpush.Response) {
	path, _, _ := strings.Cut(url, "?")
	*x = exchange{resp: resp, method: method, path: path, start: time.Now(), active: true}
}

func (x *exchange) fail(err error) {
	if err != nil {
		x.err = err
	}
}

func (x *exchange) complete() bool { return x.active && x.finished && x.committed }

func (x *exchange) status() int {
	if x.resp == nil {
		return 0
	}

	return x.resp.Status()
}

func (x *exchange) clear() { *x = exchange{} }

// resetInner forwards a pool reset to the wrapped listener.
func resetInner(l bpush.Listener) {
	if rs, ok := l.(bpush.Resetter); ok {
		rs.Reset()
	}
}
