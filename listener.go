package bpush

// Listener receives the bracketed events of the requests arriving on one connection. For every request
// the calls are ordered as OnRequestStarted, then any number of OnParameter, OnHeader and body or
// multipart part events, optionally OnError, and finally exactly one OnRequestFinished.
//
// Byte slices passed to the content callbacks are only valid during the call. Errors returned (and
// panics raised) by a listener are logged by the [Connection] and never abort the connection.
type Listener interface {
	OnRequestStarted(method, url string, resp *Response) error
	OnParameter(name, value string) error
	OnHeader(name, value string) error
	OnBodyStarted() error
	OnBodyContent(p []byte) error
	OnBodyFinished() error
	OnPartStarted() error
	OnPartContent(p []byte) error
	OnPartFinished() error
	OnError(cause error) error
	OnRequestFinished() error
	OnCommitted()
}

// BaseListener implements every [Listener] callback as a no-op. Embed it to only implement the callbacks
// of interest.
type BaseListener struct{}

func (BaseListener) OnRequestStarted(string, string, *Response) error { return nil }
func (BaseListener) OnParameter(string, string) error                 { return nil }
func (BaseListener) OnHeader(string, string) error                    { return nil }
func (BaseListener) OnBodyStarted() error                             { return nil }
func (BaseListener) OnBodyContent([]byte) error                       { return nil }
func (BaseListener) OnBodyFinished() error                            { return nil }
func (BaseListener) OnPartStarted() error                             { return nil }
func (BaseListener) OnPartContent([]byte) error                       { return nil }
func (BaseListener) OnPartFinished() error                            { return nil }
func (BaseListener) OnError(error) error                              { return nil }
func (BaseListener) OnRequestFinished() error                         { return nil }
func (BaseListener) OnCommitted()                                     {}

var _ Listener = BaseListener{}
