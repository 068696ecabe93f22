// Package example implements a calculator on top of bpush routes.
package example

import (
	"net/http"
	"strconv"

	"github.com/advdv/bpush"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// ErrDivisionByZero is returned when dividing by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Operation combines two operands.
type Operation func(a, b int) (int, error)

// Operations maps operation names to their implementation. The names are also the route names.
var Operations = map[string]Operation{
	"sum": func(a, b int) (int, error) { return a + b, nil },
	"sub": func(a, b int) (int, error) { return a - b, nil },
	"mul": func(a, b int) (int, error) { return a * b, nil },
	"div": func(a, b int) (int, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	},
}

// Register adds the calculator routes. Every operation is served by a streaming listener at
// "/arithmetic/<op>/{a}/{b}", and "/arithmetic/eval" evaluates a JSON document like
// {"op":"sum","args":[3,4,5]}.
func Register(routes *bpush.RestRoutes) {
	for _, name := range []string{"sum", "sub", "mul", "div"} {
		op := Operations[name]
		routes.Handle("/arithmetic/"+name+"/{a}/{b}", func() bpush.RestListener {
			return &binaryListener{op: op}
		}, name)
	}

	routes.HandleFunc("/arithmetic/eval", Eval, "eval")
}

// binaryListener computes while the request streams in: operands are parsed as they arrive and the
// result is written on finish.
type binaryListener struct {
	bpush.BaseRestListener
	op   Operation
	resp bpush.RestResponse
	args [2]int
	have [2]bool
	err  error
}

func (l *binaryListener) OnRequestStarted(_ string, resp bpush.RestResponse) error {
	l.resp = resp
	return nil
}

func (l *binaryListener) OnParameter(name string, value *bpush.Span) error {
	var idx int
	switch name {
	case "a":
		idx = 0
	case "b":
		idx = 1
	default:
		return nil
	}

	// path parameters arrive first, query parameters of the same name are ignored
	if l.have[idx] {
		return nil
	}

	v, err := value.Int()
	if err != nil {
		l.err = bpush.NewError(bpush.CodeBadRequest, errors.Wrapf(err, "operand %q", name))
		return l.err
	}

	l.args[idx], l.have[idx] = v, true

	return nil
}

func (l *binaryListener) OnError(err error) error {
	l.err = err
	return nil
}

func (l *binaryListener) OnRequestFinished() error {
	if l.err != nil || l.resp.Committed() {
		return l.err
	}

	res, err := l.op(l.args[0], l.args[1])
	if errors.Is(err, ErrDivisionByZero) {
		return l.resp.Failure().Custom(http.StatusBadRequest, "", err).Commit()
	} else if err != nil {
		return err
	}

	return writeInt(l.resp, res)
}

func (l *binaryListener) Reset() {
	l.resp, l.args, l.have, l.err = bpush.RestResponse{}, [2]int{}, [2]bool{}, nil
}

var _ bpush.Resetter = &binaryListener{}

// Eval folds the "args" of the JSON body with the operation named by "op".
func Eval(req *bpush.Request, resp bpush.RestResponse) error {
	if !gjson.ValidBytes(req.Body) {
		return bpush.NewError(bpush.CodeBadRequest, errors.New("body is not valid JSON"))
	}

	doc := gjson.ParseBytes(req.Body)

	name := doc.Get("op").String()
	op, ok := Operations[name]
	if !ok {
		return bpush.NewError(bpush.CodeBadRequest, errors.Newf("unknown operation %q", name))
	}

	args := doc.Get("args").Array()
	if len(args) < 2 {
		return bpush.NewError(bpush.CodeBadRequest, errors.New("at least two args are required"))
	}

	for _, arg := range args {
		if arg.Type != gjson.Number {
			return bpush.NewError(bpush.CodeBadRequest, errors.Newf("arg %s is not a number", arg.Raw))
		}
	}

	acc := int(args[0].Int())
	for _, arg := range args[1:] {
		var err error
		if acc, err = op(acc, int(arg.Int())); err != nil {
			return bpush.NewError(bpush.CodeBadRequest, err)
		}
	}

	return writeInt(resp, acc)
}

func writeInt(resp bpush.RestResponse, v int) error {
	res := strconv.Itoa(v)

	msg := resp.Success().OK()
	body, err := msg.Body("text/plain", len(res))
	if err != nil {
		return err
	}

	if _, err := body.WriteString(res); err != nil {
		return err
	}

	return msg.Commit()
}
