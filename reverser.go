package bpush

import (
	"github.com/advdv/bpush/internal/pathpattern"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Reverser keeps track of named patterns and allows building URLs.
type Reverser struct {
	sep  byte
	pats map[string]*pathpattern.Pattern
}

// NewReverser inits the reverser for patterns separated by [DefaultSeparator].
func NewReverser() *Reverser {
	return NewReverserWith(DefaultSeparator)
}

// NewReverserWith inits the reverser for patterns separated by sep.
func NewReverserWith(sep byte) *Reverser {
	return &Reverser{sep: sep, pats: make(map[string]*pathpattern.Pattern)}
}

// Reverse reverses the named pattern into a url.
func (r Reverser) Reverse(name string, vals ...string) (string, error) {
	pat, ok := r.pats[name]
	if !ok {
		return "", errors.Newf("no pattern named: %q, got: %v", name, lo.Keys(r.pats))
	}

	res, err := pathpattern.Build(pat, vals...)
	if err != nil {
		return "", errors.Wrap(err, "failed to build")
	}

	return res, nil
}

// Named is a convenience method that panics if naming the pattern fails.
func (r Reverser) Named(name, str string) string {
	str, err := r.NamedPattern(name, str)
	if err != nil {
		panic("bpush: " + err.Error())
	}

	return str
}

// NamedPattern will parse 's' as a path pattern while returning it as well.
func (r Reverser) NamedPattern(name, str string) (string, error) {
	if _, exists := r.pats[name]; exists {
		return str, errors.Newf("pattern with name %q already exists", name)
	}

	pat, err := pathpattern.Parse(str, r.sep)
	if err != nil {
		return str, errors.Wrap(err, "failed to parse pattern")
	}

	r.pats[name] = pat

	return str, nil
}
