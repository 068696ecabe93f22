package bpush

import (
	"strings"

	"github.com/advdv/bpush/internal/pathpattern"
	"github.com/cockroachdb/errors"
)

// DefaultSeparator delimits path segments unless a tree is built with another one.
const DefaultSeparator = '/'

// Tree is a parameterized prefix tree keyed by path segment. Each edge is either a literal segment or a
// named parameter wildcard. Values are attached to terminal nodes. A tree is built at startup and is
// read-only afterwards, so lookups need no synchronization.
type Tree[V any] struct {
	sep  byte
	root *node[V]
	size int
}

type node[V any] struct {
	literals map[string]*node[V]
	param    *node[V]
	name     string // parameter name of the edge leading here, if any

	terminal bool
	pattern  string
	value    V
}

// NewTree inits an empty tree that splits paths on sep.
func NewTree[V any](sep byte) *Tree[V] {
	return &Tree[V]{sep: sep, root: &node[V]{}}
}

// Len returns the number of registered patterns.
func (t *Tree[V]) Len() int { return t.size }

// Insert attaches v to the pattern. A pattern without segments, like "/", is the root route.
func (t *Tree[V]) Insert(pattern string, v V) error {
	pat, err := pathpattern.Parse(pattern, t.sep)
	if err != nil {
		return errors.Wrapf(err, "failed to parse pattern %q", pattern)
	}

	n := t.root
	for _, seg := range pat.Segments {
		if seg.Param {
			switch {
			case n.param == nil:
				n.param = &node[V]{name: seg.Value}
			case n.param.name != seg.Value:
				return errors.Newf("pattern %q: parameter {%s} conflicts with {%s} at the same position",
					pattern, seg.Value, n.param.name)
			}

			n = n.param
			continue
		}

		child, ok := n.literals[seg.Value]
		if !ok {
			if n.literals == nil {
				n.literals = make(map[string]*node[V])
			}

			child = &node[V]{}
			n.literals[seg.Value] = child
		}

		n = child
	}

	if n.terminal {
		return errors.Newf("pattern %q: already registered as %q", pattern, n.pattern)
	}

	n.terminal, n.pattern, n.value = true, pattern, v
	t.size++

	return nil
}

// Find resolves path to the value of the matching pattern. The parameters of the match are appended to
// params as offsets into path, nothing is copied. Literal segments take precedence over parameters at
// every level; a parameter edge is only tried when the literal edge cannot complete the match. Anything
// after a '?' is ignored.
func (t *Tree[V]) Find(path string, params []Param) (v V, _ []Param, ok bool) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	n, params, ok := t.root.match(path, 0, t.sep, params)
	if !ok {
		return v, params, false
	}

	return n.value, params, true
}

func (n *node[V]) match(path string, pos int, sep byte, params []Param) (*node[V], []Param, bool) {
	for pos < len(path) && path[pos] == sep {
		pos++
	}

	if pos == len(path) {
		return n, params, n.terminal
	}

	end := pos
	for end < len(path) && path[end] != sep {
		end++
	}

	if child, ok := n.literals[path[pos:end]]; ok {
		if found, res, ok := child.match(path, end, sep, params); ok {
			return found, res, true
		}
	}

	if n.param != nil {
		mark := len(params)
		params = append(params, Param{Name: n.param.name, Start: pos, Len: end - pos})

		if found, res, ok := n.param.match(path, end, sep, params); ok {
			return found, res, true
		}

		params = params[:mark]
	}

	return nil, params, false
}
