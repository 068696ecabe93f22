// Package pathpattern parses separator-delimited path patterns with named "{name}" parameter segments.
package pathpattern

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// Segment is one element of a parsed pattern. For parameter segments Value holds the parameter name.
type Segment struct {
	Value string
	Param bool
}

// Pattern is a parsed path pattern.
type Pattern struct {
	Str      string
	Sep      byte
	Segments []Segment
}

// Params returns the parameter names in the order they appear in the pattern.
func (p *Pattern) Params() []string {
	var names []string
	for _, seg := range p.Segments {
		if seg.Param {
			names = append(names, seg.Value)
		}
	}

	return names
}

// Parse parses s into a pattern. Empty segments (leading, trailing or repeated separators)
// are dropped, so "/" and "//" both parse into the root pattern with zero segments.
func Parse(s string, sep byte) (*Pattern, error) {
	if s == "" {
		return nil, errors.New("empty pattern")
	}

	pat := &Pattern{Str: s, Sep: sep}
	seen := map[string]struct{}{}

	var err error
	Split(s, sep, func(start, end int) bool {
		var seg Segment
		if seg, err = parseSegment(s[start:end]); err != nil {
			err = errors.Wrapf(err, "at offset %d", start)
			return false
		}

		if seg.Param {
			if _, dup := seen[seg.Value]; dup {
				err = errors.Newf("duplicate parameter name %q", seg.Value)
				return false
			}
			seen[seg.Value] = struct{}{}
		}

		pat.Segments = append(pat.Segments, seg)
		return true
	})
	if err != nil {
		return nil, err
	}

	return pat, nil
}

func parseSegment(s string) (Segment, error) {
	open, closing := strings.IndexByte(s, '{'), strings.IndexByte(s, '}')
	switch {
	case open < 0 && closing < 0:
		return Segment{Value: s}, nil
	case open != 0 || closing != len(s)-1:
		return Segment{}, errors.Newf("bad parameter segment %q: must be exactly {name}", s)
	}

	name := s[1 : len(s)-1]
	if name == "" {
		return Segment{}, errors.Newf("bad parameter segment %q: empty name", s)
	}
	if strings.ContainsAny(name, "{}") {
		return Segment{}, errors.Newf("bad parameter segment %q: nested braces", s)
	}

	return Segment{Value: name, Param: true}, nil
}

// Split calls fn with the bounds of every non-empty segment of path. Iteration stops early
// when fn returns false.
func Split(path string, sep byte, fn func(start, end int) bool) {
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != sep {
			continue
		}

		if i > start && !fn(start, i) {
			return
		}
		start = i + 1
	}
}

// Build renders the pattern into a path, substituting the parameters in order. Values are
// path-escaped.
func Build(p *Pattern, vals ...string) (string, error) {
	var (
		b strings.Builder
		n int
	)

	for _, seg := range p.Segments {
		b.WriteByte(p.Sep)
		if !seg.Param {
			b.WriteString(seg.Value)
			continue
		}

		if n >= len(vals) {
			return "", errors.Newf("not enough values for pattern %q: got %d", p.Str, len(vals))
		}

		b.WriteString(url.PathEscape(vals[n]))
		n++
	}

	if n < len(vals) {
		return "", errors.Newf("too many values for pattern %q: got %d, want %d", p.Str, len(vals), n)
	}

	if b.Len() == 0 {
		b.WriteByte(p.Sep)
	}

	return b.String(), nil
}
