package bpush

import "strconv"

// Param locates a named path parameter inside the path it was matched against.
type Param struct {
	Name  string
	Start int
	Len   int
}

// Span is a flyweight view on part of a string that is owned by someone else. A span handed to a
// listener callback is only valid for the duration of that call: the router reuses and clears it right
// after. Listeners that need the value later must copy it, for example with [strings.Clone].
type Span struct {
	src   string
	start int
	n     int
}

// Set points the span at src[start:start+n].
func (s *Span) Set(src string, start, n int) {
	s.src, s.start, s.n = src, start, n
}

// SetString points the span at all of src.
func (s *Span) SetString(src string) {
	s.Set(src, 0, len(src))
}

// Clear detaches the span from its source.
func (s *Span) Clear() {
	s.src, s.start, s.n = "", 0, 0
}

// Len returns the number of bytes in view.
func (s *Span) Len() int { return s.n }

// At returns the i-th byte in view.
func (s *Span) At(i int) byte { return s.src[s.start+i] }

// String returns the viewed text. The result shares memory with the source and does not allocate.
func (s *Span) String() string { return s.src[s.start : s.start+s.n] }

// Equal reports whether the viewed text equals v.
func (s *Span) Equal(v string) bool { return s.String() == v }

// AppendTo appends the viewed text to dst.
func (s *Span) AppendTo(dst []byte) []byte { return append(dst, s.String()...) }

// Int parses the viewed text as a base-10 integer.
func (s *Span) Int() (int, error) { return strconv.Atoi(s.String()) }
