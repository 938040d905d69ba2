package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one dot-separated step of a Path: an optional member name
// followed by zero or more array indexes, e.g. "first_name[0]".
type Segment struct {
	Key     string
	Indexes []int
}

// Path is a compiled field locator such as "data.first_name[0]".
//
// A key applied to an array projects over its elements, so
// "data.first_name" on an array of users yields the array of first
// names and "data.first_name[0]" the first of them. Elements missing the
// key contribute null to the projection.
type Path struct {
	raw      string
	segments []Segment
}

// Compile parses a path expression. The empty expression addresses the
// document root.
func Compile(expr string) (Path, error) {
	p := Path{raw: expr}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return p, nil
	}

	parts := strings.Split(expr, ".")
	for i, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("invalid path %q: segment %d: %w", p.raw, i+1, err)
		}
		if seg.Key == "" && i > 0 {
			return Path{}, fmt.Errorf("invalid path %q: segment %d: missing key", p.raw, i+1)
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustCompile is like Compile but panics on a malformed expression.
func MustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(part string) (Segment, error) {
	if part == "" {
		return Segment{}, fmt.Errorf("empty segment")
	}

	var seg Segment
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsRune(part, ']') {
			return Segment{}, fmt.Errorf("unexpected ']'")
		}
		seg.Key = part
		return seg, nil
	}

	seg.Key = part[:open]
	if strings.ContainsRune(seg.Key, ']') {
		return Segment{}, fmt.Errorf("unexpected ']'")
	}

	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return Segment{}, fmt.Errorf("unexpected %q after index", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Segment{}, fmt.Errorf("unterminated index")
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return Segment{}, fmt.Errorf("index %q is not an integer", rest[1:end])
		}
		seg.Indexes = append(seg.Indexes, idx)
		rest = rest[end+1:]
	}

	if seg.Key == "" && len(seg.Indexes) == 0 {
		return Segment{}, fmt.Errorf("empty segment")
	}
	return seg, nil
}

func (p Path) String() string { return p.raw }

func (p Path) Segments() []Segment { return p.segments }

// IsRoot reports whether the path addresses the whole document.
func (p Path) IsRoot() bool { return len(p.segments) == 0 }

// Resolve walks doc along the path. The second result is false when any
// step does not exist: a missing member, an index out of range, or a key
// or index applied to a value of the wrong kind.
func (p Path) Resolve(doc Value) (Value, bool) {
	cur := doc
	for _, seg := range p.segments {
		if seg.Key != "" {
			next, ok := selectKey(cur, seg.Key)
			if !ok {
				return Value{}, false
			}
			cur = next
		}
		for _, idx := range seg.Indexes {
			next, ok := cur.Index(idx)
			if !ok {
				return Value{}, false
			}
			cur = next
		}
	}
	return cur, true
}

func selectKey(v Value, key string) (Value, bool) {
	switch v.Kind() {
	case Object:
		return v.Get(key)
	case Array:
		items := v.Items()
		projected := make([]Value, len(items))
		for i, item := range items {
			switch item.Kind() {
			case Object:
				if member, ok := item.Get(key); ok {
					projected[i] = member
				}
			case Array:
				inner, ok := selectKey(item, key)
				if !ok {
					return Value{}, false
				}
				projected[i] = inner
			default:
				return Value{}, false
			}
		}
		return ArrayValue(projected...), true
	default:
		return Value{}, false
	}
}

// Resolve compiles expr and resolves it against doc. A malformed
// expression resolves to nothing.
func Resolve(doc Value, expr string) (Value, bool) {
	p, err := Compile(expr)
	if err != nil {
		return Value{}, false
	}
	return p.Resolve(doc)
}
