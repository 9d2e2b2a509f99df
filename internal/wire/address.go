package wire

import (
	"strconv"
	"strings"
)

// Addr is the nesting path that uniquely identifies an operator or scope
// within the analyzed computation: a non-empty sequence of small integers
// from the root through nested scopes. A is an ancestor of B exactly when A
// is a strict prefix of B.
type Addr []int

// Key returns a stable string form usable as a map key, e.g. "0.1.2".
func (a Addr) Key() string {
	var b strings.Builder
	for i, e := range a {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(e))
	}
	return b.String()
}

// String renders the address the way the source computation prints it.
func (a Addr) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(e))
	}
	b.WriteByte(']')
	return b.String()
}

// Parent returns the enclosing scope's address, or nil for a root address.
func (a Addr) Parent() Addr {
	if len(a) <= 1 {
		return nil
	}
	return a[:len(a)-1]
}

// HasPrefix reports whether p is a (non-strict) prefix of a.
func (a Addr) HasPrefix(p Addr) bool {
	if len(p) > len(a) {
		return false
	}
	for i := range p {
		if a[i] != p[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (a Addr) Clone() Addr {
	if a == nil {
		return nil
	}
	out := make(Addr, len(a))
	copy(out, a)
	return out
}

// CompareAddr orders addresses lexicographically, parents before children.
func CompareAddr(a, b Addr) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// ParseAddr parses the Key form back into an address.
func ParseAddr(key string) (Addr, error) {
	parts := strings.Split(key, ".")
	out := make(Addr, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
