package price

import "sort"

// Table maps a symbol to its most recently seen price.
// A Table handed to an observer is never written to again by this package.
type Table map[string]float64

// Empty returns a new table with no entries.
func Empty() Table {
	return make(Table)
}

// With returns a copy of t with symbol set to p. t itself is left untouched.
func (t Table) With(symbol string, p float64) Table {
	next := make(Table, len(t)+1)
	for k, v := range t {
		next[k] = v
	}
	next[symbol] = p
	return next
}

func (t Table) Clone() Table {
	cp := make(Table, len(t))
	for k, v := range t {
		cp[k] = v
	}
	return cp
}

// Equal reports whether both tables hold the same symbols with the same prices.
func (t Table) Equal(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Symbols returns the table keys in ascending order.
func (t Table) Symbols() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
