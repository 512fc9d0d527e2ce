package util

import (
	"sort"
	"strings"
	"unicode"
)

// NaturalLess compares two strings so that embedded numbers are ordered by
// value: "2" sorts before "10", "ch1.5" between "ch1" and "ch2". Non-digit
// runs compare case-insensitively.
func NaturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		da, db := isDigit(ca), isDigit(cb)

		switch {
		case da && db:
			// Compare the full digit runs numerically: skip leading
			// zeros, then longer run wins, then lexicographic.
			na, ea := digitRun(a, i)
			nb, eb := digitRun(b, j)
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			i, j = ea, eb
		case da != db:
			// A number sorts before text at the same position.
			return da
		default:
			ra := unicode.ToLower(rune(ca))
			rb := unicode.ToLower(rune(cb))
			if ra != rb {
				return ra < rb
			}
			i++
			j++
		}
	}
	return len(a)-i < len(b)-j
}

// digitRun returns the digit run starting at pos with leading zeros
// stripped, and the index just past it.
func digitRun(s string, pos int) (string, int) {
	end := pos
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	run := strings.TrimLeft(s[pos:end], "0")
	return run, end
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// SortNatural sorts strs in place in natural order.
func SortNatural(strs []string) {
	sort.Slice(strs, func(i, j int) bool {
		return NaturalLess(strs[i], strs[j])
	})
}

// SortNaturalFunc sorts items in place by a natural comparison of the key
// that keyOf extracts from each item.
func SortNaturalFunc[T any](items []T, keyOf func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		return NaturalLess(keyOf(items[i]), keyOf(items[j]))
	})
}
