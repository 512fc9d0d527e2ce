package util_test

import (
	"reflect"
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/util"
)

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"2", "10", true},
		{"10", "2", false},
		{"1", "1.5", true},
		{"1.5", "2", true},
		{"chapter 2", "chapter 10", true},
		{"Chapter 1", "chapter 1", false}, // case-insensitive equal, not less
		{"ch1", "cha", true},              // numbers sort before text
		{"extra", "ch1", false},
		{"a", "ab", true},
		{"010", "10", false},
	}

	for _, tc := range cases {
		if got := util.NaturalLess(tc.a, tc.b); got != tc.want {
			t.Errorf("NaturalLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSortNatural(t *testing.T) {
	got := []string{"10", "2", "1", "extra", "1.5"}
	util.SortNatural(got)
	want := []string{"1", "1.5", "2", "10", "extra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortNatural = %v, want %v", got, want)
	}
}
