package transliterate_test

import (
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/transliterate"
)

func TestSimplifiedToTraditional(t *testing.T) {
	cases := []struct{ in, want string }{
		{"龙与地下城", "龍與地下城"},
		{"第1话", "第1話"},
		// Full-table coverage, including characters well outside the
		// frequent manga-title vocabulary.
		{"忧郁的台湾乌龟", "憂鬱的臺灣烏龜"},
		{"already latin", "already latin"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := transliterate.SimplifiedToTraditional(tc.in); got != tc.want {
			t.Errorf("SimplifiedToTraditional(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTraditionalToSimplified(t *testing.T) {
	cases := []struct{ in, want string }{
		{"龍與地下城", "龙与地下城"},
		{"第10話", "第10话"},
		{"憂鬱的臺灣烏龜", "忧郁的台湾乌龟"},
		// One-to-many source characters both collapse to the same
		// simplified form.
		{"頭髮", "头发"},
	}
	for _, tc := range cases {
		if got := transliterate.TraditionalToSimplified(tc.in); got != tc.want {
			t.Errorf("TraditionalToSimplified(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUnmappedRunesPassThrough(t *testing.T) {
	in := "mixed 漢字 and ascii 123"
	if got := transliterate.TraditionalToSimplified(in); got != "mixed 汉字 and ascii 123" {
		t.Errorf("unexpected conversion: %q", got)
	}
}
