package playback

import (
	"testing"
	"time"
)

// TestRandomPacerStaysInBand 验证随机停顿落在区间内且不是恒定值。
func TestRandomPacerStaysInBand(t *testing.T) {
	p := RandomPacer{}
	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		k := p.Keystroke()
		if k < keystrokeMin || k >= keystrokeMax {
			t.Fatalf("keystroke %v outside [%v, %v)", k, keystrokeMin, keystrokeMax)
		}
		r := p.Reveal()
		if r < revealMin || r >= revealMax {
			t.Fatalf("reveal %v outside [%v, %v)", r, revealMin, revealMax)
		}
		seen[k] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected varying keystroke delays, got %v", seen)
	}
}

func TestGraphemeEnds(t *testing.T) {
	cases := map[string]int{
		"":                        0,
		"Hi":                      2,
		"caf\u00e9":               4,
		"e\u0301":                 1,
		"\U0001F44D\U0001F3FD ok": 4,
		"\U0001F1FA\U0001F1F8":    1,
	}
	for s, want := range cases {
		ends := graphemeEnds(s)
		if len(ends) != want {
			t.Fatalf("%q: expected %d graphemes, got %d", s, want, len(ends))
		}
		if want > 0 && ends[len(ends)-1] != len(s) {
			t.Fatalf("%q: last end %d != len %d", s, ends[len(ends)-1], len(s))
		}
	}
}
