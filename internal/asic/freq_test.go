package asic

import (
	"math"
	"testing"
)

func TestSearchPLL_ExactLowVcoMatch(t *testing.T) {
	// This combination is the very first one SearchPLL's nested loop visits
	// (ref=2, post1=7, post2=1), so an exact target for it is a deterministic
	// winner regardless of search-order ties elsewhere.
	want := PLLParams{FB: 180, Ref: 2, Post1: 7, Post2: 1}
	target := want.ActualMHz()

	got := SearchPLL(target)
	if got.FB != want.FB || got.Ref != want.Ref || got.Post1 != want.Post1 || got.Post2 != want.Post2 {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.HighVco {
		t.Fatalf("25*%d/%d = %.1f should not set the high-VCO bit", got.FB, got.Ref, 25.0*float64(got.FB)/float64(got.Ref))
	}
}

func TestSearchPLL_HighVcoBoundary(t *testing.T) {
	// fb=235, ref=1, post1=2, post2=1: 25*235/1 = 5875 >= 2400, high-VCO.
	// ref=2 has no in-range combination reaching this target, so ref=1 is
	// reached and this is its first (and only exact) match.
	want := PLLParams{FB: 235, Ref: 1, Post1: 2, Post2: 1}
	target := want.ActualMHz()

	got := SearchPLL(target)
	if got.FB != want.FB || got.Ref != want.Ref {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !got.HighVco {
		t.Fatalf("25*%d/%d = %.1f should set the high-VCO bit", got.FB, got.Ref, 25.0*float64(got.FB)/float64(got.Ref))
	}
}

// The spec's own scenario 2 text names fb=105 for a 525 MHz target, which
// falls outside the documented fb in [144,235] search range (§4.2, §8
// boundary behaviors). The boundary invariant governs: SearchPLL must never
// return an out-of-range fb, even for a target the prose claims is "exactly
// representable" by an out-of-range combination.
func TestSearchPLL_NeverReturnsOutOfRangeFB(t *testing.T) {
	for _, target := range []float64{525.0, 1.0, 50.0, 3000.0, 5875.0} {
		got := SearchPLL(target)
		inRange := got.FB >= 144 && got.FB <= 235
		isFallback := got.FB == fallbackPLL.FB && got.Ref == fallbackPLL.Ref
		if !inRange && !isFallback {
			t.Errorf("SearchPLL(%.2f) returned out-of-range fb=%d outside fallback", target, got.FB)
		}
	}
}

func TestSearchPLL_OutOfRangeFallsBack(t *testing.T) {
	p := SearchPLL(1.0)
	if math.Abs(p.ActualMHz()-fallbackMHz) > 1e-9 {
		t.Fatalf("got fallback %.4f MHz, want %.4f", p.ActualMHz(), fallbackMHz)
	}
}

func TestRampSteps_EndsExactlyOnTarget(t *testing.T) {
	steps := RampSteps(400.0, 425.0)
	if len(steps) == 0 {
		t.Fatal("expected at least one ramp step")
	}
	if steps[len(steps)-1] != 425.0 {
		t.Fatalf("last ramp step = %.4f, want 425.0", steps[len(steps)-1])
	}
	for _, s := range steps[:len(steps)-1] {
		if math.Mod(s, 6.25) != 0 {
			t.Fatalf("intermediate step %.4f is not 6.25 MHz aligned", s)
		}
	}
}

func TestRampSteps_Descending(t *testing.T) {
	steps := RampSteps(425.0, 400.0)
	if steps[len(steps)-1] != 400.0 {
		t.Fatalf("last ramp step = %.4f, want 400.0", steps[len(steps)-1])
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] >= steps[i-1] {
			t.Fatalf("ramp down step %d (%.4f) did not decrease from %.4f", i, steps[i], steps[i-1])
		}
	}
}

func TestRampSteps_NoOpWhenEqual(t *testing.T) {
	steps := RampSteps(500.0, 500.0)
	if len(steps) != 1 || steps[0] != 500.0 {
		t.Fatalf("got %v, want [500.0]", steps)
	}
}
