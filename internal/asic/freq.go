package asic

import "math"

// PLLParams are the four PLL divider knobs the ASIC's clock register packs
// (spec §4.2 "Frequency programming").
type PLLParams struct {
	FB      int
	Ref     int
	Post1   int
	Post2   int
	HighVco bool
}

// ActualMHz returns the clock frequency this PLLParams combination produces.
func (p PLLParams) ActualMHz() float64 {
	return 25.0 * float64(p.FB) / (float64(p.Ref) * float64(p.Post1) * float64(p.Post2))
}

// fallbackPLL is the fixed divider set used when no combination in range
// reaches the requested target (spec §4.2): 25*64/(2*4*1) = 200 MHz exactly.
var fallbackPLL = PLLParams{FB: 64, Ref: 2, Post1: 4, Post2: 1}

const fallbackMHz = 200.0

// SearchPLL finds the (fb, ref, post1, post2) combination that minimizes
// |targetMHz - 25*fb/(ref*post1*post2)|, searching ref descending, post1
// descending, post2 ascending, and picking the first combination that
// attains the minimum seen so far (spec §4.2).
func SearchPLL(targetMHz float64) PLLParams {
	best := PLLParams{}
	bestErr := math.Inf(1)
	found := false

	for ref := 2; ref >= 1; ref-- {
		for post1 := 7; post1 >= 1; post1-- {
			for post2 := 1; post2 < post1; post2++ {
				denom := float64(ref * post1 * post2)
				fbIdeal := targetMHz * denom / 25.0
				fb := int(math.Round(fbIdeal))
				if fb < 144 || fb > 235 {
					continue
				}

				p := PLLParams{FB: fb, Ref: ref, Post1: post1, Post2: post2}
				err := math.Abs(targetMHz - p.ActualMHz())
				if err < bestErr {
					bestErr = err
					best = p
					found = true
				}
			}
		}
	}

	if !found {
		return PLLParams{FB: fallbackPLL.FB, Ref: fallbackPLL.Ref, Post1: fallbackPLL.Post1, Post2: fallbackPLL.Post2}
	}

	if 25.0*float64(best.FB)/float64(best.Ref) >= 2400.0 {
		best.HighVco = true
	}

	return best
}

// RampSteps returns the sequence of intermediate frequencies (MHz) to walk
// through between current and target, stepping by 6.25 MHz and aligning
// the first step to a 6.25 MHz boundary in the direction of travel; the
// final element is always exactly target (spec §4.2 "Ramp").
func RampSteps(current, target float64) []float64 {
	const step = 6.25

	if current == target {
		return []float64{target}
	}

	var steps []float64
	up := target > current

	// Align the first step to a 6.25 MHz boundary in the direction of travel.
	var first float64
	if up {
		first = math.Ceil(current/step) * step
		if first <= current {
			first += step
		}
	} else {
		first = math.Floor(current/step) * step
		if first >= current {
			first -= step
		}
	}

	v := first
	for {
		if up && v >= target {
			break
		}
		if !up && v <= target {
			break
		}
		steps = append(steps, v)
		if up {
			v += step
		} else {
			v -= step
		}
	}

	steps = append(steps, target)
	return steps
}
