package cascade

import (
	"math"
	"testing"
)

func defaultSearch() SearchParams {
	return SearchParams{
		TargetDetection:     0.8,
		TargetFalsePositive: 0.3,
		Step:                1e-2,
		Floor:               1e-5,
		Bound:               1.1,
		FinalDetection:      0.99,
	}
}

func TestSearchTweak_SatisfiedAtZero(t *testing.T) {
	res := SearchTweak(func(float64) Rates {
		return Rates{FalsePositive: 0.1, Detection: 0.95}
	}, defaultSearch())

	if !res.Satisfied || res.Final {
		t.Fatalf("result = %+v, want satisfied without the final sweep", res)
	}
	if res.Tweak != 0 || len(res.Trace) != 1 {
		t.Errorf("tweak = %v after %d steps, want 0 after 1", res.Tweak, len(res.Trace))
	}
}

func TestSearchTweak_RaisesTweakForDetection(t *testing.T) {
	res := SearchTweak(func(tweak float64) Rates {
		r := Rates{FalsePositive: 0.2, Detection: 0.7}
		if tweak >= 0.045 {
			r.Detection = 1
		}
		return r
	}, defaultSearch())

	if !res.Satisfied {
		t.Fatalf("result = %+v, want satisfied", res)
	}
	if res.Tweak < 0.045 || res.Tweak > 0.06 {
		t.Errorf("tweak = %v, want the first step past 0.045", res.Tweak)
	}
	for i := 1; i < len(res.Trace); i++ {
		if res.Trace[i].Tweak <= res.Trace[i-1].Tweak {
			t.Fatalf("step %d did not move up: %+v", i, res.Trace)
		}
	}
}

func TestSearchTweak_LowersTweakForFalsePositives(t *testing.T) {
	res := SearchTweak(func(tweak float64) Rates {
		r := Rates{FalsePositive: 0.5, Detection: 0.9}
		if tweak <= -0.025 {
			r.FalsePositive = 0.1
		}
		return r
	}, defaultSearch())

	if !res.Satisfied {
		t.Fatalf("result = %+v, want satisfied", res)
	}
	if res.Tweak > -0.025 || res.Tweak < -0.04 {
		t.Errorf("tweak = %v, want the first step below -0.025", res.Tweak)
	}
}

func TestSearchTweak_UnreachableFallsBackToFinalSweep(t *testing.T) {
	p := defaultSearch()
	res := SearchTweak(func(float64) Rates {
		return Rates{FalsePositive: 0.9, Detection: 0.5}
	}, p)

	if res.Satisfied || !res.Final {
		t.Fatalf("result = %+v, want the final sweep", res)
	}
	if len(res.Trace) > 1+int(2*p.Bound/p.Step)+2 {
		t.Fatalf("search took %d steps", len(res.Trace))
	}

	if res.Trace[0].Phase != PhaseSearch || res.Trace[1].Phase != PhaseFinal {
		t.Fatalf("phases = %v, %v; want search then final", res.Trace[0].Phase, res.Trace[1].Phase)
	}
	if res.Trace[1].Tweak != -1 {
		t.Errorf("final sweep starts at %v, want -1", res.Trace[1].Tweak)
	}
	for i := 2; i < len(res.Trace); i++ {
		if d := res.Trace[i].Tweak - res.Trace[i-1].Tweak; math.Abs(d-p.Step) > 1e-9 {
			t.Fatalf("final step %d moved by %v, want %v", i, d, p.Step)
		}
	}
	if math.Abs(res.Tweak) >= p.Bound {
		t.Errorf("kept tweak %v is outside the bound", res.Tweak)
	}
}

func TestSearchTweak_FinalSweepStopsAtDetection(t *testing.T) {
	p := defaultSearch()
	p.Final = true

	res := SearchTweak(func(tweak float64) Rates {
		r := Rates{FalsePositive: 1, Detection: 0.5}
		if tweak >= -0.5 {
			r.Detection = 0.995
		}
		return r
	}, p)

	if !res.Final || res.Satisfied {
		t.Fatalf("result = %+v, want a final sweep", res)
	}
	if res.Trace[0].Tweak != -1 || res.Trace[0].Phase != PhaseFinal {
		t.Errorf("first step = %+v, want the final sweep at -1", res.Trace[0])
	}
	if res.Tweak < -0.5 || res.Tweak > -0.48 {
		t.Errorf("tweak = %v, want the first step at or above -0.5", res.Tweak)
	}
}

func TestSearchTweak_OscillationHalvesUnitUntilFloor(t *testing.T) {
	// Exactly one target holds at any tweak, so the search can only
	// oscillate around the boundary until the unit falls under the floor.
	const boundary = 0.0137
	p := defaultSearch()

	res := SearchTweak(func(tweak float64) Rates {
		if tweak >= boundary {
			return Rates{FalsePositive: 0.9, Detection: 1}
		}
		return Rates{FalsePositive: 0.1, Detection: 0.5}
	}, p)

	if !res.Final || res.Satisfied {
		t.Fatalf("result = %+v, want the final sweep", res)
	}
	// 1e-2 / 2^10 is the first unit under 1e-5.
	if res.Backtracks != 10 {
		t.Errorf("Backtracks = %d, want 10", res.Backtracks)
	}

	var last float64 = math.Inf(1)
	for i, s := range res.Trace {
		if s.Phase != PhaseSearch {
			break
		}
		if s.Unit > last {
			t.Fatalf("unit grew at step %d: %v > %v", i, s.Unit, last)
		}
		if math.Abs(s.Tweak-boundary) > 0.03 {
			t.Fatalf("step %d at %v strayed from the boundary", i, s.Tweak)
		}
		last = s.Unit
	}

	if res.Tweak < boundary || res.Tweak > boundary+p.Step+1e-9 {
		t.Errorf("tweak = %v, want the first final step past %v", res.Tweak, boundary)
	}
}

func TestSearchTweak_NarrowWindowTerminates(t *testing.T) {
	res := SearchTweak(func(tweak float64) Rates {
		r := Rates{FalsePositive: 0, Detection: 1}
		if tweak < 0.0123 {
			r.Detection = 0.5
		}
		if tweak > 0.0124 {
			r.FalsePositive = 0.9
		}
		return r
	}, defaultSearch())

	if res.Backtracks == 0 {
		t.Error("expected the unit to be halved at least once")
	}
	if len(res.Trace) > 500 {
		t.Errorf("search took %d steps", len(res.Trace))
	}
	if res.Satisfied && (res.Tweak < 0.0123 || res.Tweak > 0.0124) {
		t.Errorf("satisfied at %v, outside the window", res.Tweak)
	}
}

func TestWorst(t *testing.T) {
	got := Worst(Rates{FalsePositive: 0.1, Detection: 0.9}, Rates{FalsePositive: 0.2, Detection: 0.95})
	if got.FalsePositive != 0.2 || got.Detection != 0.9 {
		t.Errorf("Worst() = %+v, want fp 0.2 detection 0.9", got)
	}
}
