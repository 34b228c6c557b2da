package cascade

import (
	"errors"
	"testing"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/featurestore"
)

// twoLayers accepts examples whose feature 0 exceeds 10 and feature 1 stays below 5.
func twoLayers() *Cascade {
	return &Cascade{
		Width: 4, Height: 4,
		Layers: []Layer{
			{Rules: []boost.StumpRule{{FeatureIndex: 0, Threshold: 10, Toggle: 1, Error: 0.1}}},
			{Rules: []boost.StumpRule{{FeatureIndex: 1, Threshold: 5, Toggle: -1, Error: 0.2}}},
		},
	}
}

func TestClassify(t *testing.T) {
	c := twoLayers()

	tests := []struct {
		name       string
		values     []int
		limit      int
		wantFace   bool
		wantReject int
		wantLayers int
	}{
		{"passes both", []int{20, 0, 7}, -1, true, -1, 2},
		{"rejected by first", []int{3, 0, 7}, -1, false, 0, 1},
		{"rejected by second", []int{20, 9, 7}, -1, false, 1, 2},
		{"limit skips second", []int{20, 9, 7}, 1, true, -1, 1},
		{"limit is clamped", []int{20, 0, 7}, 9, true, -1, 2},
		{"zero layers accept", []int{3, 9, 7}, 0, true, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Classify(c, tt.values, false, tt.limit, DefaultFlatThreshold)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if v.Face != tt.wantFace || v.RejectedBy != tt.wantReject || v.Layers != tt.wantLayers {
				t.Errorf("Classify() = %+v, want face=%v rejectedBy=%d layers=%d",
					v, tt.wantFace, tt.wantReject, tt.wantLayers)
			}
			if v.Flat {
				t.Error("vector should not be flat")
			}
		})
	}
}

// classify is Classify for vectors known to be in range.
func classify(t *testing.T, c *Cascade, values []int) Verdict {
	t.Helper()
	v, err := Classify(c, values, false, -1, DefaultFlatThreshold)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	return v
}

func TestClassify_FlatIsNonFace(t *testing.T) {
	v := classify(t, twoLayers(), []int{0, 0, 0})
	if v.Face || !v.Flat {
		t.Errorf("Classify() of a flat vector = %+v, want flat non-face", v)
	}
}

func TestClassify_UniformPatchIsNonFace(t *testing.T) {
	// These values pass both layers and have a large dispersion.
	values := []int{2550, 0, -2550}
	if v := classify(t, twoLayers(), values); !v.Face {
		t.Fatalf("textured patch = %+v, want face", v)
	}

	for _, c := range []*Cascade{twoLayers(), {}} {
		v, err := Classify(c, values, true, -1, DefaultFlatThreshold)
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if v.Face || !v.Flat || v.Layers != 0 {
			t.Errorf("Classify() of a uniform patch with %d layers = %+v, want flat non-face", len(c.Layers), v)
		}
	}
}

func TestClassify_RuleOutsideVector(t *testing.T) {
	c := &Cascade{Layers: []Layer{{
		Rules: []boost.StumpRule{{FeatureIndex: 7, Threshold: 0, Toggle: 1, Error: 0.1}},
	}}}

	_, err := Classify(c, []int{5, -5, 40}, false, -1, DefaultFlatThreshold)
	if !errors.Is(err, featurestore.ErrRange) {
		t.Errorf("Classify() error = %v, want ErrRange", err)
	}
}

func TestClassify_TweakShiftsDecision(t *testing.T) {
	c := &Cascade{Layers: []Layer{{
		Rules: []boost.StumpRule{
			{FeatureIndex: 0, Threshold: 0, Toggle: 1, Error: 0.2},
			{FeatureIndex: 1, Threshold: 0, Toggle: 1, Error: 0.1},
		},
	}}}
	// Member votes +1 and -1; the stronger second member wins.
	values := []int{5, -5, 40}

	if classify(t, c, values).Face {
		t.Fatal("expected rejection without tweak")
	}
	c.Layers[0].Tweak = 1
	if !classify(t, c, values).Face {
		t.Error("a tweak of +1 turns every vote non-negative")
	}
}

func TestClassify_PerfectFirstMemberDecides(t *testing.T) {
	c := &Cascade{Layers: []Layer{{
		Rules: []boost.StumpRule{
			{FeatureIndex: 0, Threshold: 0, Toggle: 1, Error: 0},
			{FeatureIndex: 1, Threshold: 0, Toggle: 1, Error: 0.01},
		},
		Tweak: -0.5,
	}}}

	if !classify(t, c, []int{5, -5, 40}).Face {
		t.Error("the perfect first member votes face")
	}
	if classify(t, c, []int{-5, 5, 40}).Face {
		t.Error("the perfect first member votes non-face")
	}

	// At a tweak of -1 a face vote sums to exactly zero, which does not pass.
	c.Layers[0].Tweak = -1
	if classify(t, c, []int{5, -5, 40}).Face {
		t.Error("a perfect first member needs a strictly positive vote")
	}
}

func TestClassifyWith_PropagatesErrors(t *testing.T) {
	errRead := errors.New("read")
	stats := featurestore.ExampleStats{Sum: 10, SumSq: 1000, Count: 2}

	_, err := ClassifyWith(twoLayers(), stats, func(int64) (int, error) { return 0, errRead }, -1, DefaultFlatThreshold)
	if !errors.Is(err, errRead) {
		t.Errorf("ClassifyWith() error = %v, want errRead", err)
	}
}

func TestPoolScores(t *testing.T) {
	labels := []bool{true, true, false, false}
	p := NewPoolScores(labels, []bool{false, true, false, false})

	if r := p.Rates(0); r.Detection != 0.5 || r.FalsePositive != 1 {
		t.Fatalf("Rates() before any member = %+v, want detection 0.5 fp 1", r)
	}

	rule := boost.StumpRule{Error: 0.2}
	p.AddMember(rule, []int8{1, 1, 1, -1})

	r := p.Rates(0)
	if r.Detection != 0.5 || r.FalsePositive != 0.5 {
		t.Errorf("Rates(0) = %+v, want detection 0.5 fp 0.5", r)
	}
	r = p.Rates(-1.5)
	if r.Detection != 0 || r.FalsePositive != 0 {
		t.Errorf("Rates(-1.5) = %+v, want nothing to pass", r)
	}
	r = p.Rates(1)
	if r.FalsePositive != 1 {
		t.Errorf("Rates(1) = %+v, want every negative to pass", r)
	}

	p.Freeze(0)
	p.AddMember(rule, []int8{1, 1, 1, 1})
	if r := p.Rates(0); r.FalsePositive != 0.5 {
		t.Errorf("Rates() after freeze = %+v, want the rejected negative to stay out", r)
	}
}
