package cascade

import (
	"testing"

	"github.com/ayusman/facecascade/internal/boost"
)

func TestPoolScores_DecisiveMember(t *testing.T) {
	p := NewPoolScores([]bool{true, false}, nil)
	p.AddMember(boost.StumpRule{FeatureIndex: 0, Toggle: 1, Error: 0}, []int8{1, -1})
	// Later members do not change a decided layer.
	p.AddMember(boost.StumpRule{FeatureIndex: 1, Toggle: 1, Error: 0.2}, []int8{-1, 1})

	tests := []struct {
		tweak float64
		want  Rates
	}{
		{0, Rates{Detection: 1, FalsePositive: 0}},
		{-1, Rates{Detection: 0, FalsePositive: 0}},
		{2, Rates{Detection: 1, FalsePositive: 1}},
	}
	for _, tt := range tests {
		if got := p.Rates(tt.tweak); got != tt.want {
			t.Errorf("Rates(%v) = %+v, want %+v", tt.tweak, got, tt.want)
		}
	}
}

func TestPoolScores_RejectedNeverPass(t *testing.T) {
	p := NewPoolScores([]bool{true, true, false}, []bool{false, true, false})
	if got := p.Rates(0); got.Detection != 0.5 || got.FalsePositive != 1 {
		t.Errorf("Rates(0) with no members = %+v, want detection 0.5 and false positive 1", got)
	}
}
