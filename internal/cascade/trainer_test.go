package cascade

import (
	"context"
	"math/rand"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/featurestore"
)

func population(seed int64, n, features int, shift int) ([][]int, []bool) {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]int, n)
	labels := make([]bool, n)
	for i := range vectors {
		labels[i] = i < n/2
		v := make([]int, features)
		for f := range v {
			v[f] = rng.Intn(100)
			if f < 3 && labels[i] {
				v[f] += shift
			}
		}
		vectors[i] = v
	}
	return vectors, labels
}

func newLayerTrainer(t *testing.T, shift int, params LayerParams) (*LayerTrainer, boost.TrainingState) {
	t.Helper()

	trainVec, trainLabels := population(1, 80, 10, shift)
	testVec, testLabels := population(2, 40, 10, shift)

	trainSrc, err := featurestore.NewMemoryFromVectors(trainVec)
	if err != nil {
		t.Fatalf("train source: %v", err)
	}
	testSrc, err := featurestore.NewMemoryFromVectors(testVec)
	if err != nil {
		t.Fatalf("test source: %v", err)
	}

	booster, err := boost.NewTrainer(trainSrc, trainLabels, boost.NewPool(2), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTrainer() error = %v", err)
	}
	lt, err := NewLayerTrainer(context.Background(), booster, testSrc, testLabels, DefaultFlatThreshold, params, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLayerTrainer() error = %v", err)
	}

	state, err := boost.NewTrainingState(trainLabels, 0.5)
	if err != nil {
		t.Fatalf("NewTrainingState() error = %v", err)
	}
	return lt, state
}

func TestLayerParams_SizeGuide(t *testing.T) {
	p := LayerParams{CommitteeBase: 20, CommitteeStep: 10, CommitteeMax: 200}
	for round, want := range map[int]int{0: 20, 1: 30, 17: 190, 18: 200, 40: 200} {
		if got := p.SizeGuide(round); got != want {
			t.Errorf("SizeGuide(%d) = %d, want %d", round, got, want)
		}
	}
}

func TestLayerTrainer_MeetsEasyTargets(t *testing.T) {
	search := defaultSearch()
	search.TargetDetection = 0.5
	search.TargetFalsePositive = 0.9
	lt, state := newLayerTrainer(t, 60, LayerParams{CommitteeBase: 5, CommitteeStep: 1, CommitteeMax: 10, Search: search})

	res, err := lt.TrainLayer(context.Background(), 0, state)
	if err != nil {
		t.Fatalf("TrainLayer() error = %v", err)
	}

	if !res.TargetsMet {
		t.Fatalf("result = %+v, want targets met", res)
	}
	want := []LayerState{StateGrowing, StateTweaking, StateDone}
	if !reflect.DeepEqual(res.States, want) {
		t.Errorf("States = %v, want %v", res.States, want)
	}
	if len(res.Layer.Rules) != 1 {
		t.Errorf("committee size = %d, want 1", len(res.Layer.Rules))
	}
	if res.Test.Detection < 0.5 || res.Test.FalsePositive > 0.9 {
		t.Errorf("validation rates %+v miss the targets", res.Test)
	}
}

func TestLayerTrainer_SizeCapClosesLayer(t *testing.T) {
	search := defaultSearch()
	search.TargetDetection = 1
	search.TargetFalsePositive = 0
	lt, state := newLayerTrainer(t, 20, LayerParams{CommitteeBase: 2, CommitteeStep: 0, CommitteeMax: 2, Search: search})

	res, err := lt.TrainLayer(context.Background(), 0, state)
	if err != nil {
		t.Fatalf("TrainLayer() error = %v", err)
	}

	if res.TargetsMet {
		t.Fatal("unreachable targets reported as met")
	}
	if len(res.Layer.Rules) != 3 {
		t.Fatalf("committee size = %d, want 3", len(res.Layer.Rules))
	}
	want := []LayerState{
		StateGrowing, StateTweaking,
		StateGrowing, StateTweaking,
		StateGrowing, StateSizeCapped, StateTweaking,
		StateDone,
	}
	if !reflect.DeepEqual(res.States, want) {
		t.Errorf("States = %v, want %v", res.States, want)
	}

	last := res.Searches[len(res.Searches)-1]
	if !last.Final || last.Trace[0].Tweak != -1 {
		t.Errorf("capped search = %+v, want a final sweep from -1", last.Trace[0])
	}
	if res.Layer.Tweak != last.Tweak {
		t.Errorf("layer tweak %v != search tweak %v", res.Layer.Tweak, last.Tweak)
	}
}

func TestLayerTrainer_FreezesPools(t *testing.T) {
	search := defaultSearch()
	search.TargetDetection = 0.5
	search.TargetFalsePositive = 0.9
	params := LayerParams{CommitteeBase: 5, CommitteeStep: 1, CommitteeMax: 10, Search: search}
	lt, state := newLayerTrainer(t, 60, params)

	first, err := lt.TrainLayer(context.Background(), 0, state)
	if err != nil {
		t.Fatalf("TrainLayer(0) error = %v", err)
	}
	second, err := lt.TrainLayer(context.Background(), 1, state)
	if err != nil {
		t.Fatalf("TrainLayer(1) error = %v", err)
	}

	// Later layers can only remove examples.
	if second.Train.FalsePositive > first.Train.FalsePositive || second.Test.FalsePositive > first.Test.FalsePositive {
		t.Errorf("false positives grew: %+v then %+v", first, second)
	}
	if second.Train.Detection > first.Train.Detection {
		t.Errorf("detection grew: %v then %v", first.Train.Detection, second.Train.Detection)
	}
}

func TestNewLayerTrainer_RejectsUniformValidation(t *testing.T) {
	trainVec, trainLabels := population(1, 20, 4, 60)
	testVec, testLabels := population(2, 4, 4, 60)

	trainSrc, err := featurestore.NewMemoryFromVectors(trainVec)
	if err != nil {
		t.Fatalf("train source: %v", err)
	}
	testSrc := featurestore.NewMemory(4)
	ctx := context.Background()
	for i, v := range testVec {
		// Example 0 is a positive whose values spread widely but whose patch is constant.
		if err := testSrc.PutExample(ctx, i, featurestore.Record{Positive: testLabels[i], Values: v, Uniform: i == 0}); err != nil {
			t.Fatalf("PutExample(%d) error = %v", i, err)
		}
	}
	if err := testSrc.Organize(ctx); err != nil {
		t.Fatalf("Organize() error = %v", err)
	}

	booster, err := boost.NewTrainer(trainSrc, trainLabels, boost.NewPool(1), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTrainer() error = %v", err)
	}
	lt, err := NewLayerTrainer(ctx, booster, testSrc, testLabels, DefaultFlatThreshold, LayerParams{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLayerTrainer() error = %v", err)
	}

	if got := lt.Test.Rates(0).Detection; got != 0.5 {
		t.Errorf("validation detection before any layer = %v, want 0.5", got)
	}
}
