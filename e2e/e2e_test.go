package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/classifier"
	"github.com/ayusman/facecascade/internal/config"
	"github.com/ayusman/facecascade/internal/feature"
	"github.com/ayusman/facecascade/internal/patch"
	"github.com/ayusman/facecascade/internal/server"
	"github.com/ayusman/facecascade/internal/store"
	"github.com/ayusman/facecascade/testdata"
)

const frame = 6

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	trainDir := filepath.Join(tmpDir, "train")
	validDir := filepath.Join(tmpDir, "valid")
	testDir := filepath.Join(tmpDir, "test")
	for _, d := range []struct {
		dir   string
		faces int
		seed  int64
	}{
		{trainDir, 20, 1},
		{validDir, 10, 500},
		{testDir, 8, 900},
	} {
		if err := testdata.WriteDataset(d.dir, frame, frame, d.faces, d.faces, d.seed); err != nil {
			t.Fatalf("WriteDataset(%s) error = %v", d.dir, err)
		}
	}

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	training := config.DefaultTraining()
	training.OverallDetectionRate = 0.5
	training.OverallFalsePositiveRate = 0.3
	training.Goal = 0.2
	training.CommitteeBase = 3
	training.CommitteeStep = 1
	training.CommitteeMax = 5

	c := classifier.New(s, feature.NewCatalog(frame, frame), patch.NewImagingLoader(frame, frame), training, zerolog.Nop())
	c.Workers = 2
	ctx := context.Background()

	var runID string
	t.Run("Train", func(t *testing.T) {
		res, err := c.Train(ctx, classifier.TrainRequest{TrainDir: trainDir, TestDir: validDir, Rounds: 3})
		if err != nil {
			t.Fatalf("Train() error = %v", err)
		}
		if len(res.Cascade.Layers) == 0 || len(res.Cascade.Layers) > 3 {
			t.Fatalf("layers = %d, want 1..3", len(res.Cascade.Layers))
		}
		runID = res.RunID
	})
	if runID == "" {
		t.FailNow()
	}

	var tested *classifier.TestResult
	t.Run("Test", func(t *testing.T) {
		tested, err = c.Test(ctx, classifier.TestRequest{Dir: testDir, LayerLimit: -1})
		if err != nil {
			t.Fatalf("Test() error = %v", err)
		}
		if tested.RunID != runID {
			t.Errorf("tested run = %s, want %s", tested.RunID, runID)
		}
		conf := tested.Confusion
		if total := conf.TruePositive + conf.FalseNegative + conf.FalsePositive + conf.TrueNegative; total != 16 {
			t.Errorf("confusion covers %d examples, want 16", total)
		}
	})
	if tested == nil {
		t.FailNow()
	}

	ts := httptest.NewServer(server.New(server.Config{Store: s, Classifier: c}))
	defer ts.Close()

	t.Run("ClassifyMatchesTest", func(t *testing.T) {
		examples, err := patch.ListDataset(testDir)
		if err != nil {
			t.Fatalf("ListDataset() error = %v", err)
		}

		var faces int
		for _, e := range examples {
			f, err := os.Open(e.Path)
			if err != nil {
				t.Fatalf("open %s: %v", e.Path, err)
			}
			resp, err := ts.Client().Post(fmt.Sprintf("%s/api/classify?run=%s", ts.URL, runID), "image/png", f)
			f.Close()
			if err != nil {
				t.Fatalf("POST /api/classify error = %v", err)
			}

			var verdict struct {
				Face bool `json:"face"`
			}
			json.NewDecoder(resp.Body).Decode(&verdict)
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("classify %s status = %d, want %d", e.Path, resp.StatusCode, http.StatusOK)
			}
			if verdict.Face {
				faces++
			}
		}

		want := tested.Confusion.TruePositive + tested.Confusion.FalsePositive
		if faces != want {
			t.Errorf("served classification accepted %d patches, evaluation accepted %d", faces, want)
		}
	})

	t.Run("RunIsListed", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/runs/latest")
		if err != nil {
			t.Fatalf("GET /api/runs/latest error = %v", err)
		}
		defer resp.Body.Close()

		var run struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&run)
		if run.ID != runID || run.Status != "completed" {
			t.Errorf("latest run = %+v, want completed %s", run, runID)
		}
	})
}
