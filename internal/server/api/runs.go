package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/facecascade/internal/cascade"
	"github.com/ayusman/facecascade/internal/store"
)

// RunHandler handles HTTP requests for training runs.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// ServeHTTP routes /api/runs, /api/runs/latest and /api/runs/{id}.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, path)
}

type runResponse struct {
	ID          string           `json:"id"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Status      string           `json:"status"`
	TrainPoolID string           `json:"train_pool_id,omitempty"`
	TestPoolID  string           `json:"test_pool_id,omitempty"`
	Layers      int              `json:"layers"`
	Committees  []int            `json:"committees,omitempty"`
	Cascade     *cascade.Cascade `json:"cascade,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

func toRunResponse(run *store.Run) runResponse {
	return runResponse{
		ID:          run.ID,
		Width:       run.Width,
		Height:      run.Height,
		Status:      string(run.Status),
		TrainPoolID: run.TrainPoolID,
		TestPoolID:  run.TestPoolID,
		Layers:      run.Layers,
		CreatedAt:   formatTime(run.CreatedAt),
		UpdatedAt:   formatTime(run.UpdatedAt),
	}
}

func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{
		Runs: make([]runResponse, 0, len(runs)),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, response)
}

// get returns a run with its full cascade. The id "latest" selects the most
// recent completed run.
func (h *RunHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	runs := h.store.Runs()

	var (
		run *store.Run
		err error
	)
	if id == "latest" {
		run, err = runs.Latest()
	} else {
		run, err = runs.GetByID(id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	model, err := runs.LoadCascade(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load cascade")
		return
	}

	response := toRunResponse(run)
	response.Committees = model.CommitteeSizes()
	response.Cascade = model
	writeJSON(w, http.StatusOK, response)
}
