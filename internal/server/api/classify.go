package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/facecascade/internal/classifier"
	"github.com/ayusman/facecascade/internal/featurestore"
	"github.com/ayusman/facecascade/internal/patch"
	"github.com/ayusman/facecascade/internal/store"
)

// MaxPatchBytes bounds the request body of a classification.
const MaxPatchBytes = 1 << 20

// ClassifyHandler runs a stored cascade on an uploaded patch.
type ClassifyHandler struct {
	store      *store.Store
	classifier *classifier.Classifier
}

// NewClassifyHandler creates a new ClassifyHandler.
func NewClassifyHandler(s *store.Store, c *classifier.Classifier) *ClassifyHandler {
	return &ClassifyHandler{store: s, classifier: c}
}

type classifyResponse struct {
	RunID      string `json:"run_id"`
	Face       bool   `json:"face"`
	RejectedBy int    `json:"rejected_by"`
	Flat       bool   `json:"flat"`
	Layers     int    `json:"layers"`
}

// ServeHTTP handles POST /api/classify. The body is an encoded image of the
// run's frame size. ?run= selects the run (default: latest completed) and
// ?layers= evaluates only the first layers.
func (h *ClassifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	layerLimit := -1
	if v := r.URL.Query().Get("layers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid layers parameter")
			return
		}
		layerLimit = n
	}

	runs := h.store.Runs()
	var (
		run *store.Run
		err error
	)
	if id := r.URL.Query().Get("run"); id != "" {
		run, err = runs.GetByID(id)
	} else {
		run, err = runs.Latest()
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run.Status != store.RunStatusCompleted {
		writeError(w, http.StatusConflict, "Run is not completed")
		return
	}

	model, err := runs.LoadCascade(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load cascade")
		return
	}
	catalog := h.classifier.Catalog
	if model.Width != catalog.Width() || model.Height != catalog.Height() {
		writeError(w, http.StatusConflict, "Run was trained on a different frame size")
		return
	}

	img, err := patch.Decode(http.MaxBytesReader(w, r.Body, MaxPatchBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image")
		return
	}

	verdict, err := h.classifier.ClassifyImage(model, img, layerLimit)
	if err != nil {
		if errors.Is(err, patch.ErrSize) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, featurestore.ErrRange) {
			writeError(w, http.StatusConflict, "Cascade does not match the feature catalog")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to classify")
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		RunID:      run.ID,
		Face:       verdict.Face,
		RejectedBy: verdict.RejectedBy,
		Flat:       verdict.Flat,
		Layers:     verdict.Layers,
	})
}
