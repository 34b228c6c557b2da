package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/facecascade/internal/store"
)

// PoolHandler lists and removes populated feature pools.
type PoolHandler struct {
	store *store.Store
}

// NewPoolHandler creates a new PoolHandler with the given store.
func NewPoolHandler(s *store.Store) *PoolHandler {
	return &PoolHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *PoolHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/pools")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case path != "" && r.Method == http.MethodDelete:
		h.delete(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type listPoolsResponse struct {
	Pools []*store.Pool `json:"pools"`
}

func (h *PoolHandler) list(w http.ResponseWriter, r *http.Request) {
	pools, err := h.store.Pools().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pools")
		return
	}
	if pools == nil {
		pools = []*store.Pool{}
	}
	writeJSON(w, http.StatusOK, listPoolsResponse{Pools: pools})
}

// delete removes a pool. Runs trained on it keep their cascade.
func (h *PoolHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Pools().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pool not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete pool")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
