package api

import (
	"errors"
	"net/http"

	"github.com/okian/drivescore/internal/adapters/repository"
)

// handleResult handles GET /api/results/{result_id}.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.result"
	res, err := s.deps.Result(r.Context(), r.PathValue("result_id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgResultNotFound)
		return
	}
	if err != nil {
		s.failure(w, r, op, err, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
