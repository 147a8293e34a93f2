package api

import "net/http"

// handleStatistics handles GET /api/statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	const op = "api.statistics"
	st, err := s.deps.Statistics(r.Context())
	if err != nil {
		s.failure(w, r, op, err, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
