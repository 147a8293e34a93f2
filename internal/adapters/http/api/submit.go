package api

import (
	"net/http"

	"github.com/okian/drivescore/internal/domain/scoring"
)

type submitRequest struct {
	SessionID string             `json:"session_id"`
	Answers   scoring.RawAnswers `json:"answers"`
}

// handleSubmit handles POST /api/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var req submitRequest
	if err := decode(r, &req); err != nil {
		s.badBody(w, r, op, err)
		return
	}
	if !s.requireSession(w, r, op, req.SessionID) {
		return
	}

	sub, err := s.deps.Submit(r.Context(), req.SessionID, req.Answers)
	if err != nil {
		s.failure(w, r, op, err, http.StatusBadRequest, msgInvalidSession)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
