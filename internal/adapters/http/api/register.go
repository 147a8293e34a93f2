package api

import (
	"net/http"

	"github.com/okian/drivescore/internal/domain/session"
)

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register"
	var user session.User
	if err := decode(r, &user); err != nil {
		s.badBody(w, r, op, err)
		return
	}

	reg, err := s.deps.Register(r.Context(), user)
	if err != nil {
		s.failure(w, r, op, err, http.StatusBadRequest, msgInvalidSession)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}
