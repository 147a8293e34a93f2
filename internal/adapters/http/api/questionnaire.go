package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/pkg/logger"
)

// handleQuestionnaire handles GET /api/questionnaire?session_id=...
func (s *Server) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	const op = "api.questionnaire"
	c, err := s.deps.Questionnaire(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.failure(w, r, op, err, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type saveProgressRequest struct {
	SessionID            string             `json:"session_id"`
	Answers              scoring.RawAnswers `json:"answers"`
	CurrentQuestionIndex int                `json:"current_question_index"`
}

type saveProgressResponse struct {
	Message string    `json:"message"`
	SavedAt time.Time `json:"saved_at"`
}

// handleSaveProgress handles POST /api/save-progress.
func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_progress"
	var req saveProgressRequest
	if err := decode(r, &req); err != nil {
		s.badBody(w, r, op, err)
		return
	}
	if !s.requireSession(w, r, op, req.SessionID) {
		return
	}

	at, err := s.deps.SaveProgress(r.Context(), req.SessionID, req.Answers, req.CurrentQuestionIndex)
	if err != nil {
		s.failure(w, r, op, err, http.StatusBadRequest, msgInvalidSession)
		return
	}
	writeJSON(w, http.StatusOK, saveProgressResponse{Message: "Progress saved successfully", SavedAt: at})
}

// handleLoadProgress handles GET /api/load-progress/{session_id}.
func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.load_progress"
	p, err := s.deps.LoadProgress(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.failure(w, r, op, err, http.StatusNotFound, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// requireSession rejects requests without a session id.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, op, id string) bool {
	if strings.TrimSpace(id) != "" {
		return true
	}
	s.logger.Debug(r.Context(), "missing session id", logger.Error(NewKind(op, ErrBadRequest)))
	writeError(w, http.StatusBadRequest, msgInvalidSession)
	return false
}
