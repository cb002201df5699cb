package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studyforge/studyforge/internal/domain"
)

// ─── Discovery ──────────────────────────────────────────────────────────────

func (s *Server) handleAllChallenges(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Challenges.GetAllActive(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": views})
}

func (s *Server) handleTodayChallenges(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Challenges.GetToday(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": views})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Challenges.GetProgress(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.svc.Challenges.GetLeaderboard(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ─── Participation ──────────────────────────────────────────────────────────

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Challenges.Join(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Challenges.Leave(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Challenges.Start(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Challenges.CompleteChallenge(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type quizCompleteRequest struct {
	AttemptID      string `json:"attempt_id"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
}

func (s *Server) handleCompleteQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizCompleteRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.svc.Challenges.CompleteQuizInChallenge(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "quizID"), userID(r),
		domain.QuizAttemptResult{AttemptID: req.AttemptID, Score: req.Score, TotalQuestions: req.TotalQuestions})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Activity & XP ──────────────────────────────────────────────────────────

type activityRequest struct {
	Type           string `json:"type"`
	QuizID         string `json:"quiz_id"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	receipt, err := s.svc.Activity.Record(r.Context(), domain.Activity{
		UserID:         userID(r),
		Type:           domain.ActivityType(req.Type),
		QuizID:         req.QuizID,
		Score:          req.Score,
		TotalQuestions: req.TotalQuestions,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleXP(w http.ResponseWriter, r *http.Request) {
	level, err := s.svc.Scores.Standing(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *Server) handleXPLeaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := s.svc.Scores.Top(r.Context(), s.cfg.XPBoardSize)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if top == nil {
		top = []domain.XPStanding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": top})
}
