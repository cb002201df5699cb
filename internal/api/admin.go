package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyforge/studyforge/internal/domain"
)

// handleGenerate runs generation for a cadence now. With ?async=true the run
// becomes a tracked job and the response carries its id. ?date=YYYY-MM-DD
// targets another day for daily generation.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ct, err := domain.ParseChallengeType(chi.URLParam(r, "cadence"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	at := time.Time{}
	if raw := r.URL.Query().Get("date"); raw != "" {
		if ct != domain.ChallengeDaily {
			writeError(w, http.StatusBadRequest, "invalid_request", "date is only supported for daily generation")
			return
		}
		day, err := time.ParseInLocation("2006-01-02", raw, s.svc.Challenges.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		at = day
	}

	run := func(ctx context.Context) (*domain.GenerationResult, error) {
		if at.IsZero() {
			switch ct {
			case domain.ChallengeDaily:
				return s.svc.Challenges.GenerateDaily(ctx, time.Time{})
			case domain.ChallengeWeekly:
				return s.svc.Challenges.GenerateWeekly(ctx)
			case domain.ChallengeMonthly:
				return s.svc.Challenges.GenerateMonthly(ctx)
			}
			return s.svc.Challenges.GenerateHot(ctx)
		}
		return s.svc.Challenges.GenerateDaily(ctx, at)
	}

	if r.URL.Query().Get("async") == "true" {
		job, err := s.svc.Tasks.Submit("generate_"+string(ct), func(ctx context.Context) (any, error) {
			return run(ctx)
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	// Detached from the request so a disconnect does not abort a half-written run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.GenerateTimeout)
	defer cancel()
	res, err := run(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.log.Info("generation triggered",
		slog.String("type", string(ct)), slog.Int("created", len(res.Created)), slog.Int("skipped", len(res.Skipped)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteChallenge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Challenges.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Tasks.Job(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
