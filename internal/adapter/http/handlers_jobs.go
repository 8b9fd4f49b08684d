package adapthttp

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"gigmarket/internal/app"
	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
)

const defaultListLimit = 50

type createJobRequest struct {
	domain.JobFields
	Status string `json:"status"`
}

// jobError writes err, logging it first when it is not a known outcome.
func (s *Server) jobError(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		s.log.Errorw("job request failed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldError, err,
		)
	}
	writeAppError(w, err)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := s.jobs.ListOpen(r.Context(), intQuery(r, "limit", defaultListLimit))
		if err != nil {
			s.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	case http.MethodPost:
		user := userFromContext(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		var req createJobRequest
		if err := parseJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, err := s.jobs.CreateJob(r.Context(), user.ID, req.JobFields, req.Status)
		if err != nil {
			s.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleMyJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	jobs, err := s.jobs.ListMine(r.Context(), userFromContext(r).ID)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handlePublishCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	missing := app.CanPublish(job)
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"publishable": len(missing) == 0,
		"missing":     missing,
	})
}

// handleJobStatus sets a job's status directly. Publishing a draft is
// refused while required fields are missing.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := userFromContext(r).ID
	if err := s.jobs.CheckPublish(r.Context(), userID, id, req.Status); err != nil {
		s.jobError(w, r, err)
		return
	}

	job, err := s.jobs.SetStatus(r.Context(), userID, id, req.Status)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleAdvanceJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.AdvanceStatus(r.Context(), userFromContext(r).ID, id)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleEditJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var patch domain.JobPatch
	if err := parseJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.jobs.UpdateFields(r.Context(), userFromContext(r).ID, id, patch)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.jobs.DeleteJob(r.Context(), userFromContext(r).ID, id); err != nil {
		s.jobError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
