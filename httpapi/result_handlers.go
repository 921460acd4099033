package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kidwon/lifetree-app-api/result"
)

// handleListResults returns the caller's records, or every record tied to
// ?requirementId when given.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	var (
		records []result.Record
		err     error
	)
	if reqID := r.URL.Query().Get("requirementId"); reqID != "" {
		records, err = s.results.ListByRequirement(r.Context(), reqID)
	} else {
		records, err = s.results.ListByCreator(r.Context(), userIDFrom(r.Context()))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponses(records))
}

func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var req createResultRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.results.Create(r.Context(), userIDFrom(r.Context()), result.CreateParams{
		Title:                req.Title,
		Description:          req.Description,
		RelatedRequirementID: req.RelatedRequirementID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newResultResponse(rec))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.results.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(rec))
}

func (s *Server) handleUpdateResult(w http.ResponseWriter, r *http.Request) {
	var req updateResultRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.results.Update(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], result.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(rec))
}

// handleResultStatus is the strict counterpart of the status field on update:
// an unknown status is a 400 here.
func (s *Server) handleResultStatus(w http.ResponseWriter, r *http.Request) {
	var req resultStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := result.ParseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.results.ChangeStatus(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(rec))
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := s.results.Delete(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
