package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	view, err := s.matching.Apply(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequirementResponse(view))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := s.matching.Approve(r.Context(), vars["id"], userIDFrom(r.Context()), vars["applicationId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := s.matching.Reject(r.Context(), vars["id"], userIDFrom(r.Context()), vars["applicationId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleOwnerApplications(w http.ResponseWriter, r *http.Request) {
	rows, err := s.matching.ListApplicationsForOwner(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOwnerRows(rows))
}

func (s *Server) handleApplicantApplications(w http.ResponseWriter, r *http.Request) {
	rows, err := s.matching.ListApplicationsForApplicant(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicantRows(rows))
}
