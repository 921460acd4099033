package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/requirement"
)

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.requirements.List(r.Context(), filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filters = filters.Normalize()
	items := make([]requirementResponse, 0, len(res.Items))
	for _, v := range res.Items {
		items = append(items, newRequirementResponse(v))
	}
	writeJSON(w, http.StatusOK, requirementListResponse{
		Items:    items,
		Total:    res.Total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}

// parseFilters reads createdBy, status, page and pageSize. createdBy=me is
// shorthand for the caller.
func parseFilters(r *http.Request) (requirement.Filters, error) {
	q := r.URL.Query()
	f := requirement.Filters{CreatedBy: q.Get("createdBy")}
	if f.CreatedBy == "me" {
		f.CreatedBy = userIDFrom(r.Context())
	}
	if raw := q.Get("status"); raw != "" {
		status, err := requirement.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	var err error
	if f.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = intParam(q.Get("pageSize"), "pageSize"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	var req createRequirementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.requirements.Create(r.Context(), requirement.CreateParams{
		CreatorID:           userIDFrom(r.Context()),
		Title:               req.Title,
		Description:         req.Description,
		Agreement:           req.Agreement,
		AgreementButtonText: req.AgreementButtonText,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequirementResponse(view))
}

func (s *Server) handleGetRequirement(w http.ResponseWriter, r *http.Request) {
	view, err := s.requirements.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleUpdateRequirement(w http.ResponseWriter, r *http.Request) {
	var req updateRequirementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.requirements.Update(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], requirement.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleUpdateAgreement(w http.ResponseWriter, r *http.Request) {
	var req agreementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.requirements.UpdateAgreement(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], requirement.AgreementParams{
		Agreement:  req.Agreement,
		ButtonText: req.ButtonText,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleCompleteRequirement(w http.ResponseWriter, r *http.Request) {
	view, err := s.requirements.Complete(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleCancelRequirement(w http.ResponseWriter, r *http.Request) {
	view, err := s.requirements.Cancel(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequirementResponse(view))
}

func (s *Server) handleDeleteRequirement(w http.ResponseWriter, r *http.Request) {
	if err := s.requirements.Delete(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
