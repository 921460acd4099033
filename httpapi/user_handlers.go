package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kidwon/lifetree-app-api/auth"
)

// handleGetProfile returns the stored account, unlike /auth/me which only
// echoes the token.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(*user))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.UpdateProfile(r.Context(), userIDFrom(r.Context()), auth.ProfileUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(*user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(*user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponses(users))
}
