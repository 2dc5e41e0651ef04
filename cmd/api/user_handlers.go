package main

import (
	"net/http"

	"parley/internal/data"
)

type userView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// handleLookupUser resolves a user by email so a client can open a direct
// conversation. The password hash never leaves the store layer's view.
func (s *Server) handleLookupUser(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		s.failInput(w, "email query parameter is required")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, userView{
		ID:          user.ID.Hex(),
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
	})
}

// handleMe returns the authenticated user's own profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	user, err := s.users.GetUserByID(r.Context(), actor)
	if err != nil {
		if data.IsKind(err, data.KindNotFound) {
			// The token outlived the account.
			s.fail(w, data.NewError(data.KindForbidden, "account no longer exists"))
			return
		}
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, userView{
		ID:          user.ID.Hex(),
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
	})
}
