package main

import (
	"encoding/json"
	"net/http"
	"regexp"

	"parley/internal/auth"
	"parley/internal/data"
	"parley/internal/metrics"
)

// emailRegex validates email addresses (simplified RFC 5322).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// handleRegister creates an account and returns a session token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}

	if !emailRegex.MatchString(data.NormalizeEmail(req.Email)) {
		s.failInput(w, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		s.failInput(w, "password must be at least 8 characters")
		return
	}
	if req.DisplayName == "" {
		s.failInput(w, "displayName is required")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Email, hashed, req.DisplayName)
	if err != nil {
		s.fail(w, err)
		return
	}

	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.DisplayName)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusCreated, tokenResponse{
		Token:     token,
		UserID:    user.ID.Hex(),
		ExpiresAt: expiresAt.Unix(),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin authenticates a user and returns a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Do not reveal whether the account exists.
		s.fail(w, data.NewError(data.KindForbidden, "invalid credentials"))
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		s.fail(w, data.NewError(data.KindForbidden, "invalid credentials"))
		return
	}

	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.DisplayName)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    user.ID.Hex(),
		ExpiresAt: expiresAt.Unix(),
	})
}

// handleLogout blacklists the session's jti until the token's natural
// expiry. Revoking an already-revoked session is a no-op.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, claims, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	expiresAt := claims.ExpiresAt.Time
	if err := s.revoked.Revoke(r.Context(), claims.ID, claims.UserID, expiresAt); err != nil {
		s.fail(w, err)
		return
	}
	metrics.SessionsRevoked.Inc()

	s.respond(w, http.StatusOK, map[string]bool{"loggedOut": true})
}
