// ABOUTME: Admin login endpoint and the intelligence sync passthrough
// ABOUTME: Login checks the configured admin list and bcrypt hash, issuing a JWT on success

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 24 * time.Hour

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /api/auth/login. Token is
// null for non-admin credentials; the endpoint still answers 200 so the
// client can route the user to the public site.
type LoginResponse struct {
	Status string  `json:"status"`
	Token  *string `json:"token"`
	Role   string  `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !s.isAdmin(email, req.Password) {
		s.sendJSON(w, http.StatusOK, LoginResponse{Status: "success", Token: nil, Role: "user"})
		return
	}

	token, err := s.verifier.Generate(email, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to generate token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("admin login", "email", email)
	s.sendJSON(w, http.StatusOK, LoginResponse{Status: "success", Token: &token, Role: "admin"})
}

func (s *Server) isAdmin(email, password string) bool {
	listed := false
	for _, admin := range s.cfg.AdminEmailList() {
		if admin == email {
			listed = true
			break
		}
	}
	if !listed || s.cfg.Auth.AdminPasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.AdminPasswordHash), []byte(password)) == nil
}

// handleSyncIntelligence asks the upstream digest service to rebuild its
// digest, relaying whatever it answers.
func (s *Server) handleSyncIntelligence(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimRight(s.cfg.Digest.URL, "/") + "/api/refresh-digest"

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, nil)
	if err != nil {
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to trigger intelligence sync")
		return
	}

	resp, err := s.digest.Do(req)
	if err != nil {
		s.logger.Error("digest sync failed", "url", url, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to trigger intelligence sync")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to trigger intelligence sync")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}
