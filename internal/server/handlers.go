// ABOUTME: HTTP handlers for collection resources and blueprint endpoints
// ABOUTME: Maps service errors to the API error contract

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uniintel/admin-gateway/internal/resource"
	"github.com/uniintel/admin-gateway/internal/store"
)

// IdentityResponse is the JSON response for GET /.
type IdentityResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	s.sendJSON(w, http.StatusOK, IdentityResponse{
		Service: "admin-gateway",
		Version: Version,
		Backend: s.service.ActiveBackend(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sendJSON(w, http.StatusOK, s.service.List(r.Context(), kind))
	}
}

func (s *Server) handleCreate(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input map[string]any
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		created, err := s.service.Create(r.Context(), kind, input)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.sendJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleDelete(kind resource.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.service.Delete(r.Context(), kind, r.PathValue("id")); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.UpdateArticle(r.Context(), r.PathValue("id"), input); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleBlueprintList(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.service.ListBlueprints(r.Context()))
}

func (s *Server) handleBlueprintActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.service.ActiveBlueprint(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "No published blueprint found")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, active)
}

// BlueprintSaveRequest is the JSON request body for POST /api/blueprints.
type BlueprintSaveRequest struct {
	Name      string `json:"name"`
	Structure any    `json:"structure"`
}

func (s *Server) handleBlueprintSave(w http.ResponseWriter, r *http.Request) {
	var req BlueprintSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	saved, err := s.service.SaveBlueprint(r.Context(), req.Name, req.Structure)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, saved)
}

func (s *Server) handleBlueprintPublish(w http.ResponseWriter, r *http.Request) {
	published, err := s.service.PublishBlueprint(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, published)
}

func (s *Server) handleBlueprintHistory(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.service.BlueprintHistory(r.Context(), r.PathValue("id")))
}

// writeServiceError maps service errors to the API error contract. Upstream
// errors from the remote proxy are relayed with their original status and
// body so clients see exactly what the shared service said.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *resource.ValidationError
	if errors.As(err, &verr) {
		s.sendJSONError(w, http.StatusBadRequest, verr.Error())
		return
	}

	var nferr *resource.NotFoundError
	if errors.As(err, &nferr) {
		s.sendJSONError(w, http.StatusNotFound, nferr.Error())
		return
	}

	var uerr *store.UpstreamError
	if errors.As(err, &uerr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(uerr.StatusCode)
		_, _ = w.Write(uerr.Body)
		return
	}

	s.logger.Error("request failed", "error", err)
	s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}
