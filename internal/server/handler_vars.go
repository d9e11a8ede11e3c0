package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/gocoro/pkg/model"
)

func (s *Server) handleListVars(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.env == nil {
		respondError(w, reqID, model.NewNotFoundError("environment", "vars"))
		return
	}
	respondOK(w, reqID, s.env.Vars())
}

func (s *Server) handleSetVar(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")
	if s.env == nil {
		respondError(w, reqID, model.NewNotFoundError("environment", "vars"))
		return
	}

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		respondError(w, reqID, model.NewValidationError("invalid JSON body", model.FieldError{Field: "body", Message: err.Error()}))
		return
	}
	if err := s.env.Set(name, value); err != nil {
		respondError(w, reqID, model.NewInternalError(err))
		return
	}
	s.logger.Info("var set", "name", name)
	respondOK(w, reqID, map[string]any{name: value})
}
