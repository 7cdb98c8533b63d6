package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetInvite(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	invite, err := s.Service.GetInvite(r.Context(), code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, invite)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	code := chi.URLParam(r, "code")

	guild, err := s.Service.AcceptInvite(r.Context(), code, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, guild)
}

func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	code := chi.URLParam(r, "code")

	if err := s.Service.DeleteInvite(r.Context(), code, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}
