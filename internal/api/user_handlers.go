package api

import (
	"net/http"

	"github.com/pulsechat/pulsechat/internal/service"
)

type updateSelfRequest struct {
	Username *string `json:"username"`
	AvatarID *string `json:"avatar_id"`
}

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}

	user, err := s.Service.GetUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateSelf(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}

	var req updateSelfRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.Service.UpdateUser(r.Context(), userID, service.UserUpdate{
		Username: req.Username,
		AvatarID: req.AvatarID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetSelfGuilds(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}

	guilds, err := s.Service.ListGuildsForUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, guilds)
}

func (s *Server) handleGetSelfChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}

	channels, err := s.Service.ListChannelsForUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := s.Service.GetUser(r.Context(), targetID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateDM(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	channel, err := s.Service.CreateOrGetDM(r.Context(), actorID, targetID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, channel)
}
