package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsechat/pulsechat/internal/service"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

type updateChannelRequest struct {
	Name  *string `json:"name"`
	Topic *string `json:"topic"`
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	channel, err := s.Service.GetChannel(r.Context(), channelID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, channel)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	var req updateChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	channel, err := s.Service.UpdateChannel(r.Context(), channelID, actorID, service.ChannelUpdate{
		Name:  req.Name,
		Topic: req.Topic,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, channel)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	if err := s.Service.DeleteChannel(r.Context(), channelID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	messages, err := s.Service.ListMessages(r.Context(), channelID, actorID, cursorFromQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, messages)
}

type createMessageRequest struct {
	Content     string  `json:"content"`
	ReferenceID *string `json:"reference_id"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	var req createMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var referenceID *snowflake.ID
	if req.ReferenceID != nil {
		id, err := parseSnowflake(*req.ReferenceID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_id", "reference_id is not a valid id")
			return
		}
		referenceID = &id
	}

	message, err := s.Service.CreateMessage(r.Context(), channelID, actorID, req.Content, referenceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, message)
}

type bulkDeleteMessagesRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleBulkDeleteMessages(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	var req bulkDeleteMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids := make([]snowflake.ID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := parseSnowflake(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_id", "ids contains a value that is not a valid id")
			return
		}
		ids = append(ids, id)
	}

	count, err := s.Service.BulkDeleteMessages(r.Context(), channelID, actorID, ids)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	message, err := s.Service.GetMessage(r.Context(), messageID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, message)
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	var req updateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := s.Service.UpdateMessage(r.Context(), messageID, actorID, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, message)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}

	if err := s.Service.DeleteMessage(r.Context(), messageID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleGetReactions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	emoji := chi.URLParam(r, "emoji")

	reactions, err := s.Service.ListReactions(r.Context(), messageID, actorID, emoji)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, reactions)
}

func (s *Server) handleDeleteAllReactionsForEmoji(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	emoji := chi.URLParam(r, "emoji")

	if err := s.Service.ClearReactionsForEmoji(r.Context(), messageID, actorID, emoji); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	emoji := chi.URLParam(r, "emoji")

	if err := s.Service.AddReaction(r.Context(), messageID, actorID, emoji); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleRemoveOwnReaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	emoji := chi.URLParam(r, "emoji")

	if err := s.Service.RemoveReaction(r.Context(), messageID, actorID, emoji); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleRemoveUserReaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	messageID, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	emoji := chi.URLParam(r, "emoji")

	if err := s.Service.RemoveUserReaction(r.Context(), messageID, targetID, actorID, emoji); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleTriggerTyping(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	if err := s.Service.TriggerTyping(r.Context(), channelID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleGetChannelInvites(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	invites, err := s.Service.ListChannelInvites(r.Context(), channelID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, invites)
}

type createChannelInviteRequest struct {
	MaxUses   *int       `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
	Temporary bool       `json:"temporary"`
}

func (s *Server) handleCreateChannelInvite(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	channelID, ok := pathID(w, r, "channelID")
	if !ok {
		return
	}

	var req createChannelInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	invite, err := s.Service.CreateInvite(r.Context(), channelID, actorID, service.CreateInviteInput{
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Temporary: req.Temporary,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, invite)
}
