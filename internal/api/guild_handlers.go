package api

import (
	"net/http"
	"time"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/permissions"
	"github.com/pulsechat/pulsechat/internal/service"
)

type createGuildRequest struct {
	Name string `json:"name"`
}

type updateGuildRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IconID      *string `json:"icon_id"`
}

type transferGuildRequest struct {
	TargetUserID string `json:"target_user_id"`
}

func (s *Server) handleCreateGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}

	var req createGuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	guild, err := s.Service.CreateGuild(r.Context(), actorID, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, guild)
}

func (s *Server) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	guild, err := s.Service.GetGuild(r.Context(), guildID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, guild)
}

func (s *Server) handleUpdateGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	var req updateGuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	guild, err := s.Service.UpdateGuild(r.Context(), guildID, actorID, service.GuildUpdate{
		Name:        req.Name,
		Description: req.Description,
		IconID:      req.IconID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, guild)
}

func (s *Server) handleDeleteGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	if err := s.Service.DeleteGuild(r.Context(), guildID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleLeaveGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	if err := s.Service.LeaveGuild(r.Context(), guildID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleTransferGuild(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	var req transferGuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, err := parseSnowflake(req.TargetUserID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "target_user_id is not a valid id")
		return
	}

	guild, err := s.Service.TransferOwnership(r.Context(), guildID, actorID, targetID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, guild)
}

func (s *Server) handleGetGuildChannels(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	channels, err := s.Service.ListGuildChannels(r.Context(), guildID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetGuildInvites(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	invites, err := s.Service.ListGuildInvites(r.Context(), guildID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, invites)
}

type createChannelRequest struct {
	Name     string  `json:"name"`
	Type     int     `json:"type"`
	Topic    *string `json:"topic"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	var req createChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := service.CreateChannelInput{
		Name:  req.Name,
		Type:  models.ChannelType(req.Type),
		Topic: req.Topic,
	}
	if req.ParentID != nil {
		parentID, err := parseSnowflake(*req.ParentID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_id", "parent_id is not a valid id")
			return
		}
		in.ParentID = &parentID
	}

	channel, err := s.Service.CreateChannel(r.Context(), guildID, actorID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, channel)
}

func (s *Server) handleGetGuildMembers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	members, err := s.Service.ListMembers(r.Context(), guildID, actorID, cursorFromQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, members)
}

func (s *Server) handleGetGuildMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	member, err := s.Service.GetMember(r.Context(), guildID, targetID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, member)
}

type updateGuildMemberRequest struct {
	Nickname     *string    `json:"nickname"`
	TimeoutUntil *time.Time `json:"timeout_until"`
}

func (s *Server) handleUpdateGuildMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req updateGuildMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := s.Service.UpdateMember(r.Context(), guildID, targetID, actorID, service.MemberUpdate{
		Nickname:     req.Nickname,
		TimeoutUntil: req.TimeoutUntil,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, member)
}

func (s *Server) handleRemoveGuildMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := s.Service.KickMember(r.Context(), guildID, targetID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}

	if err := s.Service.AssignRole(r.Context(), guildID, targetID, roleID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}

	if err := s.Service.RemoveRole(r.Context(), guildID, targetID, roleID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleGetGuildBans(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	bans, err := s.Service.ListBans(r.Context(), guildID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, bans)
}

type createGuildBanRequest struct {
	Reason *string `json:"reason"`
}

func (s *Server) handleCreateGuildBan(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req createGuildBanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.Service.BanMember(r.Context(), guildID, targetID, actorID, req.Reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleRemoveGuildBan(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := s.Service.UnbanMember(r.Context(), guildID, targetID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}

func (s *Server) handleGetGuildRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	roles, err := s.Service.ListRoles(r.Context(), guildID, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, roles)
}

type createGuildRoleRequest struct {
	Name     string             `json:"name"`
	Position int                `json:"position"`
	Perms    permissions.Bitset `json:"perms"`
}

func (s *Server) handleCreateGuildRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}

	var req createGuildRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := s.Service.CreateRole(r.Context(), guildID, actorID, service.CreateRoleInput{
		Name:     req.Name,
		Position: req.Position,
		Perms:    req.Perms,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, role)
}

type updateGuildRoleRequest struct {
	Name     *string             `json:"name"`
	Position *int                `json:"position"`
	Perms    *permissions.Bitset `json:"perms"`
}

func (s *Server) handleUpdateGuildRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}

	var req updateGuildRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := s.Service.UpdateRole(r.Context(), guildID, roleID, actorID, service.RoleUpdate{
		Name:     req.Name,
		Position: req.Position,
		Perms:    req.Perms,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, role)
}

func (s *Server) handleDeleteGuildRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	guildID, ok := pathID(w, r, "guildID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}

	if err := s.Service.DeleteRole(r.Context(), guildID, roleID, actorID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteNoContent(w)
}
