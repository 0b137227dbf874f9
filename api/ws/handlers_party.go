package ws

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"go.uber.org/zap"
)

// PartyHandlers handles party-related WebSocket messages.
type PartyHandlers struct {
	mgr    *party.Manager
	sm     *player.SessionManager
	logger *zap.Logger
}

// NewPartyHandlers creates PartyHandlers.
func NewPartyHandlers(mgr *party.Manager, sm *player.SessionManager, logger *zap.Logger) *PartyHandlers {
	return &PartyHandlers{mgr: mgr, sm: sm, logger: logger}
}

// RegisterHandlers registers party WS handlers.
func (h *PartyHandlers) RegisterHandlers(r *Router) {
	r.On("party_invite", h.HandleInvite)
	r.On("party_invite_response", h.HandleInviteResponse)
	r.On("party_leave", h.HandleLeave)
}

type partyInvitePayload struct {
	TargetCharID int64  `json:"target_char_id"`
	TargetName   string `json:"target_name"`
}

// HandleInvite sends a party invite from the sender to the target, named
// either by character ID or by name.
func (h *PartyHandlers) HandleInvite(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req partyInvitePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	var target *player.PlayerSession
	switch {
	case req.TargetCharID != 0:
		target = h.sm.Get(req.TargetCharID)
	case req.TargetName != "":
		target = h.sm.GetByName(req.TargetName)
	}
	if target == nil {
		sendError(s, "target_offline")
		return nil
	}
	if target == s {
		sendError(s, "cannot invite yourself")
		return nil
	}
	if err := h.mgr.InvitePlayer(s, target); err != nil {
		sendError(s, err.Error())
	}
	return nil
}

type partyInviteResponsePayload struct {
	Accept bool `json:"accept"`
}

// HandleInviteResponse handles the target's accept/decline of a party invite.
func (h *PartyHandlers) HandleInviteResponse(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req partyInviteResponsePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	if !req.Accept {
		h.mgr.DeclineInvite(s.CharID)
		return nil
	}
	p, err := h.mgr.AcceptInvite(s)
	if err != nil {
		sendError(s, err.Error())
		return nil
	}
	h.logger.Debug("joined party",
		zap.Int64("char_id", s.CharID), zap.Int64("party_id", p.ID))
	return nil
}

// HandleLeave removes the player from their party. Group requirements see
// the smaller party on the next event.
func (h *PartyHandlers) HandleLeave(_ context.Context, s *player.PlayerSession, _ json.RawMessage) error {
	h.mgr.LeaveParty(s)
	return nil
}
