package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	"go.uber.org/zap"
)

// InteractDistance is how close a player must stand to an NPC to talk to it,
// whisper to it or hand it an item.
const InteractDistance = 512

// NPCHandlers turns client interactions with NPCs and quest prompts into
// quest engine events.
type NPCHandlers struct {
	world  *world.World
	engine *quest.Engine
	logger *zap.Logger
}

// NewNPCHandlers creates NPCHandlers.
func NewNPCHandlers(w *world.World, eng *quest.Engine, logger *zap.Logger) *NPCHandlers {
	return &NPCHandlers{world: w, engine: eng, logger: logger}
}

// RegisterHandlers registers NPC-related WS handlers on the router.
func (h *NPCHandlers) RegisterHandlers(r *Router) {
	r.On("npc_interact", h.HandleInteract)
	r.On("npc_whisper", h.HandleWhisper)
	r.On("give_item", h.HandleGiveItem)
	r.On("quest_reply", h.HandleQuestReply)
	r.On("dialog_reply", h.HandleDialogReply)
}

type npcReq struct {
	NPCID  int64  `json:"npc_id"`
	Text   string `json:"text,omitempty"`
	ItemID string `json:"item_id,omitempty"`
}

// reach resolves the player and the NPC of a request and checks that the
// NPC is spawned and within InteractDistance.
func (h *NPCHandlers) reach(s *player.PlayerSession, npcID int64) (*world.Player, *world.NPC, bool) {
	p, ok := playerOf(h.world, s)
	if !ok {
		return nil, nil, false
	}
	n, ok := h.world.NPC(npcID)
	if !ok || !n.InWorld() {
		sendError(s, "npc not found")
		return nil, nil, false
	}
	if d := h.world.Distance(p, n); d < 0 || d > InteractDistance {
		sendError(s, "too far away")
		return nil, nil, false
	}
	return p, n, true
}

// HandleInteract processes a player right-clicking an NPC.
func (h *NPCHandlers) HandleInteract(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req npcReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, n, ok := h.reach(s, req.NPCID)
	if !ok {
		return nil
	}
	n.TurnTo(p)
	h.engine.Publish(quest.InteractEvent{Player: p, NPC: n})
	return nil
}

// HandleWhisper processes a player whispering to an NPC, usually a keyword
// taken from an earlier answer.
func (h *NPCHandlers) HandleWhisper(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req npcReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}
	p, n, ok := h.reach(s, req.NPCID)
	if !ok {
		return nil
	}
	h.engine.Publish(quest.WhisperEvent{Player: p, NPC: n, Text: text})
	return nil
}

// HandleGiveItem processes a player handing an item to an NPC. The item only
// leaves the bag when a quest part takes it.
func (h *NPCHandlers) HandleGiveItem(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req npcReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, n, ok := h.reach(s, req.NPCID)
	if !ok {
		return nil
	}
	t, ok := h.world.Catalog().Get(req.ItemID)
	if !ok || p.Bag().Count(req.ItemID) == 0 {
		sendError(s, "you do not have that item")
		return nil
	}
	h.engine.Publish(quest.GiveItemEvent{Player: p, NPC: n, Item: t})
	return nil
}

type questReplyReq struct {
	QuestID quest.QuestID `json:"quest_id"`
	Accept  bool          `json:"accept"`
}

// HandleQuestReply answers a quest_offer prompt. The pending offer is
// consumed so each prompt is answered once; replies without one are ignored.
func (h *NPCHandlers) HandleQuestReply(ctx context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req questReplyReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, ok := playerOf(h.world, s)
	if !ok || h.engine.Offers() == nil {
		return nil
	}
	kind, ok, err := h.engine.Offers().Consume(ctx, s.CharID, req.QuestID)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Debug("quest reply without pending offer",
			zap.Int64("char_id", s.CharID), zap.Int("quest_id", int(req.QuestID)))
		return nil
	}

	ev := quest.QuestEvent{Player: p, QuestID: req.QuestID}
	switch {
	case kind == quest.OfferGive && req.Accept:
		ev.Type = quest.EventAcceptQuest
	case kind == quest.OfferGive:
		ev.Type = quest.EventDeclineQuest
	case kind == quest.OfferAbort && req.Accept:
		ev.Type = quest.EventAbortQuest
	default:
		ev.Type = quest.EventContinueQuest
	}
	h.engine.Publish(ev)
	return nil
}

type dialogReplyReq struct {
	Token  string `json:"token"`
	Accept bool   `json:"accept"`
}

// HandleDialogReply answers a custom yes/no dialog.
func (h *NPCHandlers) HandleDialogReply(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req dialogReplyReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, ok := playerOf(h.world, s)
	if !ok {
		return nil
	}
	if !h.engine.AnswerDialog(p, req.Token, req.Accept) {
		h.logger.Debug("stale dialog reply", zap.Int64("char_id", s.CharID))
	}
	return nil
}
