package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	"go.uber.org/zap"
)

// pickupReach is how far a player may be from a ground item to pick it up.
const pickupReach = 256

// GameHandlers bundles the dependencies needed by in-game WS message handlers.
type GameHandlers struct {
	world  *world.World
	engine *quest.Engine
	logger *zap.Logger
}

// NewGameHandlers creates a new GameHandlers.
func NewGameHandlers(w *world.World, eng *quest.Engine, logger *zap.Logger) *GameHandlers {
	return &GameHandlers{world: w, engine: eng, logger: logger}
}

// RegisterHandlers registers all in-game handlers on the given Router.
func (gh *GameHandlers) RegisterHandlers(r *Router) {
	r.On("ping", gh.HandlePing)
	r.On("player_move", gh.HandleMove)
	r.On("pickup", gh.HandlePickup)
	r.On("use_item", gh.HandleUseItem)
	r.On("quest_list", gh.HandleQuestList)
}

// playerOf returns the world player bound to s. A displaced session no
// longer owns the character and gets nothing.
func playerOf(w *world.World, s *player.PlayerSession) (*world.Player, bool) {
	p, ok := w.Player(s.CharID)
	if !ok || p.Session() != s {
		return nil, false
	}
	return p, true
}

// ------------------------------------------------------------------ ping

type pingPayload struct {
	TS int64 `json:"ts"`
}

// HandlePing responds to client heartbeat pings.
func (gh *GameHandlers) HandlePing(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	s.SendHeartbeatPong(p.TS)
	return nil
}

// ------------------------------------------------------------------ player_move

type moveReq struct {
	quest.Position
	Zone int `json:"zone"`
}

// HandleMove applies a client-reported position. Area enter/leave events are
// raised by the world as the player crosses area borders.
func (gh *GameHandlers) HandleMove(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req moveReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, ok := playerOf(gh.world, s)
	if !ok {
		return nil
	}
	if req.Region != p.Position().Region {
		// Regions only change through teleports.
		sendError(s, "region change not allowed")
		return nil
	}
	p.SetZone(req.Zone)
	p.MoveTo(req.Position)
	return nil
}

// ------------------------------------------------------------------ pickup

type pickupReq struct {
	GroundID int64 `json:"ground_id"`
}

// HandlePickup moves a ground item into the player's bag.
func (gh *GameHandlers) HandlePickup(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req pickupReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, ok := playerOf(gh.world, s)
	if !ok {
		return nil
	}
	err := gh.world.PickUp(p, req.GroundID, pickupReach)
	switch {
	case err == nil:
		s.Send(player.NewPacket("pickup_ok", map[string]int64{"ground_id": req.GroundID}))
	case errors.Is(err, item.ErrInventoryFull):
		sendError(s, "inventory full")
	case errors.Is(err, world.ErrOutOfRange):
		sendError(s, "too far away")
	case errors.Is(err, world.ErrNotFound):
		sendError(s, "item is gone")
	default:
		return err
	}
	return nil
}

// ------------------------------------------------------------------ use_item

type useItemReq struct {
	ItemID string `json:"item_id"`
}

// HandleUseItem raises an item-used event for an item the player carries.
func (gh *GameHandlers) HandleUseItem(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req useItemReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	p, ok := playerOf(gh.world, s)
	if !ok {
		return nil
	}
	t, ok := gh.world.Catalog().Get(req.ItemID)
	if !ok || p.Bag().Count(req.ItemID) == 0 {
		sendError(s, "you do not have that item")
		return nil
	}
	gh.engine.Publish(quest.UseItemEvent{Player: p, Item: t})
	return nil
}

// ------------------------------------------------------------------ quest_list

// HandleQuestList resends the player's quest log.
func (gh *GameHandlers) HandleQuestList(_ context.Context, s *player.PlayerSession, _ json.RawMessage) error {
	p, ok := playerOf(gh.world, s)
	if !ok {
		return nil
	}
	p.Out().QuestList(gh.engine.Manager().Entries(p))
	return nil
}

func sendError(s *player.PlayerSession, msg string) {
	payload, _ := json.Marshal(map[string]string{"message": msg})
	s.Send(&player.Packet{Type: "error", Payload: payload})
}
