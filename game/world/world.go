// Package world is the in-process game world the quest engine runs against:
// NPCs, connected players, ground items, trigger areas and broadcast.
package world

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"go.uber.org/zap"
)

const (
	// BroadcastChannel carries world broadcasts between server nodes.
	BroadcastChannel = "quest:broadcast"

	// TickInterval is how often walking NPCs advance and ground items expire.
	TickInterval = 100 * time.Millisecond

	groundItemTTL = 3 * time.Minute
)

// Publisher hands an event to the quest engine.
type Publisher func(ev quest.Event) bool

// Deps are the collaborators a World needs. PubSub and Parties may be nil.
type Deps struct {
	Sessions *player.SessionManager
	PubSub   cache.PubSub
	Parties  *party.Manager
	Catalog  *item.Catalog
}

// GroundItem is an item lying in the world.
type GroundItem struct {
	ID       int64
	Item     *quest.ItemTemplate
	Pos      quest.Position
	ExpireAt time.Time
}

// AreaDef places a trigger area in the world as a circle in one region.
type AreaDef struct {
	Area   quest.Area
	Center quest.Position
	Radius int
}

func (a AreaDef) contains(pos quest.Position) bool {
	return pos.Region == a.Center.Region && distance(a.Center, pos) <= a.Radius
}

// World implements quest.World.
type World struct {
	mu      sync.RWMutex
	npcs    map[int64]*NPC
	players map[int64]*Player
	ground  map[int64]*GroundItem
	areas   []AreaDef

	groundSeq int64
	publish   atomic.Pointer[Publisher]
	now       func() time.Time

	sessions *player.SessionManager
	pubsub   cache.PubSub
	parties  *party.Manager
	catalog  *item.Catalog
	logger   *zap.Logger
}

// New creates an empty world.
func New(deps Deps, logger *zap.Logger) *World {
	if deps.Catalog == nil {
		deps.Catalog = item.NewCatalog()
	}
	return &World{
		npcs:     make(map[int64]*NPC),
		players:  make(map[int64]*Player),
		ground:   make(map[int64]*GroundItem),
		now:      time.Now,
		sessions: deps.Sessions,
		pubsub:   deps.PubSub,
		parties:  deps.Parties,
		catalog:  deps.Catalog,
		logger:   logger,
	}
}

// SetPublisher connects the world to the engine's event queue.
func (w *World) SetPublisher(fn Publisher) {
	w.publish.Store(&fn)
}

// Publish queues ev on the engine; without a publisher the event is dropped.
func (w *World) Publish(ev quest.Event) bool {
	fn := w.publish.Load()
	if fn == nil {
		w.logger.Debug("event dropped, no publisher", zap.Stringer("event", ev.Kind()))
		return false
	}
	return (*fn)(ev)
}

func (w *World) Catalog() *item.Catalog { return w.catalog }

// ---------------------------------------------------------------------------
// Spatial queries (quest.World)
// ---------------------------------------------------------------------------

func distance(a, b quest.Position) int {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return int(math.Sqrt(dx*dx + dy*dy + dz*dz))
}

// Distance returns -1 when the objects are in different regions.
func (w *World) Distance(a, b quest.Object) int {
	pa, pb := a.Position(), b.Position()
	if pa.Region != pb.Region {
		return -1
	}
	return distance(pa, pb)
}

// PlayersInRadius returns online players within radius of o, o included when
// it is a player.
func (w *World) PlayersInRadius(o quest.Object, radius int) []quest.Player {
	center := o.Position()
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []quest.Player
	for _, p := range w.players {
		if !p.Online() {
			continue
		}
		pos := p.Position()
		if pos.Region == center.Region && distance(center, pos) <= radius {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID() < out[j].ObjectID() })
	return out
}

// NPCsInRadius returns spawned NPCs within radius of o.
func (w *World) NPCsInRadius(o quest.Object, radius int) []quest.NPC {
	center := o.Position()
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []quest.NPC
	for _, n := range w.npcs {
		if !n.InWorld() {
			continue
		}
		pos := n.Position()
		if pos.Region == center.Region && distance(center, pos) <= radius {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID() < out[j].ObjectID() })
	return out
}

// ---------------------------------------------------------------------------
// Broadcast
// ---------------------------------------------------------------------------

// Broadcast sends text to every player on every node. Without a PubSub only
// local sessions receive it.
func (w *World) Broadcast(text string) {
	if w.pubsub == nil {
		w.deliverBroadcast(text)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.pubsub.Publish(ctx, BroadcastChannel, text); err != nil {
		w.logger.Warn("broadcast publish failed, delivering locally", zap.Error(err))
		w.deliverBroadcast(text)
	}
}

func (w *World) deliverBroadcast(text string) {
	if w.sessions != nil {
		w.sessions.BroadcastMessage(text)
	}
}

// RunBroadcastRelay delivers broadcasts from the PubSub to local sessions
// until ctx is cancelled.
func (w *World) RunBroadcastRelay(ctx context.Context) error {
	if w.pubsub == nil {
		<-ctx.Done()
		return nil
	}
	msgs, cancel, err := w.pubsub.Subscribe(ctx, BroadcastChannel)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			w.deliverBroadcast(m.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

// ---------------------------------------------------------------------------
// Ground items
// ---------------------------------------------------------------------------

// DropOnGround places t at near's position.
func (w *World) DropOnGround(near quest.Object, t *quest.ItemTemplate) {
	if t == nil {
		return
	}
	g := &GroundItem{
		ID:       atomic.AddInt64(&w.groundSeq, 1),
		Item:     t,
		Pos:      near.Position(),
		ExpireAt: w.now().Add(groundItemTTL),
	}
	w.mu.Lock()
	w.ground[g.ID] = g
	w.mu.Unlock()
	w.logger.Debug("item dropped on ground",
		zap.String("item", t.ID), zap.Int64("ground_id", g.ID), zap.Int("region", g.Pos.Region))
}

// GroundItems returns the items within radius of o.
func (w *World) GroundItems(o quest.Object, radius int) []GroundItem {
	center := o.Position()
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []GroundItem
	for _, g := range w.ground {
		if g.Pos.Region == center.Region && distance(center, g.Pos) <= radius {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PickUp moves a ground item into p's bag. The item stays on the ground when
// it is out of reach or the bag is full.
func (w *World) PickUp(p *Player, groundID int64, reach int) error {
	w.mu.Lock()
	g, ok := w.ground[groundID]
	if !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	pos := p.Position()
	if g.Pos.Region != pos.Region || distance(g.Pos, pos) > reach {
		w.mu.Unlock()
		return ErrOutOfRange
	}
	delete(w.ground, groundID)
	w.mu.Unlock()

	if err := p.Inventory().Add(g.Item, 1); err != nil {
		w.mu.Lock()
		w.ground[groundID] = g
		w.mu.Unlock()
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Areas
// ---------------------------------------------------------------------------

// AddArea registers a trigger area.
func (w *World) AddArea(def AreaDef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.areas = append(w.areas, def)
}

// ClearAreas drops every trigger area, used before a content reload.
func (w *World) ClearAreas() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.areas = nil
}

// Area looks up a registered area by id.
func (w *World) Area(id int) (quest.Area, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, a := range w.areas {
		if a.Area.ID == id {
			return a.Area, true
		}
	}
	return quest.Area{}, false
}

// UpdateAreas compares p's position against the trigger areas and publishes
// leave events before enter events.
func (w *World) UpdateAreas(p *Player) {
	pos := p.Position()
	w.mu.RLock()
	inside := make(map[int]quest.Area)
	for _, a := range w.areas {
		if a.contains(pos) {
			inside[a.Area.ID] = a.Area
		}
	}
	w.mu.RUnlock()

	left, entered := p.swapAreas(inside)
	for _, a := range left {
		w.Publish(quest.AreaEvent{Type: quest.EventLeaveArea, Player: p, Area: a})
	}
	for _, a := range entered {
		w.Publish(quest.AreaEvent{Type: quest.EventEnterArea, Player: p, Area: a})
	}
}

// ---------------------------------------------------------------------------
// Tick
// ---------------------------------------------------------------------------

// Tick advances walking NPCs by dt and expires ground items.
func (w *World) Tick(dt time.Duration) {
	now := w.now()
	w.mu.Lock()
	for id, g := range w.ground {
		if now.After(g.ExpireAt) {
			delete(w.ground, id)
		}
	}
	npcs := make([]*NPC, 0, len(w.npcs))
	for _, n := range w.npcs {
		npcs = append(npcs, n)
	}
	w.mu.Unlock()

	for _, n := range npcs {
		if pos, moved := n.step(dt); moved {
			w.notifyMove(n, pos)
		}
	}
}

func (w *World) notifyMove(n *NPC, pos quest.Position) {
	pkt := player.NewPacket("npc_move", map[string]interface{}{
		"npc_id": n.ObjectID(),
		"x":      pos.X,
		"y":      pos.Y,
		"z":      pos.Z,
	})
	for _, p := range w.PlayersInRadius(n, visibility) {
		p.(*Player).sess.Send(pkt)
	}
}

// visibility bounds the packets sent about moving NPCs.
const visibility = 3600
