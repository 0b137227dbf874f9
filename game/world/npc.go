package world

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/rpgquest/game/quest"
	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("world: not found")
	ErrOutOfRange = errors.New("world: out of range")
	ErrDuplicate  = errors.New("world: duplicate id")
)

const defaultWalkSpeed = 200 // units per second

// NPCDef is the static description of an NPC.
type NPCDef struct {
	ID         int64
	Name       string
	Level      int
	Guild      string
	Spawn      quest.Position
	Aggressive bool
	// Speed is the walk speed in units per second.
	Speed int
	// Spawned NPCs are placed in the world on creation.
	Spawned bool
}

// Brain keeps an NPC's aggro list.
type Brain struct {
	mu    sync.Mutex
	aggro map[int64]int
}

func (b *Brain) AddToAggroList(target quest.Living, amount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aggro == nil {
		b.aggro = make(map[int64]int)
	}
	b.aggro[target.ObjectID()] += amount
}

// Aggro returns the accumulated aggro for a target.
func (b *Brain) Aggro(id int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aggro[id]
}

// Target returns the id with the most aggro, lowest id on ties.
func (b *Brain) Target() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0, len(b.aggro))
	for id := range b.aggro {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var best int64
	top := -1
	for _, id := range ids {
		if b.aggro[id] > top {
			best, top = id, b.aggro[id]
		}
	}
	return best, top >= 0
}

func (b *Brain) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aggro = nil
}

// NPC implements quest.NPC.
type NPC struct {
	id    int64
	name  string
	level int
	speed int
	spawn quest.Position
	brain *Brain
	world *World

	mu      sync.RWMutex
	pos     quest.Position
	guild   string
	inWorld bool
	walk    *quest.Position
}

// AddNPC creates an NPC from def and registers it. Ids are unique.
func (w *World) AddNPC(def NPCDef) (*NPC, error) {
	if def.ID == 0 || def.Name == "" {
		return nil, fmt.Errorf("npc needs an id and a name: %w", quest.ErrInvalidDefinition)
	}
	n := &NPC{
		id:    def.ID,
		name:  def.Name,
		level: def.Level,
		speed: def.Speed,
		spawn: def.Spawn,
		pos:   def.Spawn,
		guild: def.Guild,
		world: w,
	}
	if n.speed <= 0 {
		n.speed = defaultWalkSpeed
	}
	if def.Aggressive {
		n.brain = &Brain{}
	}
	w.mu.Lock()
	if _, ok := w.npcs[def.ID]; ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("npc %d: %w", def.ID, ErrDuplicate)
	}
	w.npcs[def.ID] = n
	w.mu.Unlock()
	if def.Spawned {
		n.AddToWorld()
	}
	return n, nil
}

// RemoveNPC despawns and forgets the NPC.
func (w *World) RemoveNPC(id int64) {
	w.mu.Lock()
	n, ok := w.npcs[id]
	delete(w.npcs, id)
	w.mu.Unlock()
	if ok {
		n.RemoveFromWorld()
	}
}

// NPC looks up an NPC by id, spawned or not.
func (w *World) NPC(id int64) (*NPC, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.npcs[id]
	return n, ok
}

// NPCs returns every registered NPC sorted by id.
func (w *World) NPCs() []*NPC {
	w.mu.RLock()
	out := make([]*NPC, 0, len(w.npcs))
	for _, n := range w.npcs {
		out = append(out, n)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (n *NPC) ObjectID() int64 { return n.id }
func (n *NPC) Name() string    { return n.name }
func (n *NPC) Level() int      { return n.level }

func (n *NPC) Position() quest.Position {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pos
}

func (n *NPC) GuildName() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.guild
}

func (n *NPC) SetGuildName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.guild = name
}

func (n *NPC) InWorld() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.inWorld
}

// MoveTo places the NPC at pos at once and stops any walk.
func (n *NPC) MoveTo(pos quest.Position) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.inWorld {
		return false
	}
	n.pos = pos
	n.walk = nil
	return true
}

// heading returns the direction from a to b in degrees, 0 facing north.
func heading(a, b quest.Position) int {
	deg := math.Atan2(float64(b.X-a.X), float64(a.Y-b.Y)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return int(deg) % 360
}

func (n *NPC) TurnTo(o quest.Object) {
	target := o.Position()
	n.mu.Lock()
	defer n.mu.Unlock()
	if target.Region != n.pos.Region {
		return
	}
	n.pos.Heading = heading(n.pos, target)
}

func (n *NPC) SayTo(p quest.Player, text string) {
	p.Out().Message(fmt.Sprintf("%s says, %q", n.name, text), quest.ChatSay)
}

func (n *NPC) WhisperTo(p quest.Player, text string) {
	p.Out().Message(fmt.Sprintf("%s whispers to you, %q", n.name, text), quest.ChatWhisper)
}

// WalkTo starts walking towards pos; World.Tick advances the walk. A target
// in another region is ignored.
func (n *NPC) WalkTo(pos quest.Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.inWorld || pos.Region != n.pos.Region {
		return
	}
	target := pos
	n.walk = &target
}

func (n *NPC) WalkToSpawn() { n.WalkTo(n.spawn) }

// Walking reports whether the NPC has a walk target.
func (n *NPC) Walking() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.walk != nil
}

// step advances a walk by dt and returns the new position.
func (n *NPC) step(dt time.Duration) (quest.Position, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.walk == nil || !n.inWorld {
		return n.pos, false
	}
	target := *n.walk
	remaining := distance(n.pos, target)
	travel := int(float64(n.speed) * dt.Seconds())
	if travel <= 0 {
		return n.pos, false
	}
	if remaining <= travel {
		n.pos.X, n.pos.Y, n.pos.Z = target.X, target.Y, target.Z
		n.pos.Heading = target.Heading
		n.walk = nil
		return n.pos, true
	}
	f := float64(travel) / float64(remaining)
	n.pos.Heading = heading(n.pos, target)
	n.pos.X += int(math.Round(float64(target.X-n.pos.X) * f))
	n.pos.Y += int(math.Round(float64(target.Y-n.pos.Y) * f))
	n.pos.Z += int(math.Round(float64(target.Z-n.pos.Z) * f))
	return n.pos, true
}

// AddToWorld spawns the NPC at its spawn point. Returns false when it is
// already in the world.
func (n *NPC) AddToWorld() bool {
	n.mu.Lock()
	if n.inWorld {
		n.mu.Unlock()
		return false
	}
	n.inWorld = true
	n.pos = n.spawn
	n.walk = nil
	n.mu.Unlock()
	n.world.logger.Debug("npc spawned", zap.Int64("npc_id", n.id), zap.String("name", n.name))
	return true
}

// RemoveFromWorld despawns the NPC and forgets its aggro.
func (n *NPC) RemoveFromWorld() bool {
	n.mu.Lock()
	if !n.inWorld {
		n.mu.Unlock()
		return false
	}
	n.inWorld = false
	n.walk = nil
	n.mu.Unlock()
	if n.brain != nil {
		n.brain.clear()
	}
	n.world.logger.Debug("npc despawned", zap.Int64("npc_id", n.id), zap.String("name", n.name))
	return true
}

// Brain returns the aggressive brain, if the NPC has one.
func (n *NPC) Brain() (quest.Aggressor, bool) {
	if n.brain == nil {
		return nil, false
	}
	return n.brain, true
}

// Slay reports that killer killed the NPC: every nearby player hears the
// dying event, the killer the kill, and the NPC leaves the world.
func (w *World) Slay(killer quest.Living, n *NPC) bool {
	if !n.InWorld() {
		return false
	}
	w.Publish(quest.DyingEvent{Living: n, Killer: killer})
	w.Publish(quest.KilledEvent{Killer: killer, Victim: n})
	n.RemoveFromWorld()
	return true
}
