package quest

import (
	"time"

	"go.uber.org/zap"
)

// spawnEffect is the spell cast animation shown when a monster appears.
const (
	spawnEffectSpell    = 1
	spawnEffectDuration = 2 * time.Second
)

// AttackAction makes NPC (default the part NPC) attack the player. Aggro
// defaults to twice the player's level. NPCs without an aggressive brain
// ignore the action.
type AttackAction struct {
	Aggro int
	NPC   NPC
}

func (AttackAction) Kind() ActionKind      { return ActAttack }
func (a AttackAction) check(p *Part) error { return needNPC(ActAttack, a.NPC, p) }

func (a AttackAction) Perform(c *Context) {
	npc, ok := c.requireNPC(a.NPC)
	if !ok {
		return
	}
	brain, ok := npc.Brain()
	if !ok {
		c.warn("attack: npc has no aggressive brain", zap.String("npc", npc.Name()))
		return
	}
	aggro := a.Aggro
	if aggro <= 0 {
		aggro = c.Player.Level() << 1
	}
	brain.AddToAggroList(c.Player, aggro)
}

// WalkToAction makes NPC walk to Location, or to the player when Location is nil.
type WalkToAction struct {
	Location *Location
	NPC      NPC
}

func (WalkToAction) Kind() ActionKind      { return ActWalkTo }
func (a WalkToAction) check(p *Part) error { return needNPC(ActWalkTo, a.NPC, p) }

func (a WalkToAction) Perform(c *Context) {
	npc, ok := c.requireNPC(a.NPC)
	if !ok {
		return
	}
	if a.Location != nil {
		npc.WalkTo(a.Location.Position)
		return
	}
	npc.WalkTo(c.Player.Position())
}

type WalkToSpawnAction struct {
	NPC NPC
}

func (WalkToSpawnAction) Kind() ActionKind      { return ActWalkToSpawn }
func (a WalkToSpawnAction) check(p *Part) error { return needNPC(ActWalkToSpawn, a.NPC, p) }

func (a WalkToSpawnAction) Perform(c *Context) {
	if npc, ok := c.requireNPC(a.NPC); ok {
		npc.WalkToSpawn()
	}
}

// MoveToAction relocates Living (default the player) to Location instantly.
type MoveToAction struct {
	Location Location
	Living   Living
}

func (MoveToAction) Kind() ActionKind  { return ActMoveTo }
func (MoveToAction) check(*Part) error { return nil }

func (a MoveToAction) Perform(c *Context) {
	var l Living = c.Player
	if a.Living != nil {
		l = a.Living
	}
	if !l.MoveTo(a.Location.Position) {
		c.warn("move to failed", zap.String("living", l.Name()), zap.String("location", a.Location.Name))
	}
}

// MonsterSpawnAction adds NPC to the world and shows a spell effect to the
// players around it.
type MonsterSpawnAction struct {
	NPC NPC
}

func (MonsterSpawnAction) Kind() ActionKind { return ActMonsterSpawn }

func (a MonsterSpawnAction) check(*Part) error {
	if a.NPC == nil {
		return actionErr(ActMonsterSpawn, "npc is required")
	}
	return nil
}

func (a MonsterSpawnAction) Perform(c *Context) {
	if !a.NPC.AddToWorld() {
		c.debug("monster spawn: already in world", zap.String("npc", a.NPC.Name()))
		return
	}
	for _, p := range c.eng.world.PlayersInRadius(a.NPC, c.eng.opts.VisibilityDistance) {
		p.Out().SpellCastAnimation(a.NPC, spawnEffectSpell, spawnEffectDuration)
	}
}

type MonsterUnspawnAction struct {
	NPC NPC
}

func (MonsterUnspawnAction) Kind() ActionKind      { return ActMonsterUnspawn }
func (a MonsterUnspawnAction) check(p *Part) error { return needNPC(ActMonsterUnspawn, a.NPC, p) }

func (a MonsterUnspawnAction) Perform(c *Context) {
	if npc, ok := c.requireNPC(a.NPC); ok {
		npc.RemoveFromWorld()
	}
}

type SetGuildNameAction struct {
	Name string
	NPC  NPC
}

func (SetGuildNameAction) Kind() ActionKind      { return ActSetGuildName }
func (a SetGuildNameAction) check(p *Part) error { return needNPC(ActSetGuildName, a.NPC, p) }

func (a SetGuildNameAction) Perform(c *Context) {
	if npc, ok := c.requireNPC(a.NPC); ok {
		npc.SetGuildName(a.Name)
	}
}
