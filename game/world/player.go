package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/model"
)

// Player implements quest.Player over a session, the stored character, the
// bag and the quest journal.
type Player struct {
	sess    *player.PlayerSession
	out     *player.Presenter
	bag     *item.Bag
	journal *quest.Journal
	world   *World

	mu    sync.RWMutex
	char  model.Character
	areas map[int]quest.Area
	dirty bool
}

// NewPlayer builds the adapter. The character is copied.
func (w *World) NewPlayer(sess *player.PlayerSession, char *model.Character, bag *item.Bag) *Player {
	return &Player{
		sess:    sess,
		out:     player.NewPresenter(sess),
		bag:     bag,
		journal: quest.NewJournal(),
		world:   w,
		char:    *char,
		areas:   make(map[int]quest.Area),
	}
}

// Enter registers p as present in the world, replacing an earlier adapter
// for the same character.
func (w *World) Enter(p *Player) {
	w.mu.Lock()
	w.players[p.ObjectID()] = p
	w.mu.Unlock()
	w.UpdateAreas(p)
}

// Leave removes p unless a newer adapter for the character replaced it.
func (w *World) Leave(p *Player) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.players[p.ObjectID()] != p {
		return false
	}
	delete(w.players, p.ObjectID())
	return true
}

// Player looks up a present player by character id.
func (w *World) Player(charID int64) (*Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.players[charID]
	return p, ok
}

// Players returns every present player sorted by id.
func (w *World) Players() []*Player {
	w.mu.RLock()
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID() < out[j].ObjectID() })
	return out
}

func (p *Player) Session() *player.PlayerSession { return p.sess }
func (p *Player) Bag() *item.Bag                 { return p.bag }

// Character returns a copy of the current character state.
func (p *Player) Character() model.Character {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char
}

// takeDirty reports whether the character changed since the last call.
func (p *Player) takeDirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dirty
	p.dirty = false
	return d
}

func (p *Player) update(fn func(c *model.Character)) {
	p.mu.Lock()
	fn(&p.char)
	p.dirty = true
	p.mu.Unlock()
}

func (p *Player) ObjectID() int64 { return p.sess.CharID }

func (p *Player) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.Name
}

func (p *Player) Position() quest.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := &p.char
	return quest.Position{Region: c.Region, X: c.X, Y: c.Y, Z: c.Z, Heading: c.Heading}
}

func (p *Player) Level() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.Level
}

func (p *Player) GuildName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.GuildName
}

func (p *Player) SetGuildName(name string) {
	p.update(func(c *model.Character) { c.GuildName = name })
}

// MoveTo relocates an online player and re-evaluates trigger areas.
func (p *Player) MoveTo(pos quest.Position) bool {
	if !p.Online() {
		return false
	}
	p.update(func(c *model.Character) {
		c.Region, c.X, c.Y, c.Z, c.Heading = pos.Region, pos.X, pos.Y, pos.Z, pos.Heading
	})
	p.sess.Send(player.NewPacket("player_move", pos))
	p.world.UpdateAreas(p)
	return true
}

// SetZone records the zone the client reports inside the current region.
func (p *Player) SetZone(zone int) {
	p.update(func(c *model.Character) { c.Zone = zone })
}

func (p *Player) InWorld() bool { return p.Online() }
func (p *Player) Online() bool  { return !p.sess.IsClosed() }

func (p *Player) Attribute(a quest.Attribute) int64 {
	if a == quest.AttrEncumbrance {
		return p.encumbrance()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := &p.char
	switch a {
	case quest.AttrLevel:
		return int64(c.Level)
	case quest.AttrHealth:
		return int64(c.Health)
	case quest.AttrHealthMax:
		return int64(c.MaxHealth)
	case quest.AttrMana:
		return int64(c.Mana)
	case quest.AttrManaMax:
		return int64(c.MaxMana)
	case quest.AttrEndurance:
		return int64(c.Endurance)
	case quest.AttrEnduranceMax:
		return int64(c.MaxEndurance)
	case quest.AttrEncumbranceMax:
		return int64(c.MaxEncumbrance)
	case quest.AttrGold:
		return c.Gold
	case quest.AttrRealm:
		return int64(c.Realm)
	case quest.AttrRealmLevel:
		return int64(c.RealmLevel)
	case quest.AttrRealmPoints:
		return c.RealmPoints
	case quest.AttrGender:
		return int64(c.Gender)
	}
	return 0
}

// encumbrance is the carried weight of the backpack.
func (p *Player) encumbrance() int64 {
	var total int64
	for _, s := range p.bag.Stacks() {
		if s.Equipped {
			continue
		}
		if t, ok := p.world.catalog.Get(s.ItemID); ok {
			total += int64(t.Weight) * int64(s.Qty)
		}
	}
	return total
}

func (p *Player) ClassID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.ClassID
}

func (p *Player) Race() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.Race
}

func (p *Player) Zone() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.char.Zone
}

// Group returns the present members of p's party, p included, or nil when p
// is solo.
func (p *Player) Group() []quest.Player {
	if p.world.parties == nil {
		return nil
	}
	pt := p.world.parties.GetParty(p.ObjectID())
	if pt == nil {
		return nil
	}
	var out []quest.Player
	for _, id := range pt.MemberIDs() {
		if m, ok := p.world.Player(id); ok {
			out = append(out, m)
		}
	}
	return out
}

func (p *Player) Inventory() quest.Inventory { return p.bag }
func (p *Player) Journal() *quest.Journal    { return p.journal }
func (p *Player) Out() quest.Presenter       { return p.out }

func (p *Player) GainExperience(amount int64) {
	p.update(func(c *model.Character) { c.Exp += amount })
	p.out.Message(fmt.Sprintf("You get %d experience points.", amount), quest.ChatSystem)
}

func (p *Player) AddMoney(amount int64) {
	p.update(func(c *model.Character) { c.Gold += amount })
}

// RemoveMoney takes amount gold, or nothing if the player has less.
func (p *Player) RemoveMoney(amount int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.char.Gold < amount {
		return false
	}
	p.char.Gold -= amount
	p.dirty = true
	return true
}

// swapAreas stores the areas p is now inside and returns the difference to
// the previous set, each sorted by id.
func (p *Player) swapAreas(inside map[int]quest.Area) (left, entered []quest.Area) {
	p.mu.Lock()
	for id, a := range p.areas {
		if _, ok := inside[id]; !ok {
			left = append(left, a)
		}
	}
	for id, a := range inside {
		if _, ok := p.areas[id]; !ok {
			entered = append(entered, a)
		}
	}
	p.areas = inside
	p.mu.Unlock()
	sort.Slice(left, func(i, j int) bool { return left[i].ID < left[j].ID })
	sort.Slice(entered, func(i, j int) bool { return entered[i].ID < entered[j].ID })
	return left, entered
}
