package quest

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/audit"
	"github.com/kasuganosora/rpgquest/game/event"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Living objects
// ---------------------------------------------------------------------------

type fakeBrain struct {
	aggro map[int64]int
}

func (b *fakeBrain) AddToAggroList(target Living, amount int) {
	if b.aggro == nil {
		b.aggro = make(map[int64]int)
	}
	b.aggro[target.ObjectID()] += amount
}

type line struct {
	to   int64
	text string
}

type fakeNPC struct {
	id      int64
	name    string
	pos     Position
	spawn   Position
	level   int
	guild   string
	inWorld bool
	brain   *fakeBrain

	said      []line
	whispered []line
	turned    int
	walkedTo  []Position
}

func newNPC(id int64, name string) *fakeNPC {
	return &fakeNPC{id: id, name: name, level: 10, inWorld: true, pos: Position{Region: 1}, spawn: Position{Region: 1}}
}

func (n *fakeNPC) ObjectID() int64          { return n.id }
func (n *fakeNPC) Name() string             { return n.name }
func (n *fakeNPC) Position() Position       { return n.pos }
func (n *fakeNPC) Level() int               { return n.level }
func (n *fakeNPC) GuildName() string        { return n.guild }
func (n *fakeNPC) SetGuildName(name string) { n.guild = name }
func (n *fakeNPC) MoveTo(pos Position) bool { n.pos = pos; return true }
func (n *fakeNPC) InWorld() bool            { return n.inWorld }
func (n *fakeNPC) TurnTo(Object)            { n.turned++ }
func (n *fakeNPC) WalkTo(pos Position)      { n.walkedTo = append(n.walkedTo, pos) }
func (n *fakeNPC) WalkToSpawn()             { n.walkedTo = append(n.walkedTo, n.spawn) }

func (n *fakeNPC) SayTo(p Player, text string) {
	n.said = append(n.said, line{to: p.ObjectID(), text: text})
}

func (n *fakeNPC) WhisperTo(p Player, text string) {
	n.whispered = append(n.whispered, line{to: p.ObjectID(), text: text})
}

func (n *fakeNPC) AddToWorld() bool {
	if n.inWorld {
		return false
	}
	n.inWorld = true
	return true
}

func (n *fakeNPC) RemoveFromWorld() bool {
	if !n.inWorld {
		return false
	}
	n.inWorld = false
	return true
}

func (n *fakeNPC) Brain() (Aggressor, bool) {
	if n.brain == nil {
		return nil, false
	}
	return n.brain, true
}

type fakeInventory struct {
	items    map[string]int
	equipped map[string]bool
	full     bool
}

func newInventory() *fakeInventory {
	return &fakeInventory{items: make(map[string]int), equipped: make(map[string]bool)}
}

func (i *fakeInventory) Count(id string) int       { return i.items[id] }
func (i *fakeInventory) IsEquipped(id string) bool { return i.equipped[id] }

func (i *fakeInventory) Add(t *ItemTemplate, count int) error {
	if i.full {
		return ErrInventoryFull
	}
	i.items[t.ID] += count
	return nil
}

func (i *fakeInventory) Remove(id string, count int) bool {
	if i.items[id] < count {
		return false
	}
	i.items[id] -= count
	return true
}

type sent struct {
	text string
	ch   ChatType
}

type offer struct {
	npc  NPC
	id   QuestID
	text string
}

type fakeOut struct {
	messages    []sent
	dialogs     []sent
	tokens      []string
	offers      []offer
	abortOffers []offer
	emotes      []Emote
	spells      []int
	indicators  map[int64]Indicator
	lists       [][]JournalEntry
}

func (o *fakeOut) Message(text string, ch ChatType) { o.messages = append(o.messages, sent{text, ch}) }

func (o *fakeOut) Dialog(text string, token string) {
	o.dialogs = append(o.dialogs, sent{text: text})
	o.tokens = append(o.tokens, token)
}

func (o *fakeOut) QuestOffer(npc NPC, id QuestID, text string) {
	o.offers = append(o.offers, offer{npc, id, text})
}

func (o *fakeOut) QuestAbortOffer(npc NPC, id QuestID, text string) {
	o.abortOffers = append(o.abortOffers, offer{npc, id, text})
}

func (o *fakeOut) EmoteAnimation(_ Living, e Emote) { o.emotes = append(o.emotes, e) }

func (o *fakeOut) SpellCastAnimation(_ Living, spellID int, _ time.Duration) {
	o.spells = append(o.spells, spellID)
}

func (o *fakeOut) QuestIndicator(npc NPC, ind Indicator) {
	if o.indicators == nil {
		o.indicators = make(map[int64]Indicator)
	}
	o.indicators[npc.ObjectID()] = ind
}

func (o *fakeOut) QuestList(entries []JournalEntry) { o.lists = append(o.lists, entries) }

func (o *fakeOut) texts() []string {
	out := make([]string, 0, len(o.messages))
	for _, m := range o.messages {
		out = append(out, m.text)
	}
	return out
}

type fakePlayer struct {
	id      int64
	name    string
	level   int
	attrs   map[Attribute]int64
	class   int
	race    int
	zone    int
	guild   string
	pos     Position
	group   []Player
	inv     *fakeInventory
	journal *Journal
	out     *fakeOut
	online  bool
	xp      int64
	money   int64
	moves   []Position
}

func newPlayer(id int64, name string, level int) *fakePlayer {
	return &fakePlayer{
		id:      id,
		name:    name,
		level:   level,
		attrs:   make(map[Attribute]int64),
		pos:     Position{Region: 1},
		inv:     newInventory(),
		journal: NewJournal(),
		out:     &fakeOut{},
		online:  true,
	}
}

func (p *fakePlayer) ObjectID() int64             { return p.id }
func (p *fakePlayer) Name() string                { return p.name }
func (p *fakePlayer) Position() Position          { return p.pos }
func (p *fakePlayer) Level() int                  { return p.level }
func (p *fakePlayer) GuildName() string           { return p.guild }
func (p *fakePlayer) SetGuildName(name string)    { p.guild = name }
func (p *fakePlayer) InWorld() bool               { return p.online }
func (p *fakePlayer) Online() bool                { return p.online }
func (p *fakePlayer) Attribute(a Attribute) int64 { return p.attrs[a] }
func (p *fakePlayer) ClassID() int                { return p.class }
func (p *fakePlayer) Race() int                   { return p.race }
func (p *fakePlayer) Zone() int                   { return p.zone }
func (p *fakePlayer) Group() []Player             { return p.group }
func (p *fakePlayer) Inventory() Inventory        { return p.inv }
func (p *fakePlayer) Journal() *Journal           { return p.journal }
func (p *fakePlayer) Out() Presenter              { return p.out }
func (p *fakePlayer) GainExperience(amount int64) { p.xp += amount }
func (p *fakePlayer) AddMoney(amount int64)       { p.money += amount }

func (p *fakePlayer) MoveTo(pos Position) bool {
	p.pos = pos
	p.moves = append(p.moves, pos)
	return true
}

func (p *fakePlayer) RemoveMoney(amount int64) bool {
	if p.money < amount {
		return false
	}
	p.money -= amount
	return true
}

// ---------------------------------------------------------------------------
// World and timers
// ---------------------------------------------------------------------------

type fakeWorld struct {
	players    []Player
	npcs       []NPC
	ground     []*ItemTemplate
	broadcasts []string
}

func distance(a, b Position) int {
	dx, dy, dz := float64(a.X-b.X), float64(a.Y-b.Y), float64(a.Z-b.Z)
	return int(math.Sqrt(dx*dx + dy*dy + dz*dz))
}

func (w *fakeWorld) PlayersInRadius(o Object, radius int) []Player {
	var out []Player
	for _, p := range w.players {
		if p.Position().Region == o.Position().Region && distance(p.Position(), o.Position()) <= radius {
			out = append(out, p)
		}
	}
	return out
}

func (w *fakeWorld) NPCsInRadius(o Object, radius int) []NPC {
	var out []NPC
	for _, n := range w.npcs {
		if n.Position().Region == o.Position().Region && distance(n.Position(), o.Position()) <= radius {
			out = append(out, n)
		}
	}
	return out
}

func (w *fakeWorld) Distance(a, b Object) int {
	if a.Position().Region != b.Position().Region {
		return -1
	}
	return distance(a.Position(), b.Position())
}

func (w *fakeWorld) DropOnGround(_ Object, t *ItemTemplate) { w.ground = append(w.ground, t) }
func (w *fakeWorld) Broadcast(text string)                  { w.broadcasts = append(w.broadcasts, text) }

type fakeTimer struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// fakeTimers is a manual clock. Nothing fires until the harness advances it.
type fakeTimers struct {
	now     time.Duration
	seq     int
	pending []*fakeTimer
}

func (f *fakeTimers) After(d time.Duration, fn func()) func() bool {
	f.seq++
	t := &fakeTimer{at: f.now + d, seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return func() bool {
		if t.cancelled || t.fn == nil {
			return false
		}
		t.cancelled = true
		return true
	}
}

// next pops the earliest live timer due at or before limit.
func (f *fakeTimers) next(limit time.Duration) *fakeTimer {
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].at != f.pending[j].at {
			return f.pending[i].at < f.pending[j].at
		}
		return f.pending[i].seq < f.pending[j].seq
	})
	for len(f.pending) > 0 {
		t := f.pending[0]
		if t.at > limit {
			return nil
		}
		f.pending = f.pending[1:]
		if !t.cancelled {
			return t
		}
	}
	return nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Log(e audit.Entry) { a.entries = append(a.entries, e) }

func (a *recordingAuditor) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t       *testing.T
	eng     *Engine
	world   *fakeWorld
	timers  *fakeTimers
	bus     *event.Bus
	auditor *recordingAuditor
	roll    int
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		world:   &fakeWorld{},
		timers:  &fakeTimers{},
		bus:     event.NewBus(),
		auditor: &recordingAuditor{},
	}
	deps := Deps{
		World:   h.world,
		Timers:  h.timers,
		Bus:     h.bus,
		Auditor: h.auditor,
		Rand:    func(n int) int { return h.roll % n },
	}
	for _, o := range opts {
		o(&deps)
	}
	h.eng = NewEngine(DefaultOptions(), deps, zap.NewNop())
	return h
}

func (h *harness) player(id int64, name string, level int) *fakePlayer {
	p := newPlayer(id, name, level)
	h.world.players = append(h.world.players, p)
	return p
}

func (h *harness) npc(id int64, name string) *fakeNPC {
	n := newNPC(id, name)
	h.world.npcs = append(h.world.npcs, n)
	return n
}

// descriptor registers a global descriptor with the given bounds.
func (h *harness) descriptor(id QuestID, name string, minLevel, maxLevel, maxRepeat int) *Descriptor {
	h.t.Helper()
	d := &Descriptor{QuestID: id, Name: name, MinLevel: minLevel, MaxLevel: maxLevel, MaxRepeat: maxRepeat}
	if err := h.eng.Manager().RegisterDescriptor(d); err != nil {
		h.t.Fatalf("register descriptor: %v", err)
	}
	return d
}

// register builds a part from the builder and registers it.
func (h *harness) register(b *Builder) *Part {
	h.t.Helper()
	p, err := b.Build()
	if err != nil {
		h.t.Fatalf("build part: %v", err)
	}
	h.eng.Rules().Register(p)
	return p
}

// dispatch delivers ev synchronously; the test goroutine acts as the
// dispatch goroutine.
func (h *harness) dispatch(ev Event) { h.eng.Dispatch(ev) }

// advance moves the clock forward by d, firing due timers in order and
// running the jobs they post before looking for the next timer.
func (h *harness) advance(d time.Duration) {
	limit := h.timers.now + d
	for {
		t := h.timers.next(limit)
		if t == nil {
			break
		}
		h.timers.now = t.at
		fn := t.fn
		t.fn = nil
		fn()
		h.eng.Drain()
	}
	h.timers.now = limit
}
