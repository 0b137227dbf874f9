package content

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrUnresolved is returned for references to items, NPCs, locations or
// areas that the content does not declare.
var ErrUnresolved = errors.New("content: unresolved reference")

// Defaults are the qualification bounds for quests that leave them out.
type Defaults struct {
	MinLevel  int
	MaxLevel  int
	MaxRepeat int
}

func DefaultsFromConfig(cfg config.QuestConfig) Defaults {
	d := Defaults{
		MinLevel:  quest.DefaultMinLevel,
		MaxLevel:  quest.DefaultMaxLevel,
		MaxRepeat: quest.DefaultMaxRepeat,
	}
	if cfg.DefaultMinLevel > 0 {
		d.MinLevel = cfg.DefaultMinLevel
	}
	if cfg.DefaultMaxLevel > 0 {
		d.MaxLevel = cfg.DefaultMaxLevel
	}
	if cfg.DefaultMaxRepeat > 0 {
		d.MaxRepeat = cfg.DefaultMaxRepeat
	}
	return d
}

// Content is a resolved Document, ready to Apply.
type Content struct {
	Items       []*quest.ItemTemplate
	NPCs        []*world.NPC
	Areas       []world.AreaDef
	Descriptors []*quest.Descriptor
	Givers      map[quest.QuestID][]*world.NPC
	Parts       []*quest.Part

	spawn map[int64]bool
}

// Loader resolves content against a world. NPCs that already exist in the
// world are reused, so a reload keeps their identity.
type Loader struct {
	world    *world.World
	defaults Defaults
	logger   *zap.Logger
}

func NewLoader(w *world.World, defaults Defaults, logger *zap.Logger) *Loader {
	return &Loader{world: w, defaults: defaults, logger: logger}
}

// Load reads path and resolves it.
func (l *Loader) Load(path string) (*Content, error) {
	doc, err := ReadPath(path)
	if err != nil {
		return nil, err
	}
	return l.Resolve(doc)
}

type resolver struct {
	l         *Loader
	items     map[string]*quest.ItemTemplate
	npcs      map[int64]*world.NPC
	locations map[string]quest.Location
	areas     map[int]quest.Area
	err       error
	failures  int
}

func (r *resolver) fail(err error) {
	r.err = multierr.Append(r.err, err)
	r.failures++
}

// Resolve turns doc into typed content. It reports every problem it finds,
// not only the first.
func (l *Loader) Resolve(doc *Document) (*Content, error) {
	r := &resolver{
		l:         l,
		items:     make(map[string]*quest.ItemTemplate),
		npcs:      make(map[int64]*world.NPC),
		locations: make(map[string]quest.Location),
		areas:     make(map[int]quest.Area),
	}
	c := &Content{
		Givers: make(map[quest.QuestID][]*world.NPC),
		spawn:  make(map[int64]bool),
	}

	for _, it := range doc.Items {
		if it.ID == "" {
			r.fail(fmt.Errorf("item without id: %w", quest.ErrInvalidDefinition))
			continue
		}
		if _, dup := r.items[it.ID]; dup {
			r.fail(fmt.Errorf("item %q declared twice: %w", it.ID, quest.ErrInvalidDefinition))
			continue
		}
		t, ok := l.world.Catalog().Get(it.ID)
		if !ok {
			t = &quest.ItemTemplate{ID: it.ID, Name: it.Name, Weight: it.Weight}
		}
		r.items[it.ID] = t
		c.Items = append(c.Items, t)
	}

	for _, nd := range doc.NPCs {
		if _, dup := r.npcs[nd.ID]; dup {
			r.fail(fmt.Errorf("npc %d declared twice: %w", nd.ID, quest.ErrInvalidDefinition))
			continue
		}
		n, ok := l.world.NPC(nd.ID)
		if !ok {
			var err error
			n, err = l.world.AddNPC(world.NPCDef{
				ID:         nd.ID,
				Name:       nd.Name,
				Level:      nd.Level,
				Guild:      nd.Guild,
				Spawn:      nd.Spawn,
				Aggressive: nd.Aggressive,
				Speed:      nd.Speed,
			})
			if err != nil {
				r.fail(err)
				continue
			}
		}
		r.npcs[nd.ID] = n
		c.NPCs = append(c.NPCs, n)
		c.spawn[nd.ID] = nd.Spawned == nil || *nd.Spawned
	}

	for _, loc := range doc.Locations {
		if loc.Name == "" {
			r.fail(fmt.Errorf("location without name: %w", quest.ErrInvalidDefinition))
			continue
		}
		r.locations[loc.Name] = loc
	}

	for _, ad := range doc.Areas {
		if ad.ID == 0 || ad.Radius <= 0 {
			r.fail(fmt.Errorf("area %q needs an id and a positive radius: %w", ad.Name, quest.ErrInvalidDefinition))
			continue
		}
		if _, dup := r.areas[ad.ID]; dup {
			r.fail(fmt.Errorf("area %d declared twice: %w", ad.ID, quest.ErrInvalidDefinition))
			continue
		}
		a := quest.Area{ID: ad.ID, Name: ad.Name}
		r.areas[ad.ID] = a
		c.Areas = append(c.Areas, world.AreaDef{Area: a, Center: ad.Center, Radius: ad.Radius})
	}

	seen := make(map[quest.QuestID]bool)
	for _, qd := range doc.Quests {
		id := quest.QuestID(qd.ID)
		if seen[id] {
			r.fail(fmt.Errorf("quest %d declared twice: %w", qd.ID, quest.ErrInvalidDefinition))
			continue
		}
		seen[id] = true
		if d, ok := r.descriptor(qd); ok {
			c.Descriptors = append(c.Descriptors, d)
		}
		for _, npcID := range qd.Givers {
			if n, ok := r.npc(npcID, fmt.Sprintf("quest %d giver", qd.ID)); ok {
				c.Givers[id] = append(c.Givers[id], n)
			}
		}
		for i, pd := range qd.Parts {
			if p, ok := r.part(id, i, pd); ok {
				c.Parts = append(c.Parts, p)
			}
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func (r *resolver) descriptor(qd QuestDoc) (*quest.Descriptor, bool) {
	d := &quest.Descriptor{
		QuestID:     quest.QuestID(qd.ID),
		Name:        qd.Name,
		Description: qd.Description,
		MinLevel:    pick(qd.MinLevel, r.l.defaults.MinLevel),
		MaxLevel:    pick(qd.MaxLevel, r.l.defaults.MaxLevel),
		MaxRepeat:   pick(qd.MaxRepeat, r.l.defaults.MaxRepeat),
	}
	switch {
	case d.QuestID <= 0:
		r.fail(fmt.Errorf("quest %q: id must be positive: %w", qd.Name, quest.ErrInvalidDefinition))
		return nil, false
	case d.MinLevel > d.MaxLevel:
		r.fail(fmt.Errorf("quest %d: min level %d above max level %d: %w",
			qd.ID, d.MinLevel, d.MaxLevel, quest.ErrInvalidDefinition))
		return nil, false
	}
	return d, true
}

func pick(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (r *resolver) npc(id int64, what string) (*world.NPC, bool) {
	n, ok := r.npcs[id]
	if !ok {
		r.fail(fmt.Errorf("%s: npc %d: %w", what, id, ErrUnresolved))
	}
	return n, ok
}

// part builds one quest part. Resolution errors and the Builder's own
// validation errors are both collected.
func (r *resolver) part(id quest.QuestID, idx int, pd PartDoc) (*quest.Part, bool) {
	where := fmt.Sprintf("quest %d part %d", id, idx)
	var npc quest.NPC
	if pd.NPC != 0 {
		n, ok := r.npc(pd.NPC, where)
		if !ok {
			return nil, false
		}
		npc = n
	}

	before := r.failures
	b := quest.NewBuilder(id, npc)
	if pd.Text != nil {
		tt, err := quest.ParseTextType(pd.Text.Type)
		if err != nil {
			r.fail(fmt.Errorf("%s text: %w", where, err))
		} else {
			b.Text(tt, pd.Text.Message)
		}
	}
	for i, td := range pd.Triggers {
		kind, err := quest.ParseTriggerKind(td.Kind)
		if err != nil {
			r.fail(fmt.Errorf("%s trigger %d: %w", where, i, err))
			continue
		}
		v, err := r.value(td.Value)
		if err != nil {
			r.fail(fmt.Errorf("%s trigger %d: %w", where, i, err))
			continue
		}
		b.Trigger(kind, td.Keyword, v)
	}
	for i, rd := range pd.Requirements {
		kind, err := quest.ParseRequirementKind(rd.Kind)
		if err == nil {
			var cmp quest.Comparator
			var primary, secondary quest.Value
			cmp, err = quest.ParseComparator(rd.Compare)
			if err == nil {
				primary, secondary, err = r.values(rd.Primary, rd.Secondary)
			}
			if err == nil {
				b.Require(kind, primary, secondary, cmp)
			}
		}
		if err != nil {
			r.fail(fmt.Errorf("%s requirement %d: %w", where, i, err))
		}
	}
	for i, ad := range pd.Actions {
		a, err := r.action(ad)
		if err != nil {
			r.fail(fmt.Errorf("%s action %d: %w", where, i, err))
			continue
		}
		b.Then(a)
	}

	p, err := b.Build()
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", where, err))
		return nil, false
	}
	return p, r.failures == before
}

func (r *resolver) values(primary, secondary Value) (quest.Value, quest.Value, error) {
	p, err := r.value(primary)
	if err != nil {
		return quest.NoValue, quest.NoValue, err
	}
	s, err := r.value(secondary)
	if err != nil {
		return quest.NoValue, quest.NoValue, err
	}
	return p, s, nil
}

func (r *resolver) action(ad ActionDoc) (quest.Action, error) {
	kind, err := quest.ParseActionKind(ad.Kind)
	if err != nil {
		return nil, err
	}
	if kind == quest.ActSequence {
		seq := quest.SequenceAction{}
		for i, sd := range ad.Steps {
			a, err := r.action(sd.ActionDoc)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			seq.Steps = append(seq.Steps, quest.SequenceStep{Delay: sd.Delay, Action: a})
		}
		return seq, nil
	}
	if len(ad.Steps) > 0 {
		return nil, fmt.Errorf("%s does not take steps: %w", kind, quest.ErrInvalidDefinition)
	}
	primary, secondary, err := r.values(ad.Primary, ad.Secondary)
	if err != nil {
		return nil, err
	}
	return quest.BuildAction(kind, primary, secondary)
}

// value converts the YAML form into a quest.Value, resolving references.
func (r *resolver) value(v Value) (quest.Value, error) {
	if v.IsZero() {
		return quest.NoValue, nil
	}
	switch v.Kind {
	case "int":
		var n int64
		if err := v.decode(&n); err != nil {
			return quest.NoValue, err
		}
		return quest.Int(n), nil
	case "text":
		var s string
		if err := v.decode(&s); err != nil {
			return quest.NoValue, err
		}
		return quest.String(s), nil
	case "quest":
		var id int
		if err := v.decode(&id); err != nil {
			return quest.NoValue, err
		}
		return quest.QuestRef(quest.QuestID(id)), nil
	case "item":
		var id string
		if err := v.decode(&id); err != nil {
			return quest.NoValue, err
		}
		t, ok := r.items[id]
		if !ok {
			return quest.NoValue, fmt.Errorf("line %d: item %q: %w", v.line, id, ErrUnresolved)
		}
		return quest.ItemRef(t), nil
	case "npc", "living":
		var id int64
		if err := v.decode(&id); err != nil {
			return quest.NoValue, err
		}
		n, ok := r.npcs[id]
		if !ok {
			return quest.NoValue, fmt.Errorf("line %d: npc %d: %w", v.line, id, ErrUnresolved)
		}
		if v.Kind == "npc" {
			return quest.NPCRef(n), nil
		}
		return quest.LivingRef(n), nil
	case "location":
		// A scalar names a declared location; a mapping is an inline one.
		if v.node.Kind == yaml.MappingNode {
			var loc quest.Location
			if err := v.decode(&loc); err != nil {
				return quest.NoValue, err
			}
			return quest.LocationRef(loc), nil
		}
		var name string
		if err := v.decode(&name); err != nil {
			return quest.NoValue, err
		}
		loc, ok := r.locations[name]
		if !ok {
			return quest.NoValue, fmt.Errorf("line %d: location %q: %w", v.line, name, ErrUnresolved)
		}
		return quest.LocationRef(loc), nil
	case "area":
		var id int
		if err := v.decode(&id); err != nil {
			return quest.NoValue, err
		}
		a, ok := r.areas[id]
		if !ok {
			return quest.NoValue, fmt.Errorf("line %d: area %d: %w", v.line, id, ErrUnresolved)
		}
		return quest.AreaRef(a), nil
	}
	return quest.NoValue, fmt.Errorf("line %d: unknown value kind %q: %w", v.line, v.Kind, quest.ErrInvalidDefinition)
}

// Apply installs c: new items join the catalog, trigger areas are replaced,
// declared NPCs spawn, descriptors are re-registered and the rule set is
// swapped for c's parts.
func (c *Content) Apply(eng *quest.Engine, w *world.World, logger *zap.Logger) error {
	for _, t := range c.Items {
		if _, ok := w.Catalog().Get(t.ID); !ok {
			if err := w.Catalog().Add(t); err != nil {
				return err
			}
		}
	}

	w.ClearAreas()
	for _, a := range c.Areas {
		w.AddArea(a)
	}
	for _, n := range c.NPCs {
		if c.spawn[n.ObjectID()] {
			n.AddToWorld()
		}
	}

	mgr := eng.Manager()
	mgr.Reset()
	var err error
	byID := make(map[quest.QuestID]*quest.Descriptor, len(c.Descriptors))
	for _, d := range c.Descriptors {
		byID[d.QuestID] = d
		err = multierr.Append(err, mgr.RegisterDescriptor(d))
	}
	for id, npcs := range c.Givers {
		d, ok := byID[id]
		if !ok {
			continue
		}
		for _, n := range npcs {
			err = multierr.Append(err, mgr.AddQuestToGive(n, d))
		}
	}
	if err != nil {
		return err
	}

	eng.Rules().Replace(c.Parts)
	logger.Info("quest content applied",
		zap.Int("items", len(c.Items)),
		zap.Int("npcs", len(c.NPCs)),
		zap.Int("areas", len(c.Areas)),
		zap.Int("quests", len(c.Descriptors)),
		zap.Int("parts", len(c.Parts)),
		zap.Uint64("version", eng.Rules().Version()))
	return nil
}
