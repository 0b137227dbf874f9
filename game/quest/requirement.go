package quest

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RequirementKind names a requirement variant.
type RequirementKind uint8

const (
	RequireLevel RequirementKind = iota + 1
	RequireHealth
	RequireHealthMax
	RequireMana
	RequireManaMax
	RequireEndurance
	RequireEnduranceMax
	RequireEncumbrance
	RequireEncumbranceMax
	RequireGold
	RequireRealm
	RequireRealmLevel
	RequireRealmPoints
	RequireGender
	RequireGroupNumber
	RequireGroupLevel
	RequireDistance
	RequireInventoryItem
	RequireEquippedItem
	RequireClass
	RequireRace
	RequireGuild
	RequireRegion
	RequireRandom
	RequireQuest
	RequireQuestStep
	RequireQuestPending
	RequireQuestGivable
	RequireScript
)

// attributeKinds maps the scalar requirement kinds to the attribute they read.
var attributeKinds = map[RequirementKind]Attribute{
	RequireLevel:          AttrLevel,
	RequireHealth:         AttrHealth,
	RequireHealthMax:      AttrHealthMax,
	RequireMana:           AttrMana,
	RequireManaMax:        AttrManaMax,
	RequireEndurance:      AttrEndurance,
	RequireEnduranceMax:   AttrEnduranceMax,
	RequireEncumbrance:    AttrEncumbrance,
	RequireEncumbranceMax: AttrEncumbranceMax,
	RequireGold:           AttrGold,
	RequireRealm:          AttrRealm,
	RequireRealmLevel:     AttrRealmLevel,
	RequireRealmPoints:    AttrRealmPoints,
	RequireGender:         AttrGender,
	RequireGroupNumber:    AttrGroupNumber,
	RequireGroupLevel:     AttrGroupLevel,
}

var requirementNames = map[RequirementKind]string{
	RequireDistance:      "distance",
	RequireInventoryItem: "inventory_item",
	RequireEquippedItem:  "equipped_item",
	RequireClass:         "class",
	RequireRace:          "race",
	RequireGuild:         "guild",
	RequireRegion:        "region",
	RequireRandom:        "random",
	RequireQuest:         "quest",
	RequireQuestStep:     "quest_step",
	RequireQuestPending:  "quest_pending",
	RequireQuestGivable:  "quest_givable",
	RequireScript:        "script",
}

func (k RequirementKind) String() string {
	if a, ok := attributeKinds[k]; ok {
		return a.String()
	}
	if s, ok := requirementNames[k]; ok {
		return s
	}
	return fmt.Sprintf("requirement(%d)", uint8(k))
}

// ParseRequirementKind is the inverse of RequirementKind.String.
func ParseRequirementKind(s string) (RequirementKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, a := range attributeKinds {
		if a.String() == s {
			return k, nil
		}
	}
	for k, name := range requirementNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown requirement %q: %w", s, ErrInvalidDefinition)
}

// Requirement is a predicate over current player and world state.
type Requirement interface {
	Kind() RequirementKind
	Holds(c *Context) bool
	check(p *Part) error
}

// ScriptRunner evaluates a boolean expression against a player.
type ScriptRunner interface {
	EvalBool(expr string, p Player) (bool, error)
}

func requirementErr(k RequirementKind, format string, args ...any) error {
	return fmt.Errorf("requirement %s: %s: %w", k, fmt.Sprintf(format, args...), ErrInvalidDefinition)
}

func scalarCmp(k RequirementKind, cmp Comparator) error {
	if !cmp.scalar() {
		return requirementErr(k, "comparator %s is not a scalar comparison", cmp)
	}
	return nil
}

// negation accepts None/Equal as "holds" and NotEqual/Not as "does not hold".
func negation(k RequirementKind, cmp Comparator) (bool, error) {
	switch cmp {
	case CompareNone, CompareEqual:
		return false, nil
	case CompareNotEqual, CompareNot:
		return true, nil
	}
	return false, requirementErr(k, "comparator %s is not allowed", cmp)
}

// attributeOf reads a scalar attribute. The group attributes are derived.
func attributeOf(p Player, a Attribute) int64 {
	switch a {
	case AttrLevel:
		return int64(p.Level())
	case AttrGroupNumber:
		return int64(len(p.Group()))
	case AttrGroupLevel:
		members := p.Group()
		if len(members) == 0 {
			return int64(p.Level())
		}
		var sum int64
		for _, m := range members {
			sum += int64(m.Level())
		}
		return sum
	}
	return p.Attribute(a)
}

// AttributeRequirement compares a player attribute with Value.
type AttributeRequirement struct {
	Attr  Attribute
	Value int64
	Cmp   Comparator
}

func (r AttributeRequirement) Kind() RequirementKind {
	for k, a := range attributeKinds {
		if a == r.Attr {
			return k
		}
	}
	return 0
}

func (r AttributeRequirement) check(*Part) error {
	if r.Kind() == 0 {
		return fmt.Errorf("requirement on attribute %s: %w", r.Attr, ErrInvalidDefinition)
	}
	return scalarCmp(r.Kind(), r.Cmp)
}

func (r AttributeRequirement) Holds(c *Context) bool {
	if r.Cmp == CompareNone {
		return true
	}
	return r.Cmp.Compare(attributeOf(c.Player, r.Attr), r.Value)
}

// DistanceRequirement compares the player's distance to Target with Distance.
// Target defaults to the part NPC. Objects in different regions never hold.
type DistanceRequirement struct {
	Target   Object
	Distance int64
	Cmp      Comparator
}

func (DistanceRequirement) Kind() RequirementKind { return RequireDistance }

func (r DistanceRequirement) check(p *Part) error {
	if r.Target == nil && p.npc == nil {
		return requirementErr(RequireDistance, "no target given and the part has no npc")
	}
	return scalarCmp(RequireDistance, r.Cmp)
}

func (r DistanceRequirement) Holds(c *Context) bool {
	if r.Cmp == CompareNone {
		return true
	}
	target := r.Target
	if target == nil {
		target = c.Part.npc
	}
	d := c.eng.world.Distance(c.Player, target)
	if d < 0 {
		return false
	}
	return r.Cmp.Compare(int64(d), r.Distance)
}

// InventoryRequirement holds when the backpack contains at least Count
// instances of Item, or the opposite when Not is set.
type InventoryRequirement struct {
	Item  *ItemTemplate
	Count int
	Not   bool
}

func (InventoryRequirement) Kind() RequirementKind { return RequireInventoryItem }

func (r InventoryRequirement) check(*Part) error {
	if r.Item == nil {
		return requirementErr(RequireInventoryItem, "item is required")
	}
	if r.Count < 1 {
		return requirementErr(RequireInventoryItem, "count must be positive, got %d", r.Count)
	}
	return nil
}

func (r InventoryRequirement) Holds(c *Context) bool {
	return (c.Player.Inventory().Count(r.Item.ID) >= r.Count) != r.Not
}

type EquippedRequirement struct {
	Item *ItemTemplate
	Not  bool
}

func (EquippedRequirement) Kind() RequirementKind { return RequireEquippedItem }

func (r EquippedRequirement) check(*Part) error {
	if r.Item == nil {
		return requirementErr(RequireEquippedItem, "item is required")
	}
	return nil
}

func (r EquippedRequirement) Holds(c *Context) bool {
	return c.Player.Inventory().IsEquipped(r.Item.ID) != r.Not
}

type ClassRequirement struct {
	ClassID int
	Not     bool
}

func (ClassRequirement) Kind() RequirementKind   { return RequireClass }
func (ClassRequirement) check(*Part) error       { return nil }
func (r ClassRequirement) Holds(c *Context) bool { return (c.Player.ClassID() == r.ClassID) != r.Not }

type RaceRequirement struct {
	Race int
	Not  bool
}

func (RaceRequirement) Kind() RequirementKind   { return RequireRace }
func (RaceRequirement) check(*Part) error       { return nil }
func (r RaceRequirement) Holds(c *Context) bool { return (c.Player.Race() == r.Race) != r.Not }

// GuildRequirement holds when Living (default the part NPC) belongs to Guild.
type GuildRequirement struct {
	Living Living
	Guild  string
	Not    bool
}

func (GuildRequirement) Kind() RequirementKind { return RequireGuild }

func (r GuildRequirement) check(p *Part) error {
	if r.Living == nil && p.npc == nil {
		return requirementErr(RequireGuild, "no living given and the part has no npc")
	}
	return nil
}

func (r GuildRequirement) Holds(c *Context) bool {
	return (c.living(r.Living).GuildName() == r.Guild) != r.Not
}

// RegionRequirement holds when the player is in Region and, if Zone is
// non-zero, in Zone.
type RegionRequirement struct {
	Region int
	Zone   int
}

func (RegionRequirement) Kind() RequirementKind { return RequireRegion }
func (RegionRequirement) check(*Part) error     { return nil }

func (r RegionRequirement) Holds(c *Context) bool {
	if c.Player.Position().Region != r.Region {
		return false
	}
	return r.Zone == 0 || c.Player.Zone() == r.Zone
}

// RandomRequirement holds with Percent percent probability.
type RandomRequirement struct {
	Percent int
}

func (RandomRequirement) Kind() RequirementKind { return RequireRandom }

func (r RandomRequirement) check(*Part) error {
	if r.Percent < 0 || r.Percent > 100 {
		return requirementErr(RequireRandom, "percent must be within [0,100], got %d", r.Percent)
	}
	return nil
}

func (r RandomRequirement) Holds(c *Context) bool { return c.eng.rand(100) < r.Percent }

// QuestCountRequirement holds while the player has finished Quest fewer than
// Max times.
type QuestCountRequirement struct {
	Quest QuestID
	Max   int
}

func (QuestCountRequirement) Kind() RequirementKind { return RequireQuest }

func (r QuestCountRequirement) check(*Part) error {
	if r.Max < 1 {
		return requirementErr(RequireQuest, "max must be positive, got %d", r.Max)
	}
	return nil
}

func (r QuestCountRequirement) Holds(c *Context) bool {
	return c.Player.Journal().FinishedCount(c.quest(r.Quest)) < r.Max
}

// QuestStepRequirement compares the step of an active quest. It never holds
// while the quest is not active.
type QuestStepRequirement struct {
	Quest QuestID
	Step  int
	Cmp   Comparator
}

func (QuestStepRequirement) Kind() RequirementKind { return RequireQuestStep }
func (r QuestStepRequirement) check(*Part) error   { return scalarCmp(RequireQuestStep, r.Cmp) }

func (r QuestStepRequirement) Holds(c *Context) bool {
	step := c.Player.Journal().Step(c.quest(r.Quest))
	if step == 0 {
		return false
	}
	return r.Cmp.Compare(int64(step), int64(r.Step))
}

// QuestPendingRequirement holds while the quest is active, or while it is
// not when Negate is set.
type QuestPendingRequirement struct {
	Quest  QuestID
	Negate bool
}

func (QuestPendingRequirement) Kind() RequirementKind { return RequireQuestPending }
func (QuestPendingRequirement) check(*Part) error     { return nil }

func (r QuestPendingRequirement) Holds(c *Context) bool {
	return c.Player.Journal().Active(c.quest(r.Quest)) != r.Negate
}

// QuestGivableRequirement holds when the quest may be given to the player by
// NPC, defaulting to the part's NPC. Without either only the global registry
// is consulted.
type QuestGivableRequirement struct {
	Quest  QuestID
	NPC    NPC
	Negate bool
}

func (QuestGivableRequirement) Kind() RequirementKind { return RequireQuestGivable }
func (QuestGivableRequirement) check(*Part) error     { return nil }

func (r QuestGivableRequirement) Holds(c *Context) bool {
	return (c.eng.mgr.CanGive(c.quest(r.Quest), c.Player, c.npc(r.NPC)) > 0) != r.Negate
}

// ScriptRequirement evaluates a script expression with the player bound as
// $player. Evaluation errors count as false.
type ScriptRequirement struct {
	Expr string
}

func (ScriptRequirement) Kind() RequirementKind { return RequireScript }

func (r ScriptRequirement) check(*Part) error {
	if strings.TrimSpace(r.Expr) == "" {
		return requirementErr(RequireScript, "expression is required")
	}
	return nil
}

func (r ScriptRequirement) Holds(c *Context) bool {
	if c.eng.script == nil {
		c.eng.log.Warn("script requirement without a script runner", zap.Int("quest_id", int(c.Part.questID)))
		return false
	}
	ok, err := c.eng.script.EvalBool(r.Expr, c.Player)
	if err != nil {
		c.eng.log.Warn("script requirement failed",
			zap.Int("quest_id", int(c.Part.questID)),
			zap.String("expr", r.Expr),
			zap.Error(err))
		return false
	}
	return ok
}

// BuildRequirement converts an authoring-time (kind, primary, secondary,
// comparator) tuple into a typed Requirement.
func BuildRequirement(kind RequirementKind, primary, secondary Value, cmp Comparator) (Requirement, error) {
	if attr, ok := attributeKinds[kind]; ok {
		v, err := primary.asInt(kind.String()+" value", cmp == CompareNone)
		if err != nil {
			return nil, err
		}
		if !secondary.IsNone() {
			return nil, mismatch(kind.String()+" secondary", secondary, ValueNone)
		}
		if err := scalarCmp(kind, cmp); err != nil {
			return nil, err
		}
		return AttributeRequirement{Attr: attr, Value: v, Cmp: cmp}, nil
	}

	switch kind {
	case RequireDistance:
		target, err := primary.asLiving("distance target")
		if err != nil {
			return nil, err
		}
		d, err := secondary.asInt("distance", false)
		if err != nil {
			return nil, err
		}
		if err := scalarCmp(kind, cmp); err != nil {
			return nil, err
		}
		r := DistanceRequirement{Distance: d, Cmp: cmp}
		if target != nil {
			r.Target = target
		}
		return r, nil

	case RequireInventoryItem, RequireEquippedItem:
		item, err := primary.asItem(kind.String() + " item")
		if err != nil {
			return nil, err
		}
		not, err := negation(kind, cmp)
		if err != nil {
			return nil, err
		}
		if kind == RequireEquippedItem {
			return EquippedRequirement{Item: item, Not: not}, nil
		}
		count, err := secondary.asInt("inventory_item count", true)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			count = 1
		}
		r := InventoryRequirement{Item: item, Count: int(count), Not: not}
		return r, r.check(nil)

	case RequireClass, RequireRace:
		id, err := primary.asInt(kind.String()+" id", false)
		if err != nil {
			return nil, err
		}
		not, err := negation(kind, cmp)
		if err != nil {
			return nil, err
		}
		if kind == RequireClass {
			return ClassRequirement{ClassID: int(id), Not: not}, nil
		}
		return RaceRequirement{Race: int(id), Not: not}, nil

	case RequireGuild:
		l, err := primary.asLiving("guild living")
		if err != nil {
			return nil, err
		}
		name, err := secondary.asString("guild name", true)
		if err != nil {
			return nil, err
		}
		not, err := negation(kind, cmp)
		if err != nil {
			return nil, err
		}
		return GuildRequirement{Living: l, Guild: name, Not: not}, nil

	case RequireRegion:
		region, err := primary.asInt("region", false)
		if err != nil {
			return nil, err
		}
		zone, err := secondary.asInt("zone", true)
		if err != nil {
			return nil, err
		}
		return RegionRequirement{Region: int(region), Zone: int(zone)}, nil

	case RequireRandom:
		pct, err := primary.asInt("random percent", false)
		if err != nil {
			return nil, err
		}
		r := RandomRequirement{Percent: int(pct)}
		return r, r.check(nil)

	case RequireQuest:
		q, err := primary.asQuest("quest")
		if err != nil {
			return nil, err
		}
		max, err := secondary.asInt("quest max count", true)
		if err != nil {
			return nil, err
		}
		if max == 0 {
			max = 1
		}
		r := QuestCountRequirement{Quest: q, Max: int(max)}
		return r, r.check(nil)

	case RequireQuestStep:
		q, err := primary.asQuest("quest_step quest")
		if err != nil {
			return nil, err
		}
		step, err := secondary.asInt("quest_step step", cmp == CompareNone)
		if err != nil {
			return nil, err
		}
		if err := scalarCmp(kind, cmp); err != nil {
			return nil, err
		}
		return QuestStepRequirement{Quest: q, Step: int(step), Cmp: cmp}, nil

	case RequireQuestPending, RequireQuestGivable:
		q, err := primary.asQuest(kind.String() + " quest")
		if err != nil {
			return nil, err
		}
		var negate bool
		switch cmp {
		case CompareNone:
		case CompareNot:
			negate = true
		default:
			return nil, requirementErr(kind, "only the not comparator is allowed, got %s", cmp)
		}
		if kind == RequireQuestPending {
			if !secondary.IsNone() {
				return nil, mismatch("quest_pending secondary", secondary, ValueNone)
			}
			return QuestPendingRequirement{Quest: q, Negate: negate}, nil
		}
		npc, err := secondary.asNPC("quest_givable npc")
		if err != nil {
			return nil, err
		}
		return QuestGivableRequirement{Quest: q, NPC: npc, Negate: negate}, nil

	case RequireScript:
		expr, err := primary.asString("script expression", false)
		if err != nil {
			return nil, err
		}
		r := ScriptRequirement{Expr: expr}
		return r, r.check(nil)
	}
	return nil, requirementErr(kind, "unknown requirement kind")
}
