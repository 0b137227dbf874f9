package quest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptFunc func(expr string, p Player) (bool, error)

func (f scriptFunc) EvalBool(expr string, p Player) (bool, error) { return f(expr, p) }

// holds evaluates r for p against a throwaway part owned by npc.
func (h *harness) holds(r Requirement, p Player, npc NPC) bool {
	part := NewPart(1, npc)
	return r.Holds(&Context{Event: InteractEvent{Player: p, NPC: npc}, Player: p, Part: part, eng: h.eng})
}

func TestBuildRequirement_Validation(t *testing.T) {
	item := &ItemTemplate{ID: "key", Name: "iron key"}
	npc := newNPC(1, "Guard")

	cases := []struct {
		name      string
		kind      RequirementKind
		primary   Value
		secondary Value
		cmp       Comparator
		ok        bool
	}{
		{"level", RequireLevel, Int(5), NoValue, CompareGreater, true},
		{"level without comparator ignores value", RequireLevel, NoValue, NoValue, CompareNone, true},
		{"level needs value with comparator", RequireLevel, NoValue, NoValue, CompareLess, false},
		{"level rejects not", RequireLevel, Int(5), NoValue, CompareNot, false},
		{"level rejects secondary", RequireLevel, Int(5), Int(1), CompareEqual, false},
		{"distance", RequireDistance, NPCRef(npc), Int(100), CompareLess, true},
		{"distance needs int", RequireDistance, NPCRef(npc), String("far"), CompareLess, false},
		{"inventory", RequireInventoryItem, ItemRef(item), NoValue, CompareNone, true},
		{"inventory not", RequireInventoryItem, ItemRef(item), Int(2), CompareNot, true},
		{"inventory rejects less", RequireInventoryItem, ItemRef(item), NoValue, CompareLess, false},
		{"inventory negative count", RequireInventoryItem, ItemRef(item), Int(-1), CompareNone, false},
		{"equipped needs item", RequireEquippedItem, NoValue, NoValue, CompareNone, false},
		{"class", RequireClass, Int(3), NoValue, CompareNotEqual, true},
		{"guild", RequireGuild, NPCRef(npc), String("Smiths"), CompareEqual, true},
		{"region with zone", RequireRegion, Int(1), Int(4), CompareNone, true},
		{"random out of range", RequireRandom, Int(101), NoValue, CompareNone, false},
		{"quest count", RequireQuest, QuestRef(2), Int(3), CompareNone, true},
		{"quest count negative", RequireQuest, QuestRef(2), Int(-1), CompareNone, false},
		{"quest step", RequireQuestStep, NoValue, Int(2), CompareEqual, true},
		{"quest step rejects not", RequireQuestStep, NoValue, Int(2), CompareNot, false},
		{"quest pending", RequireQuestPending, NoValue, NoValue, CompareNot, true},
		{"quest pending rejects equal", RequireQuestPending, NoValue, NoValue, CompareEqual, false},
		{"quest givable with npc", RequireQuestGivable, QuestRef(2), NPCRef(npc), CompareNone, true},
		{"quest givable rejects int", RequireQuestGivable, NoValue, Int(1), CompareNone, false},
		{"script", RequireScript, String("$player.level > 3"), NoValue, CompareNone, true},
		{"script needs expression", RequireScript, String("  "), NoValue, CompareNone, false},
		{"unknown", RequirementKind(200), NoValue, NoValue, CompareNone, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := BuildRequirement(tc.kind, tc.primary, tc.secondary, tc.cmp)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidDefinition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, r.Kind())
		})
	}
}

func TestRequirements_AndSemantics(t *testing.T) {
	h := newHarness(t)
	n := h.npc(1, "Guard")
	key := &ItemTemplate{ID: "key", Name: "iron key"}

	h.register(NewBuilder(1, n).
		Trigger(TriggerInteract, "", NoValue).
		Require(RequireLevel, Int(4), NoValue, CompareGreater).
		Require(RequireInventoryItem, ItemRef(key), NoValue, CompareNone).
		Do(ActGiveXP, Int(1), NoValue))

	both := h.player(100, "alice", 5)
	both.inv.items["key"] = 1
	lowLevel := h.player(101, "bob", 4)
	lowLevel.inv.items["key"] = 1
	noItem := h.player(102, "carol", 5)

	for _, p := range []*fakePlayer{both, lowLevel, noItem} {
		h.dispatch(InteractEvent{Player: p, NPC: n})
	}
	assert.Equal(t, int64(1), both.xp)
	assert.Zero(t, lowLevel.xp)
	assert.Zero(t, noItem.xp)
}

func TestRequirements_NoRequirementsAlwaysHold(t *testing.T) {
	h := newHarness(t)
	n := h.npc(1, "Guard")
	p := h.player(100, "alice", 1)

	h.register(NewBuilder(1, n).
		Trigger(TriggerInteract, "", NoValue).
		Do(ActGiveXP, Int(1), NoValue))
	h.dispatch(InteractEvent{Player: p, NPC: n})
	assert.Equal(t, int64(1), p.xp)
}

func TestAttributeRequirement_Group(t *testing.T) {
	h := newHarness(t)
	leader := h.player(100, "alice", 10)
	member := h.player(101, "bob", 6)
	solo := h.player(102, "carol", 8)
	leader.group = []Player{leader, member}

	groupLevel := AttributeRequirement{Attr: AttrGroupLevel, Value: 15, Cmp: CompareGreater}
	assert.True(t, h.holds(groupLevel, leader, nil))
	assert.False(t, h.holds(groupLevel, solo, nil), "solo group level is the own level")

	groupSize := AttributeRequirement{Attr: AttrGroupNumber, Value: 2, Cmp: CompareEqual}
	assert.True(t, h.holds(groupSize, leader, nil))
	assert.False(t, h.holds(groupSize, solo, nil))

	gold := AttributeRequirement{Attr: AttrGold, Value: 50, Cmp: CompareLess}
	solo.attrs[AttrGold] = 49
	assert.True(t, h.holds(gold, solo, nil))
	solo.attrs[AttrGold] = 50
	assert.False(t, h.holds(gold, solo, nil))
}

func TestDistanceRequirement(t *testing.T) {
	h := newHarness(t)
	n := h.npc(1, "Guard")
	p := h.player(100, "alice", 5)
	p.pos = Position{Region: 1, X: 300, Y: 400}

	near := DistanceRequirement{Distance: 600, Cmp: CompareLess}
	assert.True(t, h.holds(near, p, n), "500 < 600")
	assert.False(t, h.holds(DistanceRequirement{Distance: 500, Cmp: CompareLess}, p, n))

	p.pos.Region = 2
	assert.False(t, h.holds(near, p, n), "other region never holds")
	assert.False(t, h.holds(DistanceRequirement{Distance: 0, Cmp: CompareGreater}, p, n))
}

func TestPossessionRequirements(t *testing.T) {
	h := newHarness(t)
	p := h.player(100, "alice", 5)
	p.inv.items["coin"] = 2
	p.inv.equipped["helm"] = true
	coin := &ItemTemplate{ID: "coin"}
	helm := &ItemTemplate{ID: "helm"}

	assert.True(t, h.holds(InventoryRequirement{Item: coin, Count: 2}, p, nil))
	assert.False(t, h.holds(InventoryRequirement{Item: coin, Count: 3}, p, nil))
	assert.True(t, h.holds(InventoryRequirement{Item: coin, Count: 3, Not: true}, p, nil))
	assert.True(t, h.holds(EquippedRequirement{Item: helm}, p, nil))
	assert.False(t, h.holds(EquippedRequirement{Item: helm, Not: true}, p, nil))
	assert.False(t, h.holds(EquippedRequirement{Item: coin}, p, nil))
}

func TestIdentityRequirements(t *testing.T) {
	h := newHarness(t)
	n := h.npc(1, "Guard")
	n.guild = "Watch"
	p := h.player(100, "alice", 5)
	p.class, p.race, p.zone = 3, 2, 7

	assert.True(t, h.holds(ClassRequirement{ClassID: 3}, p, n))
	assert.True(t, h.holds(ClassRequirement{ClassID: 4, Not: true}, p, n))
	assert.False(t, h.holds(RaceRequirement{Race: 1}, p, n))
	assert.True(t, h.holds(GuildRequirement{Guild: "Watch"}, p, n), "living defaults to the part npc")
	assert.False(t, h.holds(GuildRequirement{Guild: "Watch", Not: true}, p, n))
	assert.True(t, h.holds(RegionRequirement{Region: 1}, p, n), "zone 0 matches any zone")
	assert.True(t, h.holds(RegionRequirement{Region: 1, Zone: 7}, p, n))
	assert.False(t, h.holds(RegionRequirement{Region: 1, Zone: 8}, p, n))
	assert.False(t, h.holds(RegionRequirement{Region: 2}, p, n))
}

func TestRandomRequirement(t *testing.T) {
	h := newHarness(t)
	p := h.player(100, "alice", 5)

	h.roll = 29
	assert.True(t, h.holds(RandomRequirement{Percent: 30}, p, nil))
	h.roll = 30
	assert.False(t, h.holds(RandomRequirement{Percent: 30}, p, nil))
	assert.False(t, h.holds(RandomRequirement{Percent: 0}, p, nil))
	h.roll = 99
	assert.True(t, h.holds(RandomRequirement{Percent: 100}, p, nil))
}

func TestQuestStateRequirements(t *testing.T) {
	h := newHarness(t)
	p := h.player(100, "alice", 5)
	p.journal.Load([]Quest{{ID: 1, Step: 3}}, map[QuestID]int{2: 2})

	step := QuestStepRequirement{Step: 2, Cmp: CompareGreater}
	assert.True(t, h.holds(step, p, nil), "part quest 1 is at step 3")
	assert.False(t, h.holds(QuestStepRequirement{Quest: 2, Step: 0, Cmp: CompareGreater}, p, nil),
		"an inactive quest never satisfies a step requirement")

	assert.True(t, h.holds(QuestPendingRequirement{}, p, nil))
	assert.False(t, h.holds(QuestPendingRequirement{Negate: true}, p, nil))
	assert.True(t, h.holds(QuestPendingRequirement{Quest: 2, Negate: true}, p, nil))

	assert.False(t, h.holds(QuestCountRequirement{Quest: 2, Max: 2}, p, nil))
	assert.True(t, h.holds(QuestCountRequirement{Quest: 2, Max: 3}, p, nil))
	assert.True(t, h.holds(QuestCountRequirement{Quest: 9, Max: 1}, p, nil))
}

func TestQuestGivableRequirement(t *testing.T) {
	h := newHarness(t)
	n := h.npc(1, "Guard")
	h.descriptor(1, "Rats", 5, 10, 1)
	young := h.player(100, "alice", 3)
	ready := h.player(101, "bob", 6)

	r := QuestGivableRequirement{}
	assert.False(t, h.holds(r, young, n))
	assert.True(t, h.holds(r, ready, n))
	assert.True(t, h.holds(QuestGivableRequirement{Negate: true}, young, n))
	assert.False(t, h.holds(QuestGivableRequirement{Quest: 77}, ready, n), "unknown quest is never givable")
}

func TestQuestGivableRequirement_DefaultsToPartNPC(t *testing.T) {
	h := newHarness(t)
	elder := h.npc(1, "Elder")
	stranger := h.npc(2, "Stranger")
	d := NewDescriptor(5, "Errand")
	require.NoError(t, h.eng.Manager().AddQuestToGive(elder, d))
	p := h.player(100, "alice", 20)

	require.Equal(t, 1, h.eng.Manager().CanGive(5, p, elder))
	r := QuestGivableRequirement{Quest: 5}
	assert.True(t, h.holds(r, p, elder), "the elder's part offers the elder's quest")
	assert.False(t, h.holds(r, p, stranger), "another NPC has no descriptor for it")
	assert.False(t, h.holds(r, p, nil), "no NPC and no global descriptor")
	assert.True(t, h.holds(QuestGivableRequirement{Quest: 5, NPC: elder}, p, stranger), "an explicit NPC wins")
}

func TestScriptRequirement(t *testing.T) {
	p := newPlayer(100, "alice", 5)
	r := ScriptRequirement{Expr: "$player.level > 3"}

	h := newHarness(t)
	assert.False(t, h.holds(r, p, nil), "no runner means false")

	var got string
	h = newHarness(t, func(d *Deps) {
		d.Script = scriptFunc(func(expr string, p Player) (bool, error) {
			got = expr
			return p.Level() > 3, nil
		})
	})
	assert.True(t, h.holds(r, p, nil))
	assert.Equal(t, "$player.level > 3", got)

	h = newHarness(t, func(d *Deps) {
		d.Script = scriptFunc(func(string, Player) (bool, error) { return true, errors.New("boom") })
	})
	assert.False(t, h.holds(r, p, nil), "errors count as false")
}

func TestParseRequirementKind(t *testing.T) {
	k, err := ParseRequirementKind("quest_givable")
	require.NoError(t, err)
	assert.Equal(t, RequireQuestGivable, k)

	k, err = ParseRequirementKind(RequireGroupLevel.String())
	require.NoError(t, err)
	assert.Equal(t, RequireGroupLevel, k)

	_, err = ParseRequirementKind("charisma")
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
