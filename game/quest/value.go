package quest

import "fmt"

// ValueKind tags the payload of a Value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueString
	ValueItem
	ValueNPC
	ValueQuest
	ValueLocation
	ValueLiving
	ValueArea
)

var valueKindNames = [...]string{"none", "int", "string", "item", "npc", "quest", "location", "living", "area"}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("value(%d)", uint8(k))
}

// Value is the untyped authoring-time parameter of a trigger, requirement or
// action. Build* functions convert (kind, Value...) into typed definitions and
// reject payloads that do not fit the kind.
type Value struct {
	kind   ValueKind
	i      int64
	s      string
	item   *ItemTemplate
	npc    NPC
	living Living
	quest  QuestID
	loc    Location
	area   Area
}

// NoValue is the empty Value.
var NoValue = Value{}

func Int(n int64) Value             { return Value{kind: ValueInt, i: n} }
func String(s string) Value         { return Value{kind: ValueString, s: s} }
func ItemRef(t *ItemTemplate) Value { return Value{kind: ValueItem, item: t} }
func NPCRef(n NPC) Value            { return Value{kind: ValueNPC, npc: n, living: n} }
func QuestRef(id QuestID) Value     { return Value{kind: ValueQuest, quest: id} }
func LocationRef(l Location) Value  { return Value{kind: ValueLocation, loc: l} }
func LivingRef(l Living) Value      { return Value{kind: ValueLiving, living: l} }
func AreaRef(a Area) Value          { return Value{kind: ValueArea, area: a} }
func (v Value) Kind() ValueKind     { return v.kind }
func (v Value) IsNone() bool        { return v.kind == ValueNone }

func (v Value) String() string {
	switch v.kind {
	case ValueInt:
		return fmt.Sprintf("int(%d)", v.i)
	case ValueString:
		return fmt.Sprintf("string(%q)", v.s)
	case ValueItem:
		if v.item != nil {
			return "item(" + v.item.ID + ")"
		}
	case ValueNPC, ValueLiving:
		if v.living != nil {
			return v.kind.String() + "(" + v.living.Name() + ")"
		}
	case ValueQuest:
		return fmt.Sprintf("quest(%d)", v.quest)
	case ValueLocation:
		return "location(" + v.loc.Name + ")"
	case ValueArea:
		return "area(" + v.area.Name + ")"
	}
	return v.kind.String()
}

func mismatch(what string, v Value, want ...ValueKind) error {
	return fmt.Errorf("%s must be %v, got %s: %w", what, want, v, ErrInvalidDefinition)
}

// The as* helpers accept ValueNone when optional is true, returning the zero
// payload so the part default applies at evaluation time.

func (v Value) asInt(what string, optional bool) (int64, error) {
	switch {
	case v.kind == ValueInt:
		return v.i, nil
	case v.kind == ValueNone && optional:
		return 0, nil
	}
	return 0, mismatch(what, v, ValueInt)
}

func (v Value) asString(what string, optional bool) (string, error) {
	switch {
	case v.kind == ValueString:
		return v.s, nil
	case v.kind == ValueNone && optional:
		return "", nil
	}
	return "", mismatch(what, v, ValueString)
}

func (v Value) asItem(what string) (*ItemTemplate, error) {
	if v.kind == ValueItem && v.item != nil {
		return v.item, nil
	}
	return nil, mismatch(what, v, ValueItem)
}

func (v Value) asNPC(what string) (NPC, error) {
	switch v.kind {
	case ValueNPC:
		return v.npc, nil
	case ValueNone:
		return nil, nil
	}
	return nil, mismatch(what, v, ValueNPC)
}

func (v Value) asLiving(what string) (Living, error) {
	switch v.kind {
	case ValueNPC, ValueLiving:
		return v.living, nil
	case ValueNone:
		return nil, nil
	}
	return nil, mismatch(what, v, ValueLiving, ValueNPC)
}

func (v Value) asQuest(what string) (QuestID, error) {
	switch v.kind {
	case ValueQuest:
		return v.quest, nil
	case ValueNone:
		return 0, nil
	}
	return 0, mismatch(what, v, ValueQuest)
}

func (v Value) asLocation(what string, optional bool) (*Location, error) {
	switch {
	case v.kind == ValueLocation:
		l := v.loc
		return &l, nil
	case v.kind == ValueNone && optional:
		return nil, nil
	}
	return nil, mismatch(what, v, ValueLocation)
}

func (v Value) asArea(what string) (Area, error) {
	if v.kind == ValueArea {
		return v.area, nil
	}
	return Area{}, mismatch(what, v, ValueArea)
}
