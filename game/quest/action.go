package quest

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind names an action variant.
type ActionKind uint8

const (
	ActIncQuestStep ActionKind = iota + 1
	ActSetQuestStep
	ActFinishQuest
	ActAbortQuest
	ActGiveQuest
	ActOfferQuest
	ActOfferQuestAbort
	ActGiveItem
	ActTakeItem
	ActDropItem
	ActDestroyItem
	ActReplaceItem
	ActGiveXP
	ActGiveGold
	ActTakeGold
	ActTalk
	ActWhisper
	ActCustomDialog
	ActMessage
	ActAnimation
	ActAttack
	ActWalkTo
	ActWalkToSpawn
	ActMoveTo
	ActMonsterSpawn
	ActMonsterUnspawn
	ActSetGuildName
	ActTimer
	ActCustomTimer
	ActTeleport
	ActTeleportSequence
	ActSequence
)

var actionNames = map[ActionKind]string{
	ActIncQuestStep:     "inc_quest_step",
	ActSetQuestStep:     "set_quest_step",
	ActFinishQuest:      "finish_quest",
	ActAbortQuest:       "abort_quest",
	ActGiveQuest:        "give_quest",
	ActOfferQuest:       "offer_quest",
	ActOfferQuestAbort:  "offer_quest_abort",
	ActGiveItem:         "give_item",
	ActTakeItem:         "take_item",
	ActDropItem:         "drop_item",
	ActDestroyItem:      "destroy_item",
	ActReplaceItem:      "replace_item",
	ActGiveXP:           "give_xp",
	ActGiveGold:         "give_gold",
	ActTakeGold:         "take_gold",
	ActTalk:             "talk",
	ActWhisper:          "whisper",
	ActCustomDialog:     "custom_dialog",
	ActMessage:          "message",
	ActAnimation:        "animation",
	ActAttack:           "attack",
	ActWalkTo:           "walk_to",
	ActWalkToSpawn:      "walk_to_spawn",
	ActMoveTo:           "move_to",
	ActMonsterSpawn:     "monster_spawn",
	ActMonsterUnspawn:   "monster_unspawn",
	ActSetGuildName:     "set_guild_name",
	ActTimer:            "timer",
	ActCustomTimer:      "custom_timer",
	ActTeleport:         "teleport",
	ActTeleportSequence: "teleport_sequence",
	ActSequence:         "sequence",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// ParseActionKind is the inverse of ActionKind.String.
func ParseActionKind(s string) (ActionKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range actionNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q: %w", s, ErrInvalidDefinition)
}

// Action performs one observable effect once its part fires. Actions are
// best-effort: a missing reference is logged and skipped.
type Action interface {
	Kind() ActionKind
	Perform(c *Context)
	check(p *Part) error
}

func actionErr(k ActionKind, format string, args ...any) error {
	return fmt.Errorf("action %s: %s: %w", k, fmt.Sprintf(format, args...), ErrInvalidDefinition)
}

func noSecondary(k ActionKind, v Value) error {
	if !v.IsNone() {
		return mismatch(k.String()+" secondary", v, ValueNone)
	}
	return nil
}

func optionalCount(k ActionKind, v Value) (int, error) {
	n, err := v.asInt(k.String()+" count", true)
	if err != nil {
		return 0, err
	}
	switch {
	case n == 0:
		return 1, nil
	case n < 0:
		return 0, actionErr(k, "count must be positive, got %d", n)
	}
	return int(n), nil
}

// BuildAction converts an authoring-time (kind, primary, secondary) triple
// into a typed Action. Callback based kinds (custom dialog, custom timer,
// sequence) have no value form and are constructed directly.
func BuildAction(kind ActionKind, primary, secondary Value) (Action, error) {
	switch kind {
	case ActIncQuestStep, ActFinishQuest, ActAbortQuest:
		q, err := primary.asQuest(kind.String() + " quest")
		if err != nil {
			return nil, err
		}
		if err := noSecondary(kind, secondary); err != nil {
			return nil, err
		}
		switch kind {
		case ActIncQuestStep:
			return IncQuestStepAction{Quest: q}, nil
		case ActFinishQuest:
			return FinishQuestAction{Quest: q}, nil
		}
		return AbortQuestAction{Quest: q}, nil

	case ActSetQuestStep:
		q, err := primary.asQuest("set_quest_step quest")
		if err != nil {
			return nil, err
		}
		step, err := secondary.asInt("set_quest_step step", false)
		if err != nil {
			return nil, err
		}
		a := SetQuestStepAction{Quest: q, Step: int(step)}
		return a, a.check(nil)

	case ActGiveQuest:
		q, err := primary.asQuest("give_quest quest")
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC("give_quest npc")
		if err != nil {
			return nil, err
		}
		return GiveQuestAction{Quest: q, NPC: npc}, nil

	case ActOfferQuest, ActOfferQuestAbort:
		q, err := primary.asQuest(kind.String() + " quest")
		if err != nil {
			return nil, err
		}
		msg, err := secondary.asString(kind.String()+" message", false)
		if err != nil {
			return nil, err
		}
		if kind == ActOfferQuest {
			return OfferQuestAction{Quest: q, Message: msg}, nil
		}
		return OfferQuestAbortAction{Quest: q, Message: msg}, nil

	case ActGiveItem:
		item, err := primary.asItem("give_item item")
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC("give_item npc")
		if err != nil {
			return nil, err
		}
		return GiveItemAction{Item: item, NPC: npc}, nil

	case ActTakeItem, ActDestroyItem:
		item, err := primary.asItem(kind.String() + " item")
		if err != nil {
			return nil, err
		}
		n, err := optionalCount(kind, secondary)
		if err != nil {
			return nil, err
		}
		if kind == ActTakeItem {
			return TakeItemAction{Item: item, Count: n}, nil
		}
		return DestroyItemAction{Item: item, Count: n}, nil

	case ActDropItem:
		item, err := primary.asItem("drop_item item")
		if err != nil {
			return nil, err
		}
		if err := noSecondary(kind, secondary); err != nil {
			return nil, err
		}
		return DropItemAction{Item: item}, nil

	case ActReplaceItem:
		old, err := primary.asItem("replace_item old item")
		if err != nil {
			return nil, err
		}
		repl, err := secondary.asItem("replace_item new item")
		if err != nil {
			return nil, err
		}
		return ReplaceItemAction{Old: old, New: repl}, nil

	case ActGiveXP, ActGiveGold, ActTakeGold:
		n, err := primary.asInt(kind.String()+" amount", false)
		if err != nil {
			return nil, err
		}
		if err := noSecondary(kind, secondary); err != nil {
			return nil, err
		}
		var a Action
		switch kind {
		case ActGiveXP:
			a = GiveXPAction{Amount: n}
		case ActGiveGold:
			a = GiveGoldAction{Amount: n}
		default:
			a = TakeGoldAction{Amount: n}
		}
		if err := a.check(nil); err != nil {
			return nil, err
		}
		return a, nil

	case ActTalk, ActWhisper:
		msg, err := primary.asString(kind.String()+" message", false)
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC(kind.String() + " npc")
		if err != nil {
			return nil, err
		}
		if kind == ActTalk {
			return TalkAction{Message: msg, NPC: npc}, nil
		}
		return WhisperAction{Message: msg, NPC: npc}, nil

	case ActMessage:
		msg, err := primary.asString("message text", false)
		if err != nil {
			return nil, err
		}
		name, err := secondary.asString("message text type", true)
		if err != nil {
			return nil, err
		}
		tt := TextDialog
		if name != "" {
			if tt, err = ParseTextType(name); err != nil {
				return nil, err
			}
		}
		a := MessageAction{Text: msg, TextType: tt}
		return a, a.validate()

	case ActAnimation:
		name, err := primary.asString("animation emote", false)
		if err != nil {
			return nil, err
		}
		emote, err := ParseEmote(name)
		if err != nil {
			return nil, err
		}
		actor, err := secondary.asLiving("animation actor")
		if err != nil {
			return nil, err
		}
		return AnimationAction{Emote: emote, Actor: actor}, nil

	case ActAttack:
		aggro, err := primary.asInt("attack aggro", true)
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC("attack npc")
		if err != nil {
			return nil, err
		}
		return AttackAction{Aggro: int(aggro), NPC: npc}, nil

	case ActWalkTo:
		loc, err := primary.asLocation("walk_to location", true)
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC("walk_to npc")
		if err != nil {
			return nil, err
		}
		return WalkToAction{Location: loc, NPC: npc}, nil

	case ActWalkToSpawn, ActMonsterUnspawn:
		npc, err := primary.asNPC(kind.String() + " npc")
		if err != nil {
			return nil, err
		}
		if err := noSecondary(kind, secondary); err != nil {
			return nil, err
		}
		if kind == ActWalkToSpawn {
			return WalkToSpawnAction{NPC: npc}, nil
		}
		return MonsterUnspawnAction{NPC: npc}, nil

	case ActMoveTo:
		loc, err := primary.asLocation("move_to location", false)
		if err != nil {
			return nil, err
		}
		l, err := secondary.asLiving("move_to living")
		if err != nil {
			return nil, err
		}
		return MoveToAction{Location: *loc, Living: l}, nil

	case ActMonsterSpawn:
		npc, err := primary.asNPC("monster_spawn npc")
		if err != nil {
			return nil, err
		}
		if npc == nil {
			return nil, actionErr(kind, "npc is required")
		}
		if err := noSecondary(kind, secondary); err != nil {
			return nil, err
		}
		return MonsterSpawnAction{NPC: npc}, nil

	case ActSetGuildName:
		name, err := primary.asString("set_guild_name name", false)
		if err != nil {
			return nil, err
		}
		npc, err := secondary.asNPC("set_guild_name npc")
		if err != nil {
			return nil, err
		}
		return SetGuildNameAction{Name: name, NPC: npc}, nil

	case ActTimer:
		name, err := primary.asString("timer name", false)
		if err != nil {
			return nil, err
		}
		ms, err := secondary.asInt("timer delay ms", false)
		if err != nil {
			return nil, err
		}
		a := TimerAction{Name: name, Delay: time.Duration(ms) * time.Millisecond}
		return a, a.check(nil)

	case ActTeleport:
		loc, err := primary.asLocation("teleport location", false)
		if err != nil {
			return nil, err
		}
		radius, err := secondary.asInt("teleport radius", true)
		if err != nil {
			return nil, err
		}
		a := TeleportAction{Location: *loc, Radius: int(radius)}
		if err := a.check(nil); err != nil {
			return nil, err
		}
		return a, nil

	case ActTeleportSequence:
		loc, err := primary.asLocation("teleport_sequence location", false)
		if err != nil {
			return nil, err
		}
		tenths, err := secondary.asInt("teleport_sequence delay", true)
		if err != nil {
			return nil, err
		}
		a := TeleportSequenceAction{Location: *loc, Delay: int(tenths)}
		if err := a.check(nil); err != nil {
			return nil, err
		}
		return a, nil

	case ActCustomDialog, ActCustomTimer, ActSequence:
		return nil, actionErr(kind, "has no value form, construct it directly")
	}
	return nil, actionErr(kind, "unknown action kind")
}
