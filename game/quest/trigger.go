package quest

import (
	"fmt"
	"strings"
)

// TriggerKind names a trigger variant.
type TriggerKind uint8

const (
	TriggerInteract TriggerKind = iota + 1
	TriggerWhisper
	TriggerGiveItem
	TriggerAcceptQuest
	TriggerDeclineQuest
	TriggerContinueQuest
	TriggerAbortQuest
	TriggerEnemyKilled
	TriggerEnemyDying
	TriggerPlayerKilled
	TriggerEnterArea
	TriggerLeaveArea
	TriggerTimer
	TriggerItemUsed
)

var triggerNames = map[TriggerKind]string{
	TriggerInteract:      "interact",
	TriggerWhisper:       "whisper",
	TriggerGiveItem:      "give_item",
	TriggerAcceptQuest:   "accept_quest",
	TriggerDeclineQuest:  "decline_quest",
	TriggerContinueQuest: "continue_quest",
	TriggerAbortQuest:    "abort_quest",
	TriggerEnemyKilled:   "enemy_killed",
	TriggerEnemyDying:    "enemy_dying",
	TriggerPlayerKilled:  "player_killed",
	TriggerEnterArea:     "enter_area",
	TriggerLeaveArea:     "leave_area",
	TriggerTimer:         "timer",
	TriggerItemUsed:      "item_used",
}

func (k TriggerKind) String() string {
	if s, ok := triggerNames[k]; ok {
		return s
	}
	return fmt.Sprintf("trigger(%d)", uint8(k))
}

// ParseTriggerKind is the inverse of TriggerKind.String.
func ParseTriggerKind(s string) (TriggerKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range triggerNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trigger %q: %w", s, ErrInvalidDefinition)
}

// Trigger matches one category of event. Matching is a pure function of the
// event and the trigger's static data.
type Trigger interface {
	Kind() TriggerKind
	// Events lists the bus topics the trigger needs a subscription for.
	Events() []EventKind
	Matches(c *Context) bool
	check(p *Part) error
}

func triggerErr(k TriggerKind, format string, args ...any) error {
	return fmt.Errorf("trigger %s: %s: %w", k, fmt.Sprintf(format, args...), ErrInvalidDefinition)
}

func needNPC(k fmt.Stringer, n NPC, p *Part) error {
	if n == nil && p.npc == nil {
		return fmt.Errorf("%s: no npc given and the part has none: %w", k, ErrInvalidDefinition)
	}
	return nil
}

// InteractTrigger fires when the player interacts with the NPC.
type InteractTrigger struct {
	NPC NPC
}

func (InteractTrigger) Kind() TriggerKind     { return TriggerInteract }
func (InteractTrigger) Events() []EventKind   { return []EventKind{EventInteract} }
func (t InteractTrigger) check(p *Part) error { return needNPC(TriggerInteract, t.NPC, p) }

func (t InteractTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(InteractEvent)
	return ok && sameObject(e.NPC, c.npc(t.NPC))
}

// WhisperTrigger fires when the player whispers Keyword to the NPC.
type WhisperTrigger struct {
	NPC     NPC
	Keyword string
}

func (WhisperTrigger) Kind() TriggerKind   { return TriggerWhisper }
func (WhisperTrigger) Events() []EventKind { return []EventKind{EventWhisper} }

func (t WhisperTrigger) check(p *Part) error {
	if t.Keyword == "" {
		return triggerErr(TriggerWhisper, "keyword is required")
	}
	return needNPC(TriggerWhisper, t.NPC, p)
}

func (t WhisperTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(WhisperEvent)
	return ok && e.Text == t.Keyword && sameObject(e.NPC, c.npc(t.NPC))
}

// GiveItemTrigger fires when the player hands Item to the NPC.
type GiveItemTrigger struct {
	NPC  NPC
	Item *ItemTemplate
}

func (GiveItemTrigger) Kind() TriggerKind   { return TriggerGiveItem }
func (GiveItemTrigger) Events() []EventKind { return []EventKind{EventGiveItem} }

func (t GiveItemTrigger) check(p *Part) error {
	if t.Item == nil {
		return triggerErr(TriggerGiveItem, "item is required")
	}
	return needNPC(TriggerGiveItem, t.NPC, p)
}

func (t GiveItemTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(GiveItemEvent)
	return ok && e.Item != nil && e.Item.ID == t.Item.ID && sameObject(e.NPC, c.npc(t.NPC))
}

// QuestTrigger fires on a player's accept, decline, continue or abort answer
// for Quest. On must be one of the four quest trigger kinds.
type QuestTrigger struct {
	On    TriggerKind
	Quest QuestID
}

var questTriggerEvents = map[TriggerKind]EventKind{
	TriggerAcceptQuest:   EventAcceptQuest,
	TriggerDeclineQuest:  EventDeclineQuest,
	TriggerContinueQuest: EventContinueQuest,
	TriggerAbortQuest:    EventAbortQuest,
}

func (t QuestTrigger) Kind() TriggerKind   { return t.On }
func (t QuestTrigger) Events() []EventKind { return []EventKind{questTriggerEvents[t.On]} }

func (t QuestTrigger) check(*Part) error {
	if _, ok := questTriggerEvents[t.On]; !ok {
		return triggerErr(t.On, "not a quest trigger")
	}
	return nil
}

func (t QuestTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(QuestEvent)
	return ok && e.Type == questTriggerEvents[t.On] && e.QuestID == c.quest(t.Quest)
}

// EnemyKilledTrigger fires when the player kills Enemy, or any living named
// Name when Enemy is nil.
type EnemyKilledTrigger struct {
	Enemy Living
	Name  string
}

func (EnemyKilledTrigger) Kind() TriggerKind   { return TriggerEnemyKilled }
func (EnemyKilledTrigger) Events() []EventKind { return []EventKind{EventEnemyKilled} }

func (t EnemyKilledTrigger) check(*Part) error {
	if t.Enemy == nil && t.Name == "" {
		return triggerErr(TriggerEnemyKilled, "enemy or name keyword is required")
	}
	return nil
}

func (t EnemyKilledTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(KilledEvent)
	if !ok || e.Victim == nil {
		return false
	}
	if killer, isPlayer := e.Killer.(Player); !isPlayer || !sameObject(killer, c.Player) {
		return false
	}
	if t.Enemy != nil {
		return sameObject(e.Victim, t.Enemy)
	}
	return e.Victim.Name() == t.Name
}

// EnemyDyingTrigger fires for every player near Living when it dies.
type EnemyDyingTrigger struct {
	Living Living
}

func (EnemyDyingTrigger) Kind() TriggerKind   { return TriggerEnemyDying }
func (EnemyDyingTrigger) Events() []EventKind { return []EventKind{EventDying} }

func (t EnemyDyingTrigger) check(p *Part) error {
	if t.Living == nil && p.npc == nil {
		return triggerErr(TriggerEnemyDying, "no living given and the part has no npc")
	}
	return nil
}

func (t EnemyDyingTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(DyingEvent)
	return ok && sameObject(e.Living, c.living(t.Living))
}

// PlayerKilledTrigger fires when NPC kills the player.
type PlayerKilledTrigger struct {
	NPC NPC
}

func (PlayerKilledTrigger) Kind() TriggerKind     { return TriggerPlayerKilled }
func (PlayerKilledTrigger) Events() []EventKind   { return []EventKind{EventEnemyKilled} }
func (t PlayerKilledTrigger) check(p *Part) error { return needNPC(TriggerPlayerKilled, t.NPC, p) }

func (t PlayerKilledTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(KilledEvent)
	return ok && sameObject(e.Killer, c.npc(t.NPC)) && sameObject(e.Victim, c.Player)
}

// AreaTrigger fires when the player enters or leaves Area.
type AreaTrigger struct {
	On   TriggerKind
	Area Area
}

func (t AreaTrigger) Kind() TriggerKind { return t.On }

func (t AreaTrigger) Events() []EventKind {
	if t.On == TriggerLeaveArea {
		return []EventKind{EventLeaveArea}
	}
	return []EventKind{EventEnterArea}
}

func (t AreaTrigger) check(*Part) error {
	if t.On != TriggerEnterArea && t.On != TriggerLeaveArea {
		return triggerErr(t.On, "not an area trigger")
	}
	if t.Area.ID == 0 {
		return triggerErr(t.On, "area is required")
	}
	return nil
}

func (t AreaTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(AreaEvent)
	return ok && e.Type == t.Events()[0] && e.Area.ID == t.Area.ID
}

// TimerTrigger fires when the player's timer named ID elapses.
type TimerTrigger struct {
	ID string
}

func (TimerTrigger) Kind() TriggerKind   { return TriggerTimer }
func (TimerTrigger) Events() []EventKind { return []EventKind{EventTimer} }

func (t TimerTrigger) check(*Part) error {
	if t.ID == "" {
		return triggerErr(TriggerTimer, "timer keyword is required")
	}
	return nil
}

func (t TimerTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(TimerEvent)
	return ok && e.TimerID == t.ID
}

// ItemUsedTrigger fires when the player uses Item.
type ItemUsedTrigger struct {
	Item *ItemTemplate
}

func (ItemUsedTrigger) Kind() TriggerKind   { return TriggerItemUsed }
func (ItemUsedTrigger) Events() []EventKind { return []EventKind{EventUseItem} }

func (t ItemUsedTrigger) check(*Part) error {
	if t.Item == nil {
		return triggerErr(TriggerItemUsed, "item is required")
	}
	return nil
}

func (t ItemUsedTrigger) Matches(c *Context) bool {
	e, ok := c.Event.(UseItemEvent)
	return ok && e.Item != nil && e.Item.ID == t.Item.ID
}

// BuildTrigger converts an authoring-time (kind, keyword, param) triple into a
// typed Trigger, rejecting payloads that do not fit the kind.
func BuildTrigger(kind TriggerKind, keyword string, param Value) (Trigger, error) {
	noKeyword := func() error {
		if keyword != "" {
			return triggerErr(kind, "keyword %q is not allowed", keyword)
		}
		return nil
	}
	switch kind {
	case TriggerInteract:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		npc, err := param.asNPC("interact param")
		if err != nil {
			return nil, err
		}
		return InteractTrigger{NPC: npc}, nil

	case TriggerWhisper:
		npc, err := param.asNPC("whisper param")
		if err != nil {
			return nil, err
		}
		if keyword == "" {
			return nil, triggerErr(kind, "keyword is required")
		}
		return WhisperTrigger{NPC: npc, Keyword: keyword}, nil

	case TriggerGiveItem:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		item, err := param.asItem("give_item param")
		if err != nil {
			return nil, err
		}
		return GiveItemTrigger{Item: item}, nil

	case TriggerAcceptQuest, TriggerDeclineQuest, TriggerContinueQuest, TriggerAbortQuest:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		q, err := param.asQuest(kind.String() + " param")
		if err != nil {
			return nil, err
		}
		return QuestTrigger{On: kind, Quest: q}, nil

	case TriggerEnemyKilled:
		l, err := param.asLiving("enemy_killed param")
		if err != nil {
			return nil, err
		}
		if l == nil && keyword == "" {
			return nil, triggerErr(kind, "enemy or name keyword is required")
		}
		return EnemyKilledTrigger{Enemy: l, Name: keyword}, nil

	case TriggerEnemyDying:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		l, err := param.asLiving("enemy_dying param")
		if err != nil {
			return nil, err
		}
		return EnemyDyingTrigger{Living: l}, nil

	case TriggerPlayerKilled:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		npc, err := param.asNPC("player_killed param")
		if err != nil {
			return nil, err
		}
		return PlayerKilledTrigger{NPC: npc}, nil

	case TriggerEnterArea, TriggerLeaveArea:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		a, err := param.asArea(kind.String() + " param")
		if err != nil {
			return nil, err
		}
		return AreaTrigger{On: kind, Area: a}, nil

	case TriggerTimer:
		if !param.IsNone() {
			return nil, mismatch("timer param", param, ValueNone)
		}
		if keyword == "" {
			return nil, triggerErr(kind, "timer keyword is required")
		}
		return TimerTrigger{ID: keyword}, nil

	case TriggerItemUsed:
		if err := noKeyword(); err != nil {
			return nil, err
		}
		item, err := param.asItem("item_used param")
		if err != nil {
			return nil, err
		}
		return ItemUsedTrigger{Item: item}, nil
	}
	return nil, triggerErr(kind, "unknown trigger kind")
}
