package quest

import "fmt"

// EventKind identifies a category of gameplay event on the bus.
type EventKind uint8

const (
	EventInteract EventKind = iota + 1
	EventWhisper
	EventGiveItem
	EventAcceptQuest
	EventDeclineQuest
	EventContinueQuest
	EventAbortQuest
	EventEnemyKilled
	EventDying
	EventEnterArea
	EventLeaveArea
	EventTimer
	EventUseItem
)

var eventNames = map[EventKind]string{
	EventInteract:      "interact",
	EventWhisper:       "whisper",
	EventGiveItem:      "give_item",
	EventAcceptQuest:   "accept_quest",
	EventDeclineQuest:  "decline_quest",
	EventContinueQuest: "continue_quest",
	EventAbortQuest:    "abort_quest",
	EventEnemyKilled:   "enemy_killed",
	EventDying:         "dying",
	EventEnterArea:     "enter_area",
	EventLeaveArea:     "leave_area",
	EventTimer:         "timer",
	EventUseItem:       "use_item",
}

// String is also the bus topic the event is published under.
func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is a gameplay event. The concrete types below are the closed set the
// engine understands.
type Event interface {
	Kind() EventKind
	// Sender is the object the event originates from.
	Sender() any
}

// subjectEvent is implemented by events that concern exactly one player.
type subjectEvent interface {
	subject() Player
}

type InteractEvent struct {
	Player Player
	NPC    NPC
}

func (InteractEvent) Kind() EventKind   { return EventInteract }
func (e InteractEvent) Sender() any     { return e.Player }
func (e InteractEvent) subject() Player { return e.Player }

type WhisperEvent struct {
	Player Player
	NPC    NPC
	Text   string
}

func (WhisperEvent) Kind() EventKind   { return EventWhisper }
func (e WhisperEvent) Sender() any     { return e.Player }
func (e WhisperEvent) subject() Player { return e.Player }

type GiveItemEvent struct {
	Player Player
	NPC    NPC
	Item   *ItemTemplate
}

func (GiveItemEvent) Kind() EventKind   { return EventGiveItem }
func (e GiveItemEvent) Sender() any     { return e.Player }
func (e GiveItemEvent) subject() Player { return e.Player }

// QuestEvent is an accept, decline, continue or abort answer from a player.
type QuestEvent struct {
	Type    EventKind
	Player  Player
	QuestID QuestID
}

func (e QuestEvent) Kind() EventKind { return e.Type }
func (e QuestEvent) Sender() any     { return e.Player }
func (e QuestEvent) subject() Player { return e.Player }

// KilledEvent reports that Killer killed Victim. It concerns the killer when
// the killer is a player, otherwise the victim when the victim is a player.
type KilledEvent struct {
	Killer Living
	Victim Living
}

func (KilledEvent) Kind() EventKind { return EventEnemyKilled }
func (e KilledEvent) Sender() any   { return e.Killer }

func (e KilledEvent) subject() Player {
	if p, ok := e.Killer.(Player); ok {
		return p
	}
	if p, ok := e.Victim.(Player); ok {
		return p
	}
	return nil
}

// DyingEvent concerns every player within visibility distance of the dying living.
type DyingEvent struct {
	Living Living
	Killer Living
}

func (DyingEvent) Kind() EventKind { return EventDying }
func (e DyingEvent) Sender() any   { return e.Living }

type AreaEvent struct {
	Type   EventKind
	Player Player
	Area   Area
}

func (e AreaEvent) Kind() EventKind { return e.Type }
func (e AreaEvent) Sender() any     { return e.Player }
func (e AreaEvent) subject() Player { return e.Player }

// TimerEvent is raised by the Timer action when its delay elapses.
type TimerEvent struct {
	Player  Player
	TimerID string
}

func (TimerEvent) Kind() EventKind   { return EventTimer }
func (e TimerEvent) Sender() any     { return e.Player }
func (e TimerEvent) subject() Player { return e.Player }

type UseItemEvent struct {
	Player Player
	Item   *ItemTemplate
}

func (UseItemEvent) Kind() EventKind   { return EventUseItem }
func (e UseItemEvent) Sender() any     { return e.Player }
func (e UseItemEvent) subject() Player { return e.Player }
