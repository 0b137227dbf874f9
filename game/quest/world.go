package quest

import (
	"errors"
	"time"
)

// QuestID identifies a quest definition. Zero means "the owning part's quest"
// wherever a definition accepts an optional quest.
type QuestID int

// ErrInventoryFull is returned by Inventory.Add when no backpack slot is free.
var ErrInventoryFull = errors.New("inventory full")

// Position is a point in the world.
type Position struct {
	Region  int `json:"region" yaml:"region"`
	X       int `json:"x" yaml:"x"`
	Y       int `json:"y" yaml:"y"`
	Z       int `json:"z" yaml:"z"`
	Heading int `json:"heading" yaml:"heading"`
}

// Location is a named destination.
type Location struct {
	Name string `json:"name" yaml:"name"`
	Position `yaml:",inline"`
}

// Area is a trigger region the host reports enter/leave events for.
type Area struct {
	ID   int
	Name string
}

// ItemTemplate is the static description of an item.
type ItemTemplate struct {
	ID     string
	Name   string
	Weight int
}

// Object is anything with identity and a position.
type Object interface {
	ObjectID() int64
	Name() string
	Position() Position
}

// Living is an object that can move, belong to a guild and be in or out of the world.
type Living interface {
	Object
	Level() int
	GuildName() string
	SetGuildName(name string)
	MoveTo(pos Position) bool
	InWorld() bool
}

// Aggressor is implemented by NPC brains that keep an aggro list.
type Aggressor interface {
	AddToAggroList(target Living, amount int)
}

// NPC is a non-player character.
type NPC interface {
	Living
	TurnTo(o Object)
	SayTo(p Player, text string)
	WhisperTo(p Player, text string)
	WalkTo(pos Position)
	WalkToSpawn()
	AddToWorld() bool
	RemoveFromWorld() bool
	// Brain returns the aggressive brain, if the NPC has one.
	Brain() (Aggressor, bool)
}

// Attribute names a numeric player attribute.
type Attribute uint8

const (
	AttrLevel Attribute = iota + 1
	AttrHealth
	AttrHealthMax
	AttrMana
	AttrManaMax
	AttrEndurance
	AttrEnduranceMax
	AttrEncumbrance
	AttrEncumbranceMax
	AttrGold
	AttrRealm
	AttrRealmLevel
	AttrRealmPoints
	AttrGender
	// AttrGroupNumber and AttrGroupLevel are derived from Player.Group.
	AttrGroupNumber
	AttrGroupLevel
)

var attributeNames = map[Attribute]string{
	AttrLevel:          "level",
	AttrHealth:         "health",
	AttrHealthMax:      "health_max",
	AttrMana:           "mana",
	AttrManaMax:        "mana_max",
	AttrEndurance:      "endurance",
	AttrEnduranceMax:   "endurance_max",
	AttrEncumbrance:    "encumbrance",
	AttrEncumbranceMax: "encumbrance_max",
	AttrGold:           "gold",
	AttrRealm:          "realm",
	AttrRealmLevel:     "realm_level",
	AttrRealmPoints:    "realm_points",
	AttrGender:         "gender",
	AttrGroupNumber:    "group_number",
	AttrGroupLevel:     "group_level",
}

func (a Attribute) String() string {
	if s, ok := attributeNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAttribute is the inverse of Attribute.String.
func ParseAttribute(s string) (Attribute, bool) {
	for a, name := range attributeNames {
		if name == s {
			return a, true
		}
	}
	return 0, false
}

// Inventory is the player's backpack and worn equipment.
type Inventory interface {
	// Count returns how many instances of the item are in the backpack.
	Count(itemID string) int
	IsEquipped(itemID string) bool
	// Add places count instances in the backpack or returns ErrInventoryFull
	// without adding anything.
	Add(t *ItemTemplate, count int) error
	// Remove takes count instances from the backpack, or nothing if fewer exist.
	Remove(itemID string, count int) bool
}

// Player is a connected player character.
type Player interface {
	Living
	// Online reports whether the player is still connected. Deferred work
	// addressed to an offline player is dropped.
	Online() bool
	Attribute(a Attribute) int64
	ClassID() int
	Race() int
	Zone() int
	// Group returns every member of the player's group including the player,
	// or nil when the player is solo.
	Group() []Player
	Inventory() Inventory
	Journal() *Journal
	Out() Presenter
	GainExperience(amount int64)
	AddMoney(amount int64)
	RemoveMoney(amount int64) bool
}

// ChatType tags a text message with its channel.
type ChatType uint8

const (
	ChatSystem ChatType = iota
	ChatSay
	ChatWhisper
	ChatEmote
	ChatBroadcast
	ChatLoot
	ChatPopup
)

var chatNames = [...]string{"system", "say", "whisper", "emote", "broadcast", "loot", "popup"}

func (c ChatType) String() string {
	if int(c) < len(chatNames) {
		return chatNames[c]
	}
	return "unknown"
}

// Indicator is the quest marker shown above an NPC.
type Indicator uint8

const (
	IndicatorNone Indicator = iota
	IndicatorAvailable
	IndicatorPending
)

func (i Indicator) String() string {
	switch i {
	case IndicatorAvailable:
		return "available"
	case IndicatorPending:
		return "pending"
	}
	return "none"
}

// JournalEntry is one line of the client's quest list.
type JournalEntry struct {
	QuestID QuestID `json:"quest_id"`
	Name    string  `json:"name"`
	Step    int     `json:"step"`
}

// Presenter delivers output to one player's client.
type Presenter interface {
	Message(text string, ch ChatType)
	// Dialog opens a popup. A non-empty token expects a yes/no answer routed
	// back through Engine.AnswerDialog.
	Dialog(text string, token string)
	QuestOffer(npc NPC, id QuestID, text string)
	QuestAbortOffer(npc NPC, id QuestID, text string)
	EmoteAnimation(actor Living, emote Emote)
	SpellCastAnimation(caster Living, spellID int, duration time.Duration)
	QuestIndicator(npc NPC, ind Indicator)
	QuestList(entries []JournalEntry)
}

// World answers spatial queries and performs world-level effects.
type World interface {
	PlayersInRadius(o Object, radius int) []Player
	NPCsInRadius(o Object, radius int) []NPC
	// Distance returns -1 when the objects are in different regions.
	Distance(a, b Object) int
	DropOnGround(near Object, t *ItemTemplate)
	Broadcast(text string)
}

func sameObject(a, b Object) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ObjectID() == b.ObjectID()
}
