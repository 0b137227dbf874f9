package player

import (
	"time"

	"github.com/kasuganosora/rpgquest/game/quest"
)

// Outbound packet types produced by the Presenter.
const (
	PktChat           = "chat_message"
	PktDialog         = "dialog"
	PktQuestOffer     = "quest_offer"
	PktEmote          = "emote"
	PktSpellCast      = "spell_cast"
	PktQuestIndicator = "quest_indicator"
	PktQuestList      = "quest_list"
)

type chatPayload struct {
	Channel string `json:"channel"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

type dialogPayload struct {
	Text  string `json:"text"`
	Token string `json:"token,omitempty"`
}

type offerPayload struct {
	NPCID   int64         `json:"npc_id"`
	NPCName string        `json:"npc_name"`
	QuestID quest.QuestID `json:"quest_id"`
	Text    string        `json:"text"`
	Abort   bool          `json:"abort"`
}

type emotePayload struct {
	ActorID int64  `json:"actor_id"`
	Emote   string `json:"emote"`
}

type spellPayload struct {
	CasterID   int64 `json:"caster_id"`
	SpellID    int   `json:"spell_id"`
	DurationMS int64 `json:"duration_ms"`
}

type indicatorPayload struct {
	NPCID     int64  `json:"npc_id"`
	Indicator string `json:"indicator"`
}

type listPayload struct {
	Quests []quest.JournalEntry `json:"quests"`
}

// Presenter turns quest output into packets on one session.
type Presenter struct {
	s *PlayerSession
}

func NewPresenter(s *PlayerSession) *Presenter {
	return &Presenter{s: s}
}

func (p *Presenter) Message(text string, ch quest.ChatType) {
	p.s.Send(NewPacket(PktChat, chatPayload{Channel: ch.String(), Message: text}))
}

// Dialog opens a popup; a token makes it a yes/no question.
func (p *Presenter) Dialog(text string, token string) {
	p.s.Send(NewPacket(PktDialog, dialogPayload{Text: text, Token: token}))
}

func (p *Presenter) QuestOffer(npc quest.NPC, id quest.QuestID, text string) {
	p.offer(npc, id, text, false)
}

func (p *Presenter) QuestAbortOffer(npc quest.NPC, id quest.QuestID, text string) {
	p.offer(npc, id, text, true)
}

func (p *Presenter) offer(npc quest.NPC, id quest.QuestID, text string, abort bool) {
	pl := offerPayload{QuestID: id, Text: text, Abort: abort}
	if npc != nil {
		pl.NPCID = npc.ObjectID()
		pl.NPCName = npc.Name()
	}
	p.s.Send(NewPacket(PktQuestOffer, pl))
}

func (p *Presenter) EmoteAnimation(actor quest.Living, emote quest.Emote) {
	p.s.Send(NewPacket(PktEmote, emotePayload{ActorID: actor.ObjectID(), Emote: emote.String()}))
}

func (p *Presenter) SpellCastAnimation(caster quest.Living, spellID int, duration time.Duration) {
	p.s.Send(NewPacket(PktSpellCast, spellPayload{
		CasterID:   caster.ObjectID(),
		SpellID:    spellID,
		DurationMS: duration.Milliseconds(),
	}))
}

func (p *Presenter) QuestIndicator(npc quest.NPC, ind quest.Indicator) {
	p.s.Send(NewPacket(PktQuestIndicator, indicatorPayload{NPCID: npc.ObjectID(), Indicator: ind.String()}))
}

func (p *Presenter) QuestList(entries []quest.JournalEntry) {
	if entries == nil {
		entries = []quest.JournalEntry{}
	}
	p.s.Send(NewPacket(PktQuestList, listPayload{Quests: entries}))
}
