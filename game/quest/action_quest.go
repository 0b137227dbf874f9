package quest

type IncQuestStepAction struct {
	Quest QuestID
}

func (IncQuestStepAction) Kind() ActionKind     { return ActIncQuestStep }
func (IncQuestStepAction) check(*Part) error    { return nil }
func (a IncQuestStepAction) Perform(c *Context) { c.eng.mgr.IncStep(c.quest(a.Quest), c.Player) }

type SetQuestStepAction struct {
	Quest QuestID
	Step  int
}

func (SetQuestStepAction) Kind() ActionKind { return ActSetQuestStep }

func (a SetQuestStepAction) check(*Part) error {
	if a.Step < 1 {
		return actionErr(ActSetQuestStep, "step must be at least 1, got %d", a.Step)
	}
	return nil
}

func (a SetQuestStepAction) Perform(c *Context) {
	c.eng.mgr.SetStep(c.quest(a.Quest), c.Player, a.Step)
}

type FinishQuestAction struct {
	Quest QuestID
}

func (FinishQuestAction) Kind() ActionKind     { return ActFinishQuest }
func (FinishQuestAction) check(*Part) error    { return nil }
func (a FinishQuestAction) Perform(c *Context) { c.eng.mgr.Finish(c.quest(a.Quest), c.Player) }

type AbortQuestAction struct {
	Quest QuestID
}

func (AbortQuestAction) Kind() ActionKind     { return ActAbortQuest }
func (AbortQuestAction) check(*Part) error    { return nil }
func (a AbortQuestAction) Perform(c *Context) { c.eng.mgr.Abort(c.quest(a.Quest), c.Player) }

// GiveQuestAction gives the quest outright, subject to qualification. NPC is
// the giver and defaults to the part NPC.
type GiveQuestAction struct {
	Quest QuestID
	NPC   NPC
}

func (GiveQuestAction) Kind() ActionKind  { return ActGiveQuest }
func (GiveQuestAction) check(*Part) error { return nil }

func (a GiveQuestAction) Perform(c *Context) {
	c.eng.mgr.Give(c.quest(a.Quest), c.Player, c.npc(a.NPC), 0)
}

// OfferQuestAction opens an accept/decline prompt. The answer comes back as
// an AcceptQuest or DeclineQuest event.
type OfferQuestAction struct {
	Quest   QuestID
	Message string
}

func (OfferQuestAction) Kind() ActionKind  { return ActOfferQuest }
func (OfferQuestAction) check(*Part) error { return nil }

func (a OfferQuestAction) Perform(c *Context) {
	c.eng.mgr.Propose(c.quest(a.Quest), Personalize(a.Message, c.Player), c.Player, c.Part.npc)
}

// OfferQuestAbortAction asks the player to confirm abandoning an active quest.
type OfferQuestAbortAction struct {
	Quest   QuestID
	Message string
}

func (OfferQuestAbortAction) Kind() ActionKind  { return ActOfferQuestAbort }
func (OfferQuestAbortAction) check(*Part) error { return nil }

func (a OfferQuestAbortAction) Perform(c *Context) {
	c.eng.mgr.ProposeAbort(c.quest(a.Quest), Personalize(a.Message, c.Player), c.Player, c.Part.npc)
}
