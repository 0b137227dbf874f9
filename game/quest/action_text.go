package quest

import "go.uber.org/zap"

// TalkAction makes NPC (default the part NPC) turn to the player and say Message.
type TalkAction struct {
	Message string
	NPC     NPC
}

func (TalkAction) Kind() ActionKind      { return ActTalk }
func (a TalkAction) check(p *Part) error { return needNPC(ActTalk, a.NPC, p) }

func (a TalkAction) Perform(c *Context) {
	if npc, ok := c.requireNPC(a.NPC); ok {
		sendText(c, TextTalk, a.Message, npc)
	}
}

type WhisperAction struct {
	Message string
	NPC     NPC
}

func (WhisperAction) Kind() ActionKind      { return ActWhisper }
func (a WhisperAction) check(p *Part) error { return needNPC(ActWhisper, a.NPC, p) }

func (a WhisperAction) Perform(c *Context) {
	if npc, ok := c.requireNPC(a.NPC); ok {
		sendText(c, TextWhisper, a.Message, npc)
	}
}

// DialogResponse receives the player's answer to a CustomDialogAction.
type DialogResponse func(p Player, accepted bool)

// CustomDialogAction opens a yes/no dialog and calls Response with the answer.
type CustomDialogAction struct {
	Message  string
	Response DialogResponse
}

func (CustomDialogAction) Kind() ActionKind { return ActCustomDialog }

func (a CustomDialogAction) check(*Part) error {
	if a.Response == nil {
		return actionErr(ActCustomDialog, "response callback is required")
	}
	return nil
}

func (a CustomDialogAction) Perform(c *Context) {
	token := c.eng.openDialog(c.Player, a.Response)
	c.Player.Out().Dialog(Personalize(a.Message, c.Player), token)
}

// MessageAction shows Text to the player the way TextType describes.
type MessageAction struct {
	Text     string
	TextType TextType
}

func (MessageAction) Kind() ActionKind { return ActMessage }

func (a MessageAction) validate() error {
	if a.TextType == TextNone {
		return actionErr(ActMessage, "text type is required")
	}
	return nil
}

func (a MessageAction) check(p *Part) error {
	if err := a.validate(); err != nil {
		return err
	}
	if a.TextType.needsNPC() {
		return needNPC(ActMessage, nil, p)
	}
	return nil
}

func (a MessageAction) Perform(c *Context) {
	if a.TextType == TextRead {
		c.Player.Out().Message(`You read: "`+Personalize(a.Text, c.Player)+`"`, ChatPopup)
		return
	}
	sendText(c, a.TextType, a.Text, c.Part.npc)
}

// AnimationAction plays Emote on Actor (default the player) for every player
// within visibility distance.
type AnimationAction struct {
	Emote Emote
	Actor Living
}

func (AnimationAction) Kind() ActionKind { return ActAnimation }

func (a AnimationAction) check(*Part) error {
	if _, ok := emoteNames[a.Emote]; !ok {
		return actionErr(ActAnimation, "unknown emote %d", a.Emote)
	}
	return nil
}

func (a AnimationAction) Perform(c *Context) {
	var actor Living = c.Player
	if a.Actor != nil {
		actor = a.Actor
	}
	if !actor.InWorld() {
		c.warn("animation actor not in world", zap.String("actor", actor.Name()))
		return
	}
	for _, p := range c.eng.world.PlayersInRadius(actor, c.eng.opts.VisibilityDistance) {
		p.Out().EmoteAnimation(actor, a.Emote)
	}
}
