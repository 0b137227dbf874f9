package quest

import (
	"fmt"
	"time"
)

// TimerAction raises a TimerEvent named Name for the player after Delay.
type TimerAction struct {
	Name  string
	Delay time.Duration
}

func (TimerAction) Kind() ActionKind { return ActTimer }

func (a TimerAction) check(*Part) error {
	if a.Name == "" {
		return actionErr(ActTimer, "timer name is required")
	}
	if a.Delay < 0 {
		return actionErr(ActTimer, "delay must not be negative, got %s", a.Delay)
	}
	return nil
}

func (a TimerAction) Perform(c *Context) {
	p, eng := c.Player, c.eng
	eng.NewSequencer(p).Then(a.Delay, func() {
		eng.Dispatch(TimerEvent{Player: p, TimerID: a.Name})
	}).Start()
}

// CustomTimerAction calls Callback with the player after Delay, unless the
// player has left by then.
type CustomTimerAction struct {
	Delay    time.Duration
	Callback func(p Player)
}

func (CustomTimerAction) Kind() ActionKind { return ActCustomTimer }

func (a CustomTimerAction) check(*Part) error {
	if a.Callback == nil {
		return actionErr(ActCustomTimer, "callback is required")
	}
	if a.Delay < 0 {
		return actionErr(ActCustomTimer, "delay must not be negative, got %s", a.Delay)
	}
	return nil
}

func (a CustomTimerAction) Perform(c *Context) {
	p := c.Player
	c.eng.NewSequencer(p).Then(a.Delay, func() { a.Callback(p) }).Start()
}

// TeleportAction moves the player to Location, offset on both axes by up to
// Radius.
type TeleportAction struct {
	Location Location
	Radius   int
}

func (TeleportAction) Kind() ActionKind { return ActTeleport }

func (a TeleportAction) check(*Part) error {
	if a.Radius < 0 {
		return actionErr(ActTeleport, "radius must not be negative, got %d", a.Radius)
	}
	return nil
}

func (a TeleportAction) Perform(c *Context) {
	c.Player.Out().Message(fmt.Sprintf("%s is being teleported to %s.", c.Player.Name(), a.Location.Name), ChatSystem)
	a.relocate(c)
}

func (a TeleportAction) relocate(c *Context) {
	pos := a.Location.Position
	if a.Radius > 0 {
		pos.X += c.eng.rand(2*a.Radius+1) - a.Radius
		pos.Y += c.eng.rand(2*a.Radius+1) - a.Radius
	}
	if !c.Player.MoveTo(pos) {
		c.warn("teleport failed")
	}
}

// TeleportSequenceAction plays the three stage teleport: Caster (default the
// part NPC) casts after Delay tenths of a second, the player shows the bind
// emote, then the player is relocated.
type TeleportSequenceAction struct {
	Location Location
	Caster   NPC
	Delay    int
	Radius   int
}

const teleportCastSpell = 1

func (TeleportSequenceAction) Kind() ActionKind { return ActTeleportSequence }

func (a TeleportSequenceAction) check(*Part) error {
	if a.Delay < 0 || a.Radius < 0 {
		return actionErr(ActTeleportSequence, "delay and radius must not be negative")
	}
	return nil
}

func (a TeleportSequenceAction) Perform(c *Context) {
	base := time.Duration(a.Delay) * 100 * time.Millisecond
	if base <= 0 {
		base = time.Millisecond
	}
	emote := c.eng.opts.TeleportEmoteOffset
	port := c.eng.opts.TeleportPortOffset
	if port < emote {
		port = emote
	}

	caster := c.npc(a.Caster)
	p := c.Player
	cc := *c
	vis := c.eng.opts.VisibilityDistance
	world := c.eng.world

	c.eng.NewSequencer(p).
		Then(base, func() {
			if caster == nil || !caster.InWorld() {
				return
			}
			for _, o := range world.PlayersInRadius(caster, vis) {
				o.Out().SpellCastAnimation(caster, teleportCastSpell, emote)
			}
		}).
		Then(emote, func() {
			for _, o := range world.PlayersInRadius(p, vis) {
				o.Out().EmoteAnimation(p, EmoteBind)
			}
		}).
		Then(port-emote, func() {
			TeleportAction{Location: a.Location, Radius: a.Radius}.relocate(&cc)
		}).
		Start()
}

// SequenceStep is one stage of a SequenceAction. Delay is relative to the
// previous stage.
type SequenceStep struct {
	Delay  time.Duration
	Action Action
}

// SequenceAction plays its steps in order, each after its own delay.
type SequenceAction struct {
	Steps []SequenceStep
}

func (SequenceAction) Kind() ActionKind { return ActSequence }

func (a SequenceAction) check(p *Part) error {
	if len(a.Steps) == 0 {
		return actionErr(ActSequence, "at least one step is required")
	}
	for i, s := range a.Steps {
		if s.Action == nil {
			return actionErr(ActSequence, "step %d has no action", i)
		}
		if s.Delay < 0 {
			return actionErr(ActSequence, "step %d delay must not be negative", i)
		}
		if err := s.Action.check(p); err != nil {
			return fmt.Errorf("sequence step %d: %w", i, err)
		}
	}
	return nil
}

func (a SequenceAction) Perform(c *Context) {
	cc := *c
	seq := c.eng.NewSequencer(c.Player)
	for _, s := range a.Steps {
		act := s.Action
		seq.Then(s.Delay, func() { act.Perform(&cc) })
	}
	seq.Start()
}
