package quest

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Part is one behaviour rule: it fires when any trigger matches and every
// requirement holds, then sends its text and performs its actions in order.
// A part is shared read-only by all players once registered.
type Part struct {
	questID      QuestID
	npc          NPC
	triggers     []Trigger
	requirements []Requirement
	actions      []Action
	textType     TextType
	message      string

	registered atomic.Bool
}

// NewPart creates an empty part for the quest. npc may be nil; when set it is
// the default for every NPC parameter of the part.
func NewPart(questID QuestID, npc NPC) *Part {
	return &Part{questID: questID, npc: npc}
}

func (p *Part) QuestID() QuestID { return p.questID }
func (p *Part) NPC() NPC         { return p.npc }
func (p *Part) Registered() bool { return p.registered.Load() }

func (p *Part) Triggers() []Trigger         { return append([]Trigger(nil), p.triggers...) }
func (p *Part) Requirements() []Requirement { return append([]Requirement(nil), p.requirements...) }
func (p *Part) Actions() []Action           { return append([]Action(nil), p.actions...) }

func (p *Part) mutable() error {
	if p.Registered() {
		return fmt.Errorf("quest %d: part is registered: %w", p.questID, ErrInvalidDefinition)
	}
	return nil
}

// AddTrigger validates t against the part and appends it.
func (p *Part) AddTrigger(t Trigger) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("quest %d: nil trigger: %w", p.questID, ErrInvalidDefinition)
	}
	if err := t.check(p); err != nil {
		return fmt.Errorf("quest %d: %w", p.questID, err)
	}
	p.triggers = append(p.triggers, t)
	return nil
}

// AddRequirement validates r against the part and appends it.
func (p *Part) AddRequirement(r Requirement) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("quest %d: nil requirement: %w", p.questID, ErrInvalidDefinition)
	}
	if err := r.check(p); err != nil {
		return fmt.Errorf("quest %d: %w", p.questID, err)
	}
	p.requirements = append(p.requirements, r)
	return nil
}

// AddAction validates a against the part and appends it.
func (p *Part) AddAction(a Action) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("quest %d: nil action: %w", p.questID, ErrInvalidDefinition)
	}
	if err := a.check(p); err != nil {
		return fmt.Errorf("quest %d: %w", p.questID, err)
	}
	p.actions = append(p.actions, a)
	return nil
}

// SetText sets the text sent before the actions run.
func (p *Part) SetText(tt TextType, msg string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if _, ok := textTypeNames[tt]; !ok {
		return fmt.Errorf("quest %d: unknown text type %d: %w", p.questID, tt, ErrInvalidDefinition)
	}
	if tt.needsNPC() && p.npc == nil {
		return fmt.Errorf("quest %d: text type %s needs a part npc: %w", p.questID, tt, ErrInvalidDefinition)
	}
	p.textType, p.message = tt, msg
	return nil
}

// events lists the distinct bus topics the part's triggers listen on.
func (p *Part) events() []EventKind {
	var out []EventKind
	seen := make(map[EventKind]bool)
	for _, t := range p.triggers {
		for _, k := range t.Events() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func (p *Part) triggered(c *Context) bool {
	for _, t := range p.triggers {
		if t.Matches(c) {
			return true
		}
	}
	return false
}

func (p *Part) satisfied(c *Context) bool {
	for _, r := range p.requirements {
		if !r.Holds(c) {
			return false
		}
	}
	return true
}

// Notify evaluates the part for one event and player and reports whether it
// fired.
func (p *Part) Notify(c *Context) bool {
	if !p.triggered(c) || !p.satisfied(c) {
		return false
	}
	if p.textType != TextNone {
		sendText(c, p.textType, p.message, p.npc)
	}
	for _, a := range p.actions {
		c.perform(a)
	}
	return true
}

// Context is what triggers, requirements and actions see while a part is
// evaluated for one player.
type Context struct {
	Event  Event
	Player Player
	Part   *Part

	eng *Engine
}

func (c *Context) quest(id QuestID) QuestID {
	if id == 0 {
		return c.Part.questID
	}
	return id
}

func (c *Context) npc(n NPC) NPC {
	if n == nil {
		return c.Part.npc
	}
	return n
}

func (c *Context) living(l Living) Living {
	if l == nil && c.Part.npc != nil {
		return c.Part.npc
	}
	return l
}

// requireNPC resolves n and warns when neither it nor the part NPC is usable.
func (c *Context) requireNPC(n NPC) (NPC, bool) {
	npc := c.npc(n)
	if npc == nil {
		c.warn("action references no npc")
		return nil, false
	}
	if !npc.InWorld() {
		c.warn("npc is not in the world", zap.String("npc", npc.Name()))
		return nil, false
	}
	return npc, true
}

func (c *Context) fields(extra []zap.Field) []zap.Field {
	fields := []zap.Field{zap.Int("quest_id", int(c.Part.questID))}
	if c.Player != nil {
		fields = append(fields, zap.Int64("char_id", c.Player.ObjectID()))
	}
	return append(fields, extra...)
}

func (c *Context) warn(msg string, extra ...zap.Field)  { c.eng.log.Warn(msg, c.fields(extra)...) }
func (c *Context) debug(msg string, extra ...zap.Field) { c.eng.log.Debug(msg, c.fields(extra)...) }

// perform runs one action, containing any panic so the remaining actions and
// parts still run.
func (c *Context) perform(a Action) {
	defer func() {
		if r := recover(); r != nil {
			c.eng.log.Error("action panicked", c.fields([]zap.Field{
				zap.Stringer("action", a.Kind()),
				zap.Any("panic", r),
			})...)
		}
	}()
	a.Perform(c)
}
