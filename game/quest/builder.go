package quest

import (
	"fmt"

	"go.uber.org/multierr"
)

// Builder declares a part step by step and reports every construction error
// at once from Build.
//
//	part, err := quest.NewBuilder(q, npc).
//		Trigger(quest.TriggerInteract, "", quest.NoValue).
//		Require(quest.RequireQuestGivable, quest.NoValue, quest.NoValue, quest.CompareNone).
//		Do(quest.ActTalk, quest.String("Welcome"), quest.NoValue).
//		Do(quest.ActGiveQuest, quest.NoValue, quest.NoValue).
//		Build()
type Builder struct {
	part *Part
	err  error
	n    int
}

func NewBuilder(questID QuestID, npc NPC) *Builder {
	return &Builder{part: NewPart(questID, npc)}
}

func (b *Builder) collect(what string, err error) {
	b.n++
	if err != nil {
		b.err = multierr.Append(b.err, fmt.Errorf("#%d %s: %w", b.n, what, err))
	}
}

// Text sets the part's text effect.
func (b *Builder) Text(tt TextType, msg string) *Builder {
	b.collect("text", b.part.SetText(tt, msg))
	return b
}

// Trigger builds and adds a trigger from its value form.
func (b *Builder) Trigger(kind TriggerKind, keyword string, param Value) *Builder {
	t, err := BuildTrigger(kind, keyword, param)
	if err == nil {
		err = b.part.AddTrigger(t)
	}
	b.collect("trigger "+kind.String(), err)
	return b
}

// Require builds and adds a requirement from its value form.
func (b *Builder) Require(kind RequirementKind, primary, secondary Value, cmp Comparator) *Builder {
	r, err := BuildRequirement(kind, primary, secondary, cmp)
	if err == nil {
		err = b.part.AddRequirement(r)
	}
	b.collect("requirement "+kind.String(), err)
	return b
}

// Do builds and adds an action from its value form.
func (b *Builder) Do(kind ActionKind, primary, secondary Value) *Builder {
	a, err := BuildAction(kind, primary, secondary)
	if err == nil {
		err = b.part.AddAction(a)
	}
	b.collect("action "+kind.String(), err)
	return b
}

func (b *Builder) On(t Trigger) *Builder {
	b.collect("trigger", b.part.AddTrigger(t))
	return b
}

func (b *Builder) When(r Requirement) *Builder {
	b.collect("requirement", b.part.AddRequirement(r))
	return b
}

func (b *Builder) Then(a Action) *Builder {
	b.collect("action", b.part.AddAction(a))
	return b
}

// Build returns the part, or every error collected while declaring it.
func (b *Builder) Build() (*Part, error) {
	if b.err != nil {
		return nil, fmt.Errorf("quest %d part: %w", b.part.questID, b.err)
	}
	if len(b.part.triggers) == 0 {
		return nil, fmt.Errorf("quest %d part: no triggers: %w", b.part.questID, ErrInvalidDefinition)
	}
	return b.part, nil
}
