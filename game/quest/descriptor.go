package quest

import "fmt"

// Descriptor is the qualification policy of a quest: the level range a new
// player must be in and how many times one player may finish it.
type Descriptor struct {
	QuestID     QuestID `json:"quest_id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	MinLevel    int     `json:"min_level" yaml:"min_level"`
	MaxLevel    int     `json:"max_level" yaml:"max_level"`
	MaxRepeat   int     `json:"max_repeat" yaml:"max_repeat"`
}

// Default qualification bounds.
const (
	DefaultMinLevel  = 1
	DefaultMaxLevel  = 50
	DefaultMaxRepeat = 1
)

// NewDescriptor returns a descriptor with the default bounds.
func NewDescriptor(id QuestID, name string) *Descriptor {
	return &Descriptor{
		QuestID:   id,
		Name:      name,
		MinLevel:  DefaultMinLevel,
		MaxLevel:  DefaultMaxLevel,
		MaxRepeat: DefaultMaxRepeat,
	}
}

func (d *Descriptor) validate() error {
	switch {
	case d.QuestID <= 0:
		return fmt.Errorf("descriptor %q: quest id must be positive: %w", d.Name, ErrInvalidDefinition)
	case d.MinLevel > d.MaxLevel:
		return fmt.Errorf("descriptor %d: min level %d above max level %d: %w", d.QuestID, d.MinLevel, d.MaxLevel, ErrInvalidDefinition)
	case d.MaxRepeat < 1:
		return fmt.Errorf("descriptor %d: max repeat must be positive: %w", d.QuestID, ErrInvalidDefinition)
	}
	return nil
}

// Qualifies reports whether p may receive the quest. A player who already
// has it in progress always qualifies, so a level-gated quest stays
// completable after the player outlevels it.
func (d *Descriptor) Qualifies(p Player) bool {
	if p.Journal().Active(d.QuestID) {
		return true
	}
	lvl := p.Level()
	return lvl >= d.MinLevel && lvl <= d.MaxLevel
}

// Remaining returns how many more times p may finish the quest, or 0 when p
// does not qualify.
func (d *Descriptor) Remaining(p Player) int {
	if !d.Qualifies(p) {
		return 0
	}
	n := d.MaxRepeat - p.Journal().FinishedCount(d.QuestID)
	if n < 0 {
		return 0
	}
	return n
}
