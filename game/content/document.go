// Package content reads quest content from YAML and resolves it into items,
// NPCs, trigger areas, descriptors and registered quest parts.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kasuganosora/rpgquest/game/quest"
	"gopkg.in/yaml.v3"
)

// Document is one parsed content file. Several files merge into one
// Document before resolution.
type Document struct {
	Items     []ItemDoc        `yaml:"items"`
	NPCs      []NPCDoc         `yaml:"npcs"`
	Areas     []AreaDoc        `yaml:"areas"`
	Locations []quest.Location `yaml:"locations"`
	Quests    []QuestDoc       `yaml:"quests"`
}

type ItemDoc struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

type NPCDoc struct {
	ID         int64          `yaml:"id"`
	Name       string         `yaml:"name"`
	Level      int            `yaml:"level"`
	Guild      string         `yaml:"guild"`
	Spawn      quest.Position `yaml:"spawn"`
	Aggressive bool           `yaml:"aggressive"`
	Speed      int            `yaml:"speed"`
	// Spawned defaults to true.
	Spawned *bool `yaml:"spawned"`
}

type AreaDoc struct {
	ID     int            `yaml:"id"`
	Name   string         `yaml:"name"`
	Center quest.Position `yaml:"center"`
	Radius int            `yaml:"radius"`
}

// QuestDoc declares a quest: its qualification bounds, the NPCs that give
// it and its parts. Zero bounds take the configured defaults.
type QuestDoc struct {
	ID          int       `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	MinLevel    int       `yaml:"min_level"`
	MaxLevel    int       `yaml:"max_level"`
	MaxRepeat   int       `yaml:"max_repeat"`
	Givers      []int64   `yaml:"givers"`
	Parts       []PartDoc `yaml:"parts"`
}

type PartDoc struct {
	NPC          int64            `yaml:"npc"`
	Text         *TextDoc         `yaml:"text"`
	Triggers     []TriggerDoc     `yaml:"triggers"`
	Requirements []RequirementDoc `yaml:"requirements"`
	Actions      []ActionDoc      `yaml:"actions"`
}

type TextDoc struct {
	Type    string `yaml:"type"`
	Message string `yaml:"message"`
}

type TriggerDoc struct {
	Kind    string `yaml:"kind"`
	Keyword string `yaml:"keyword"`
	Value   Value  `yaml:"value"`
}

type RequirementDoc struct {
	Kind      string `yaml:"kind"`
	Primary   Value  `yaml:"primary"`
	Secondary Value  `yaml:"secondary"`
	Compare   string `yaml:"compare"`
}

// ActionDoc is an action in value form. A sequence action lists its stages
// in Steps instead.
type ActionDoc struct {
	Kind      string    `yaml:"kind"`
	Primary   Value     `yaml:"primary"`
	Secondary Value     `yaml:"secondary"`
	Steps     []StepDoc `yaml:"steps"`
}

// StepDoc is one stage of a sequence; Delay is relative to the stage before.
type StepDoc struct {
	Delay     time.Duration `yaml:"delay"`
	ActionDoc `yaml:",inline"`
}

// Value is the YAML form of a quest.Value: a mapping with a single key that
// names the kind, such as {npc: 100}, {item: rat_tail} or {text: "Hello"}.
// An absent Value is quest.NoValue.
type Value struct {
	Kind string
	node *yaml.Node
	line int
}

func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: a value is a mapping with one key such as {int: 5}", n.Line)
	}
	v.Kind = n.Content[0].Value
	v.node = n.Content[1]
	v.line = n.Line
	return nil
}

// IsZero reports whether the value was left out.
func (v Value) IsZero() bool { return v.node == nil }

func (v Value) decode(out interface{}) error {
	if err := v.node.Decode(out); err != nil {
		return fmt.Errorf("line %d: %s value: %w", v.line, v.Kind, err)
	}
	return nil
}

// Parse decodes one content file. Unknown keys are rejected.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, err
	}
	return &doc, nil
}

// merge appends o's declarations to d.
func (d *Document) merge(o *Document) {
	d.Items = append(d.Items, o.Items...)
	d.NPCs = append(d.NPCs, o.NPCs...)
	d.Areas = append(d.Areas, o.Areas...)
	d.Locations = append(d.Locations, o.Locations...)
	d.Quests = append(d.Quests, o.Quests...)
}

// ReadPath parses a content file, or every *.yaml and *.yml file of a
// directory in name order.
func ReadPath(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files = nil
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			m, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, fmt.Errorf("content: %w", err)
			}
			files = append(files, m...)
		}
		sort.Strings(files)
	}

	doc := &Document{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("content: read %s: %w", f, err)
		}
		part, err := Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("content: parse %s: %w", f, err)
		}
		doc.merge(part)
	}
	return doc, nil
}
