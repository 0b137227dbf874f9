package quest

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextType selects how a part's text effect or a Message action is shown.
type TextType uint8

const (
	TextNone TextType = iota
	TextEmote
	TextBroadcast
	TextDialog
	// TextDirectSay is the part NPC saying the text to the player without turning.
	TextDirectSay
	TextRead
	TextTalk
	TextWhisper
)

var textTypeNames = map[TextType]string{
	TextNone:      "none",
	TextEmote:     "emote",
	TextBroadcast: "broadcast",
	TextDialog:    "dialog",
	TextDirectSay: "say_to",
	TextRead:      "read",
	TextTalk:      "talk",
	TextWhisper:   "whisper",
}

func (t TextType) String() string {
	if s, ok := textTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("text(%d)", uint8(t))
}

// ParseTextType is the inverse of TextType.String.
func ParseTextType(s string) (TextType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TextNone, nil
	}
	for t, name := range textTypeNames {
		if name == s {
			return t, nil
		}
	}
	return TextNone, fmt.Errorf("unknown text type %q: %w", s, ErrInvalidDefinition)
}

func (t TextType) needsNPC() bool {
	return t == TextDirectSay || t == TextTalk || t == TextWhisper
}

// Emote is a character animation.
type Emote uint16

const (
	EmoteBeckon Emote = iota + 1
	EmoteBlush
	EmoteBow
	EmoteCheer
	EmoteClap
	EmoteCry
	EmoteCurtsey
	EmoteDance
	EmoteLaugh
	EmotePoint
	EmoteSalute
	EmoteWave
	EmoteYes
	EmoteNo
	EmoteBind
	EmoteSpellGoBoom
)

var emoteNames = map[Emote]string{
	EmoteBeckon:      "beckon",
	EmoteBlush:       "blush",
	EmoteBow:         "bow",
	EmoteCheer:       "cheer",
	EmoteClap:        "clap",
	EmoteCry:         "cry",
	EmoteCurtsey:     "curtsey",
	EmoteDance:       "dance",
	EmoteLaugh:       "laugh",
	EmotePoint:       "point",
	EmoteSalute:      "salute",
	EmoteWave:        "wave",
	EmoteYes:         "yes",
	EmoteNo:          "no",
	EmoteBind:        "bind",
	EmoteSpellGoBoom: "spell_go_boom",
}

func (e Emote) String() string {
	if s, ok := emoteNames[e]; ok {
		return s
	}
	return fmt.Sprintf("emote(%d)", uint16(e))
}

// ParseEmote is the inverse of Emote.String.
func ParseEmote(s string) (Emote, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, name := range emoteNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown emote %q: %w", s, ErrInvalidDefinition)
}

// PlayerToken is replaced with the player's name in every text sent to a player.
const PlayerToken = "{Player}"

// Personalize replaces PlayerToken with the player's name, capitalised when
// the token starts the message.
func Personalize(msg string, p Player) string {
	if p == nil {
		return msg
	}
	idx := strings.Index(msg, PlayerToken)
	switch {
	case idx < 0:
		return msg
	case idx == 0:
		return strings.ReplaceAll(msg, PlayerToken, capitalize(p.Name()))
	default:
		return strings.ReplaceAll(msg, PlayerToken, p.Name())
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// sendText renders a part text effect. npc has already been defaulted.
func sendText(c *Context, tt TextType, msg string, npc NPC) {
	p := c.Player
	msg = Personalize(msg, p)
	switch tt {
	case TextNone:
	case TextEmote:
		p.Out().Message(msg, ChatEmote)
	case TextBroadcast:
		c.eng.world.Broadcast(msg)
	case TextDialog:
		p.Out().Dialog(msg, "")
	case TextRead:
		p.Out().Message("[ "+msg+" ]", ChatPopup)
	case TextDirectSay:
		npc.SayTo(p, msg)
	case TextTalk:
		npc.TurnTo(p)
		npc.SayTo(p, msg)
	case TextWhisper:
		npc.TurnTo(p)
		npc.WhisperTo(p, msg)
	}
}
