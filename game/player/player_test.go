package player

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSession(charID int64, name string) *PlayerSession {
	return &PlayerSession{
		CharID:   charID,
		CharName: name,
		SendChan: make(chan []byte, 16),
		Done:     make(chan struct{}),
	}
}

func recv(t *testing.T, s *PlayerSession) Packet {
	t.Helper()
	select {
	case raw := <-s.SendChan:
		var pkt Packet
		require.NoError(t, json.Unmarshal(raw, &pkt))
		return pkt
	default:
		t.Fatal("no packet queued")
		return Packet{}
	}
}

func payload[T any](t *testing.T, pkt Packet) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(pkt.Payload, &v))
	return v
}

type stubNPC struct {
	quest.NPC
	id   int64
	name string
}

func (n stubNPC) ObjectID() int64 { return n.id }
func (n stubNPC) Name() string    { return n.name }

func TestSession_SendAndClose(t *testing.T) {
	s := newSession(1, "alice")
	s.Send(NewPacket("ping", map[string]int{"n": 1}))
	pkt := recv(t, s)
	assert.Equal(t, "ping", pkt.Type)

	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())
	s.Send(NewPacket("ping", nil))
	assert.Empty(t, s.SendChan, "closed sessions drop packets")
}

func TestSession_DropsWhenFull(t *testing.T) {
	s := &PlayerSession{CharID: 1, SendChan: make(chan []byte, 1), Done: make(chan struct{}), logger: zap.NewNop()}
	s.SendRaw([]byte("a"))
	s.SendRaw([]byte("b"))
	assert.Len(t, s.SendChan, 1)
}

func TestSession_AllowWithoutLimiter(t *testing.T) {
	s := newSession(1, "alice")
	for i := 0; i < 100; i++ {
		require.True(t, s.Allow())
	}
}

func TestSessionManager_DisplacesDuplicate(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())
	first := newSession(1, "Alice")
	second := newSession(1, "Alice")

	assert.Nil(t, sm.Register(first))
	assert.Same(t, first, sm.Register(second))
	assert.True(t, first.IsClosed())
	assert.Same(t, second, sm.Get(1))
	assert.Same(t, second, sm.GetByName("alice"))
	assert.Equal(t, 1, sm.Count())

	assert.False(t, sm.Unregister(first), "a displaced session does not remove its successor")
	assert.NotNil(t, sm.Get(1))
	assert.True(t, sm.Unregister(second))
	assert.Nil(t, sm.Get(1))
	assert.Nil(t, sm.GetByName("Alice"))
}

func TestSessionManager_CloseAllWaitsForUnregister(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())
	a, b := newSession(1, "a"), newSession(2, "b")
	sm.Register(a)
	sm.Register(b)
	// Stand-in for the read loops, which unregister once their session closes.
	for _, s := range []*PlayerSession{a, b} {
		go func() {
			<-s.Done
			sm.Unregister(s)
		}()
	}

	sm.CloseAllSessions()
	assert.Zero(t, sm.Count())
	sm.CloseAllSessions()
}

func TestSessionManager_BroadcastMessage(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())
	a, b := newSession(1, "a"), newSession(2, "b")
	sm.Register(a)
	sm.Register(b)

	sm.BroadcastMessage("The gates open!")
	for _, s := range []*PlayerSession{a, b} {
		pkt := recv(t, s)
		assert.Equal(t, PktChat, pkt.Type)
		got := payload[chatPayload](t, pkt)
		assert.Equal(t, "broadcast", got.Channel)
		assert.Equal(t, "The gates open!", got.Message)
	}
}

func TestPresenter_Packets(t *testing.T) {
	s := newSession(1, "alice")
	p := NewPresenter(s)
	npc := stubNPC{id: 9, name: "Elder"}

	var _ quest.Presenter = p

	p.Message("Hail", quest.ChatSay)
	pkt := recv(t, s)
	assert.Equal(t, PktChat, pkt.Type)
	assert.Equal(t, chatPayload{Channel: "say", Message: "Hail"}, payload[chatPayload](t, pkt))

	p.Dialog("Proceed?", "tok")
	assert.Equal(t, dialogPayload{Text: "Proceed?", Token: "tok"}, payload[dialogPayload](t, recv(t, s)))

	p.QuestOffer(npc, 3, "Help me?")
	assert.Equal(t, offerPayload{NPCID: 9, NPCName: "Elder", QuestID: 3, Text: "Help me?"},
		payload[offerPayload](t, recv(t, s)))

	p.QuestAbortOffer(npc, 3, "Give up?")
	assert.True(t, payload[offerPayload](t, recv(t, s)).Abort)

	p.EmoteAnimation(npc, quest.EmoteBow)
	assert.Equal(t, emotePayload{ActorID: 9, Emote: "bow"}, payload[emotePayload](t, recv(t, s)))

	p.SpellCastAnimation(npc, 1, 1500*time.Millisecond)
	assert.Equal(t, spellPayload{CasterID: 9, SpellID: 1, DurationMS: 1500}, payload[spellPayload](t, recv(t, s)))

	p.QuestIndicator(npc, quest.IndicatorPending)
	assert.Equal(t, indicatorPayload{NPCID: 9, Indicator: "pending"}, payload[indicatorPayload](t, recv(t, s)))

	p.QuestList(nil)
	pkt = recv(t, s)
	assert.Equal(t, PktQuestList, pkt.Type)
	assert.JSONEq(t, `{"quests":[]}`, string(pkt.Payload))
}
