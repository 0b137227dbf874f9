package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	"github.com/kasuganosora/rpgquest/model"
	"github.com/kasuganosora/rpgquest/scheduler"
	"github.com/kasuganosora/rpgquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	h      *Handler
	w      *world.World
	eng    *quest.Engine
	store  *world.Store
	router *Router
	elder  *world.NPC
	tail   *quest.ItemTemplate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	log := zap.NewNop()

	sched := scheduler.New(log)
	t.Cleanup(sched.Stop)
	sm := player.NewSessionManager(log)
	parties := party.NewManager(4, log)
	w := world.New(world.Deps{Sessions: sm, Parties: parties}, log)
	eng := quest.NewEngine(quest.DefaultOptions(), quest.Deps{
		World:  w,
		Timers: sched,
		Offers: quest.NewOffers(c, time.Minute, log),
	}, log)
	w.SetPublisher(eng.Publish)
	store := world.NewStore(db, item.NewInventoryService(db, 10, log), log)

	tail := &quest.ItemTemplate{ID: "rat_tail", Name: "rat tail", Weight: 1}
	require.NoError(t, w.Catalog().Add(tail))
	elder, err := w.AddNPC(world.NPCDef{
		ID: 100, Name: "Elder", Level: 40,
		Spawn:   quest.Position{Region: 1, X: 1000, Y: 1000},
		Spawned: true,
	})
	require.NoError(t, err)

	r := NewRouter(log)
	NewGameHandlers(w, eng, log).RegisterHandlers(r)
	NewNPCHandlers(w, eng, log).RegisterHandlers(r)
	NewPartyHandlers(parties, sm, log).RegisterHandlers(r)

	h := NewHandler(c, config.SecurityConfig{}, sm, w, eng, store, parties, r, log)
	return &fixture{h: h, w: w, eng: eng, store: store, router: r, elder: elder, tail: tail}
}

// questOne registers quest 1 on the elder: interact offers it, accepting
// gives it, declining grants 7 xp and handing over a rat tail finishes it.
func (f *fixture) questOne(t *testing.T) {
	t.Helper()
	d := quest.NewDescriptor(1, "Rat Problem")
	require.NoError(t, f.eng.Manager().RegisterDescriptor(d))
	require.NoError(t, f.eng.Manager().AddQuestToGive(f.elder, d))

	var parts []*quest.Part
	for _, b := range []*quest.Builder{
		quest.NewBuilder(1, f.elder).
			Trigger(quest.TriggerInteract, "", quest.NoValue).
			Do(quest.ActOfferQuest, quest.QuestRef(1), quest.String("Help us?")),
		quest.NewBuilder(1, f.elder).
			Trigger(quest.TriggerAcceptQuest, "", quest.QuestRef(1)).
			Do(quest.ActGiveQuest, quest.QuestRef(1), quest.NoValue),
		quest.NewBuilder(1, f.elder).
			Trigger(quest.TriggerDeclineQuest, "", quest.QuestRef(1)).
			Do(quest.ActGiveXP, quest.Int(7), quest.NoValue),
		quest.NewBuilder(1, f.elder).
			Trigger(quest.TriggerGiveItem, "", quest.ItemRef(f.tail)).
			Do(quest.ActTakeItem, quest.ItemRef(f.tail), quest.NoValue).
			Do(quest.ActFinishQuest, quest.QuestRef(1), quest.NoValue),
	} {
		part, err := b.Build()
		require.NoError(t, err)
		parts = append(parts, part)
	}
	f.eng.Rules().Register(parts...)
}

func (f *fixture) join(t *testing.T, id int64, pos quest.Position) (*player.PlayerSession, *world.Player) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.CreateCharacter(ctx, &model.Character{
		ID: id, Name: "hero", Level: 5, Region: pos.Region, X: pos.X, Y: pos.Y,
	}))
	s := newSession(id, "hero")
	p, err := f.h.join(ctx, s)
	require.NoError(t, err)
	return s, p
}

// send dispatches a packet and runs the engine jobs it queued.
func (f *fixture) send(t *testing.T, s *player.PlayerSession, typ string, payload interface{}) {
	t.Helper()
	f.router.Dispatch(s, makePacket(t, 0, typ, payload))
	f.eng.Drain()
	f.eng.Offers().Flush()
}

func drain(s *player.PlayerSession) []player.Packet {
	var out []player.Packet
	for {
		select {
		case raw := <-s.SendChan:
			var pkt player.Packet
			_ = json.Unmarshal(raw, &pkt)
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func types(pkts []player.Packet) []string {
	out := make([]string, 0, len(pkts))
	for _, p := range pkts {
		out = append(out, p.Type)
	}
	return out
}

func TestJoin_PlacesPlayer(t *testing.T) {
	f := newFixture(t)
	s, p := f.join(t, 1, f.elder.Position())

	got, ok := f.w.Player(1)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Same(t, s, f.h.sm.Get(1))
	assert.Contains(t, types(drain(s)), player.PktQuestList)
}

func TestJoin_UnknownCharacter(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.join(context.Background(), newSession(42, "ghost"))
	assert.ErrorIs(t, err, world.ErrNotFound)
	_, ok := f.w.Player(42)
	assert.False(t, ok)
}

func TestDisconnect_RemovesPlayer(t *testing.T) {
	f := newFixture(t)
	s, p := f.join(t, 1, f.elder.Position())

	f.h.handleDisconnect(p)
	assert.True(t, s.IsClosed())
	_, ok := f.w.Player(1)
	assert.False(t, ok)
	assert.Nil(t, f.h.sm.Get(1))
}

func TestDisconnect_DisplacedSessionKeepsNewer(t *testing.T) {
	f := newFixture(t)
	_, old := f.join(t, 1, f.elder.Position())

	s2 := newSession(1, "hero")
	p2, err := f.h.join(context.Background(), s2)
	require.NoError(t, err)

	f.h.handleDisconnect(old)
	got, ok := f.w.Player(1)
	require.True(t, ok)
	assert.Same(t, p2, got)
	assert.Same(t, s2, f.h.sm.Get(1))
}

func TestPing_SendsPong(t *testing.T) {
	f := newFixture(t)
	s := newSession(1, "hero")
	f.send(t, s, "ping", map[string]interface{}{"ts": int64(12345)})
	assert.Equal(t, []string{"pong"}, types(drain(s)))
}

func TestQuestFlow_OfferAccept(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, p := f.join(t, 1, f.elder.Position())
	drain(s)

	f.send(t, s, "npc_interact", map[string]int64{"npc_id": 100})
	assert.Contains(t, types(drain(s)), player.PktQuestOffer)

	f.send(t, s, "quest_reply", map[string]interface{}{"quest_id": 1, "accept": true})
	assert.True(t, p.Journal().Active(1))

	// The offer was consumed; a second answer does nothing.
	f.send(t, s, "quest_reply", map[string]interface{}{"quest_id": 1, "accept": false})
	assert.Zero(t, p.Character().Exp)
}

func TestQuestFlow_Decline(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, p := f.join(t, 1, f.elder.Position())

	f.send(t, s, "npc_interact", map[string]int64{"npc_id": 100})
	f.send(t, s, "quest_reply", map[string]interface{}{"quest_id": 1, "accept": false})
	assert.False(t, p.Journal().Active(1))
	assert.Equal(t, int64(7), p.Character().Exp)
}

func TestQuestReply_WithoutOffer(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, p := f.join(t, 1, f.elder.Position())

	f.send(t, s, "quest_reply", map[string]interface{}{"quest_id": 1, "accept": true})
	assert.False(t, p.Journal().Active(1))
}

func TestInteract_OutOfRange(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, _ := f.join(t, 1, quest.Position{Region: 1, X: 5000, Y: 5000})
	drain(s)

	f.send(t, s, "npc_interact", map[string]int64{"npc_id": 100})
	pkts := drain(s)
	require.Len(t, pkts, 1)
	assert.Equal(t, "error", pkts[0].Type)
	assert.Contains(t, string(pkts[0].Payload), "too far")
}

func TestInteract_UnknownNPC(t *testing.T) {
	f := newFixture(t)
	s, _ := f.join(t, 1, f.elder.Position())
	drain(s)

	f.send(t, s, "npc_interact", map[string]int64{"npc_id": 999})
	assert.Equal(t, []string{"error"}, types(drain(s)))
}

func TestGiveItem_RequiresItemInBag(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, p := f.join(t, 1, f.elder.Position())
	require.True(t, f.eng.Manager().Give(1, p, f.elder, 1))
	drain(s)

	f.send(t, s, "give_item", map[string]interface{}{"npc_id": 100, "item_id": "rat_tail"})
	assert.Equal(t, []string{"error"}, types(drain(s)))
	assert.True(t, p.Journal().Active(1))

	require.NoError(t, p.Bag().Add(f.tail, 1))
	f.send(t, s, "give_item", map[string]interface{}{"npc_id": 100, "item_id": "rat_tail"})
	assert.False(t, p.Journal().Active(1))
	assert.Equal(t, 1, p.Journal().FinishedCount(1))
	assert.Zero(t, p.Bag().Count("rat_tail"))
}

func TestMove_UpdatesPosition(t *testing.T) {
	f := newFixture(t)
	s, p := f.join(t, 1, quest.Position{Region: 1, X: 10, Y: 10})

	f.send(t, s, "player_move", map[string]int{"region": 1, "x": 40, "y": 50, "zone": 3})
	assert.Equal(t, quest.Position{Region: 1, X: 40, Y: 50}, p.Position())
	assert.Equal(t, 3, p.Zone())

	drain(s)
	f.send(t, s, "player_move", map[string]int{"region": 2, "x": 0, "y": 0})
	assert.Equal(t, 1, p.Position().Region)
	assert.Equal(t, []string{"error"}, types(drain(s)))
}

func TestUseItem(t *testing.T) {
	f := newFixture(t)
	part, err := quest.NewBuilder(9, f.elder).
		Trigger(quest.TriggerItemUsed, "", quest.ItemRef(f.tail)).
		Do(quest.ActGiveGold, quest.Int(3), quest.NoValue).
		Build()
	require.NoError(t, err)
	f.eng.Rules().Register(part)
	s, p := f.join(t, 1, f.elder.Position())
	drain(s)

	f.send(t, s, "use_item", map[string]string{"item_id": "rat_tail"})
	assert.Equal(t, []string{"error"}, types(drain(s)))

	require.NoError(t, p.Bag().Add(f.tail, 1))
	f.send(t, s, "use_item", map[string]string{"item_id": "rat_tail"})
	assert.Equal(t, int64(3), p.Character().Gold)
}

func TestQuestList(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	s, p := f.join(t, 1, f.elder.Position())
	f.eng.Manager().Give(1, p, f.elder, 1)
	drain(s)

	f.send(t, s, "quest_list", nil)
	pkts := drain(s)
	require.Len(t, pkts, 1)
	var body struct {
		Quests []quest.JournalEntry `json:"quests"`
	}
	require.NoError(t, json.Unmarshal(pkts[0].Payload, &body))
	require.Len(t, body.Quests, 1)
	assert.Equal(t, "Rat Problem", body.Quests[0].Name)
	assert.Equal(t, 1, body.Quests[0].Step)
}

func TestHandlers_IgnoreDisplacedSession(t *testing.T) {
	f := newFixture(t)
	f.questOne(t)
	old, _ := f.join(t, 1, f.elder.Position())
	_, err := f.h.join(context.Background(), newSession(1, "hero"))
	require.NoError(t, err)
	drain(old)

	f.send(t, old, "npc_interact", map[string]int64{"npc_id": 100})
	assert.Empty(t, drain(old))
}
