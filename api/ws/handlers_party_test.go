package ws

import (
	"testing"

	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func partyRouter(t *testing.T) (*Router, *player.SessionManager) {
	t.Helper()
	log := zap.NewNop()
	sm := player.NewSessionManager(log)
	r := NewRouter(log)
	NewPartyHandlers(party.NewManager(4, log), sm, log).RegisterHandlers(r)
	return r, sm
}

func TestPartyInvite_ByName(t *testing.T) {
	r, sm := partyRouter(t)
	alice, bob := newSession(1, "Alice"), newSession(2, "Bob")
	sm.Register(alice)
	sm.Register(bob)

	r.Dispatch(alice, makePacket(t, 0, "party_invite", map[string]string{"target_name": "bob"}))
	got := drain(bob)
	require.Len(t, got, 1)
	assert.Equal(t, "party_invite_request", got[0].Type)
	assert.Empty(t, drain(alice))
}

func TestPartyInvite_Refusals(t *testing.T) {
	r, sm := partyRouter(t)
	alice := newSession(1, "Alice")
	sm.Register(alice)

	for name, payload := range map[string]interface{}{
		"unknown name": map[string]string{"target_name": "nobody"},
		"unknown id":   map[string]int64{"target_char_id": 99},
		"no target":    map[string]string{},
		"self":         map[string]int64{"target_char_id": 1},
	} {
		r.Dispatch(alice, makePacket(t, 0, "party_invite", payload))
		assert.Equal(t, []string{"error"}, types(drain(alice)), name)
	}
}
