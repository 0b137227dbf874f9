package party

import (
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSession(charID int64, name string) *player.PlayerSession {
	return &player.PlayerSession{
		CharID:   charID,
		CharName: name,
		SendChan: make(chan []byte, 16),
		Done:     make(chan struct{}),
	}
}

func TestInviteAcceptLeave(t *testing.T) {
	m := NewManager(3, zap.NewNop())
	alice, bob, carol := newSession(1, "alice"), newSession(2, "bob"), newSession(3, "carol")

	require.NoError(t, m.InvitePlayer(alice, bob))
	assert.Len(t, bob.SendChan, 1, "invite request delivered")

	p, err := m.AcceptInvite(bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.LeaderID)
	assert.Equal(t, []int64{1, 2}, p.MemberIDs())
	assert.Same(t, p, m.GetParty(1))
	assert.Same(t, p, m.GetParty(2))

	require.NoError(t, m.InvitePlayer(bob, carol))
	_, err = m.AcceptInvite(carol)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Size())

	assert.ErrorIs(t, m.InvitePlayer(alice, carol), ErrInParty)

	m.LeaveParty(alice)
	assert.Nil(t, m.GetParty(1))
	assert.Equal(t, int64(2), p.LeaderID, "lead passes on")

	m.LeaveParty(bob)
	assert.Nil(t, m.GetParty(3), "a party of one is disbanded")
	m.LeaveParty(bob)
}

func TestAcceptInvite_Failures(t *testing.T) {
	m := NewManager(2, zap.NewNop())
	alice, bob, carol := newSession(1, "alice"), newSession(2, "bob"), newSession(3, "carol")

	_, err := m.AcceptInvite(bob)
	assert.ErrorIs(t, err, ErrNoInvite)

	now := time.Now()
	m.now = func() time.Time { return now }
	require.NoError(t, m.InvitePlayer(alice, bob))
	now = now.Add(inviteTimeout + time.Second)
	_, err = m.AcceptInvite(bob)
	assert.ErrorIs(t, err, ErrInviteExpired)

	require.NoError(t, m.InvitePlayer(alice, bob))
	_, err = m.AcceptInvite(bob)
	require.NoError(t, err)
	require.NoError(t, m.InvitePlayer(alice, carol))
	_, err = m.AcceptInvite(carol)
	assert.ErrorIs(t, err, ErrPartyFull)
	assert.Nil(t, m.GetParty(3))
}

func TestCleanupInvites(t *testing.T) {
	m := NewManager(0, zap.NewNop())
	alice, bob, carol := newSession(1, "alice"), newSession(2, "bob"), newSession(3, "carol")
	require.NoError(t, m.InvitePlayer(alice, bob))
	require.NoError(t, m.InvitePlayer(alice, carol))

	m.CleanupInvites(1)
	_, err := m.AcceptInvite(bob)
	assert.ErrorIs(t, err, ErrNoInvite)
	_, err = m.AcceptInvite(carol)
	assert.ErrorIs(t, err, ErrNoInvite)
}
