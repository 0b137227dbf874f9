// Package party tracks groups of players. Quest requirements read group size
// and combined level through it.
package party

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rpgquest/game/player"
	"go.uber.org/zap"
)

const defaultMaxPartySize = 8
const inviteTimeout = 30 * time.Second

var (
	ErrPartyFull     = errors.New("party is full")
	ErrInParty       = errors.New("target already in a party")
	ErrNoInvite      = errors.New("no valid invite")
	ErrInviteExpired = errors.New("invite expired")
)

var partyIDCounter int64

func nextPartyID() int64 {
	return atomic.AddInt64(&partyIDCounter, 1)
}

// Party represents an active party of players.
type Party struct {
	ID       int64
	LeaderID int64
	Members  []*player.PlayerSession
	maxSize  int
	mu       sync.RWMutex
}

// AddMember adds a session to the party. Returns error if full.
func (p *Party) AddMember(s *player.PlayerSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Members) >= p.maxSize {
		return ErrPartyFull
	}
	p.Members = append(p.Members, s)
	return nil
}

// RemoveMember removes the session for charID from the party. A leaving
// leader hands the lead to the next member.
func (p *Party) RemoveMember(charID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range p.Members {
		if m.CharID == charID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			break
		}
	}
	if p.LeaderID == charID && len(p.Members) > 0 {
		p.LeaderID = p.Members[0].CharID
	}
}

// Size returns the current number of members.
func (p *Party) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.Members)
}

// MemberIDs returns the character ids in join order.
func (p *Party) MemberIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]int64, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.CharID
	}
	return ids
}

type memberInfo struct {
	CharID int64  `json:"char_id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// BroadcastUpdate sends party_update to all members.
func (p *Party) BroadcastUpdate() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	members := make([]memberInfo, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, memberInfo{CharID: m.CharID, Name: m.CharName, Online: !m.IsClosed()})
	}
	pkt := player.NewPacket("party_update", map[string]interface{}{
		"party_id":  p.ID,
		"leader_id": p.LeaderID,
		"members":   members,
	})
	for _, m := range p.Members {
		m.Send(pkt)
	}
}

// Manager manages all active parties and pending invites.
type Manager struct {
	mu      sync.RWMutex
	parties map[int64]*Party         // partyID → Party
	byChar  map[int64]int64          // charID → partyID
	invites map[int64]*pendingInvite // targetCharID → invite
	maxSize int
	now     func() time.Time
	logger  *zap.Logger
}

type pendingInvite struct {
	Inviter   *player.PlayerSession
	ExpiresAt time.Time
}

// NewManager creates a new party Manager. maxSize <= 0 uses the default of 8.
func NewManager(maxSize int, logger *zap.Logger) *Manager {
	if maxSize <= 0 {
		maxSize = defaultMaxPartySize
	}
	return &Manager{
		parties: make(map[int64]*Party),
		byChar:  make(map[int64]int64),
		invites: make(map[int64]*pendingInvite),
		maxSize: maxSize,
		now:     time.Now,
		logger:  logger,
	}
}

// InvitePlayer sends a party invite from inviter to target.
func (m *Manager) InvitePlayer(inviter, target *player.PlayerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byChar[target.CharID]; ok {
		return ErrInParty
	}
	m.invites[target.CharID] = &pendingInvite{
		Inviter:   inviter,
		ExpiresAt: m.now().Add(inviteTimeout),
	}
	target.Send(player.NewPacket("party_invite_request", map[string]interface{}{
		"from_id":   inviter.CharID,
		"from_name": inviter.CharName,
	}))
	return nil
}

// AcceptInvite joins s to the inviter's party, creating it when the inviter
// is solo.
func (m *Manager) AcceptInvite(s *player.PlayerSession) (*Party, error) {
	m.mu.Lock()
	inv, ok := m.invites[s.CharID]
	delete(m.invites, s.CharID)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoInvite
	}
	if m.now().After(inv.ExpiresAt) {
		m.mu.Unlock()
		return nil, ErrInviteExpired
	}

	var p *Party
	if id, ok := m.byChar[inv.Inviter.CharID]; ok {
		p = m.parties[id]
	} else {
		p = &Party{
			ID:       nextPartyID(),
			LeaderID: inv.Inviter.CharID,
			Members:  []*player.PlayerSession{inv.Inviter},
			maxSize:  m.maxSize,
		}
		m.parties[p.ID] = p
		m.byChar[inv.Inviter.CharID] = p.ID
		m.logger.Info("party created", zap.Int64("party_id", p.ID))
	}
	if err := p.AddMember(s); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.byChar[s.CharID] = p.ID
	m.mu.Unlock()
	p.BroadcastUpdate()
	return p, nil
}

// DeclineInvite removes a pending invite for the given character.
func (m *Manager) DeclineInvite(charID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, charID)
}

// LeaveParty removes s from their current party. A party left with a single
// member is disbanded.
// Lock order is always m.mu → p.mu, matching AcceptInvite.
func (m *Manager) LeaveParty(s *player.PlayerSession) {
	m.mu.Lock()
	partyID, ok := m.byChar[s.CharID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byChar, s.CharID)
	p := m.parties[partyID]
	if p == nil {
		m.mu.Unlock()
		return
	}
	p.RemoveMember(s.CharID)
	if p.Size() <= 1 {
		for _, id := range p.MemberIDs() {
			delete(m.byChar, id)
		}
		delete(m.parties, partyID)
		m.mu.Unlock()
		m.logger.Info("party disbanded", zap.Int64("party_id", partyID))
		return
	}
	m.mu.Unlock()
	p.BroadcastUpdate()
}

// CleanupInvites removes any pending invites sent to or from the given charID.
func (m *Manager) CleanupInvites(charID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, charID)
	for targetID, inv := range m.invites {
		if inv.Inviter.CharID == charID {
			delete(m.invites, targetID)
		}
	}
}

// GetParty returns the Party a character belongs to, or nil.
func (m *Manager) GetParty(charID int64) *Party {
	m.mu.RLock()
	defer m.mu.RUnlock()
	partyID, ok := m.byChar[charID]
	if !ok {
		return nil
	}
	return m.parties[partyID]
}
