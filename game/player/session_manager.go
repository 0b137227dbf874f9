package player

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kasuganosora/rpgquest/game/quest"
	"go.uber.org/zap"
)

// closeWait bounds how long CloseAllSessions waits for read loops to unregister.
const closeWait = 10 * time.Second

// SessionManager indexes connected sessions by character ID and by
// lower-cased character name.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*PlayerSession
	byName   map[string]int64
	drained  chan struct{} // closed when the last session leaves during shutdown
	logger   *zap.Logger
}

func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*PlayerSession),
		byName:   make(map[string]int64),
		logger:   logger,
	}
}

func nameKey(name string) string { return strings.ToLower(name) }

// Register adds s and returns the session it displaced, if any. A displaced
// session is closed so its read loop exits; its own Unregister then becomes
// a no-op.
func (sm *SessionManager) Register(s *PlayerSession) *PlayerSession {
	sm.mu.Lock()
	old := sm.sessions[s.CharID]
	if old != nil {
		delete(sm.byName, nameKey(old.CharName))
	}
	sm.sessions[s.CharID] = s
	sm.byName[nameKey(s.CharName)] = s.CharID
	sm.mu.Unlock()

	if old != nil {
		old.Close()
		sm.logger.Info("duplicate session displaced", zap.Int64("char_id", s.CharID))
	}
	sm.logger.Info("player session registered",
		zap.Int64("char_id", s.CharID),
		zap.String("name", s.CharName))
	return old
}

// Unregister removes s unless a newer session for the same character has
// displaced it.
func (sm *SessionManager) Unregister(s *PlayerSession) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sessions[s.CharID] != s {
		return false
	}
	delete(sm.sessions, s.CharID)
	delete(sm.byName, nameKey(s.CharName))
	if len(sm.sessions) == 0 && sm.drained != nil {
		close(sm.drained)
		sm.drained = nil
	}
	sm.logger.Info("player session unregistered", zap.Int64("char_id", s.CharID))
	return true
}

func (sm *SessionManager) Get(charID int64) *PlayerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[charID]
}

// GetByName looks a session up by character name, ignoring case.
func (sm *SessionManager) GetByName(name string) *PlayerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	id, ok := sm.byName[nameKey(name)]
	if !ok {
		return nil
	}
	return sm.sessions[id]
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) snapshot() []*PlayerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*PlayerSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// BroadcastToAll encodes pkt once and queues it on every session. Slow
// clients lose the packet rather than stall the sender.
func (sm *SessionManager) BroadcastToAll(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		sm.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	dropped := 0
	for _, s := range sm.snapshot() {
		select {
		case s.SendChan <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		sm.logger.Warn("broadcast dropped for slow clients",
			zap.String("type", pkt.Type),
			zap.Int("dropped", dropped))
	}
}

// BroadcastMessage sends text on the broadcast chat channel.
func (sm *SessionManager) BroadcastMessage(message string) {
	sm.BroadcastToAll(NewPacket(PktChat, chatPayload{
		Channel: quest.ChatBroadcast.String(),
		Message: message,
	}))
}

// CloseAllSessions closes every session and waits, up to closeWait, for
// their read loops to unregister them.
func (sm *SessionManager) CloseAllSessions() {
	sm.mu.Lock()
	if len(sm.sessions) == 0 {
		sm.mu.Unlock()
		return
	}
	if sm.drained == nil {
		sm.drained = make(chan struct{})
	}
	drained := sm.drained
	sm.mu.Unlock()

	sessions := sm.snapshot()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	select {
	case <-drained:
	case <-time.After(closeWait):
		sm.logger.Warn("sessions still registered after close", zap.Int("count", sm.Count()))
	}
}
