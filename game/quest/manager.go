package quest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/rpgquest/audit"
	"go.uber.org/zap"
)

// NotQualifiedMessage is said to a player who asks for a quest they may not take.
const NotQualifiedMessage = "You are not yet able to do this."

// Auditor records quest transitions.
type Auditor interface {
	Log(entry audit.Entry)
}

// Manager is the quest registry. It owns the descriptors, decides whether a
// quest may be offered or given, and performs every transition of the
// per-player quest state machine.
type Manager struct {
	eng *Engine

	mu     sync.RWMutex
	global map[QuestID]*Descriptor
	byNPC  map[int64]map[QuestID]*Descriptor

	persist *Persister
	audit   Auditor
	offers  *Offers
}

func newManager(eng *Engine, persist *Persister, auditor Auditor, offers *Offers) *Manager {
	return &Manager{
		eng:     eng,
		global:  make(map[QuestID]*Descriptor),
		byNPC:   make(map[int64]map[QuestID]*Descriptor),
		persist: persist,
		audit:   auditor,
		offers:  offers,
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// RegisterDescriptor adds or replaces the global descriptor of a quest.
func (m *Manager) RegisterDescriptor(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("nil descriptor: %w", ErrInvalidDefinition)
	}
	if err := d.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.global[d.QuestID] = d
	m.mu.Unlock()
	return nil
}

// AddQuestToGive lets npc offer the quest under d, which takes precedence
// over the global descriptor whenever that NPC is the giver.
func (m *Manager) AddQuestToGive(npc NPC, d *Descriptor) error {
	if npc == nil || d == nil {
		return fmt.Errorf("npc and descriptor are required: %w", ErrInvalidDefinition)
	}
	if err := d.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	quests := m.byNPC[npc.ObjectID()]
	if quests == nil {
		quests = make(map[QuestID]*Descriptor)
		m.byNPC[npc.ObjectID()] = quests
	}
	quests[d.QuestID] = d
	return nil
}

// RemoveQuestToGive withdraws the NPC-scoped descriptor.
func (m *Manager) RemoveQuestToGive(npc NPC, id QuestID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quests := m.byNPC[npc.ObjectID()]; quests != nil {
		delete(quests, id)
		if len(quests) == 0 {
			delete(m.byNPC, npc.ObjectID())
		}
	}
}

// Reset drops every descriptor. Used when content is reloaded.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.global = make(map[QuestID]*Descriptor)
	m.byNPC = make(map[int64]map[QuestID]*Descriptor)
	m.mu.Unlock()
}

// Descriptor returns the global descriptor of a quest.
func (m *Manager) Descriptor(id QuestID) (*Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.global[id]
	return d, ok
}

// Descriptors returns the global descriptors ordered by quest id.
func (m *Manager) Descriptors() []*Descriptor {
	m.mu.RLock()
	out := make([]*Descriptor, 0, len(m.global))
	for _, d := range m.global {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].QuestID < out[j].QuestID })
	return out
}

func (m *Manager) descriptorFor(id QuestID, npc NPC) *Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if npc != nil {
		if d, ok := m.byNPC[npc.ObjectID()][id]; ok {
			return d
		}
	}
	return m.global[id]
}

func (m *Manager) questName(id QuestID) string {
	if d := m.descriptorFor(id, nil); d != nil && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("quest #%d", id)
}

// CanGive returns how many more times p may do the quest when offered by
// npc (or by nobody in particular when npc is nil), or 0 when p does not
// qualify or the quest is unknown.
func (m *Manager) CanGive(id QuestID, p Player, npc NPC) int {
	d := m.descriptorFor(id, npc)
	if d == nil {
		return 0
	}
	return d.Remaining(p)
}

// ---------------------------------------------------------------------------
// Offers
// ---------------------------------------------------------------------------

func (m *Manager) refuse(p Player, npc NPC) {
	if npc != nil && npc.InWorld() {
		npc.SayTo(p, NotQualifiedMessage)
		return
	}
	p.Out().Message(NotQualifiedMessage, ChatSystem)
}

// Propose shows an accept/decline prompt for the quest. The answer re-enters
// the engine as an AcceptQuest or DeclineQuest event.
func (m *Manager) Propose(id QuestID, msg string, p Player, npc NPC) bool {
	if m.CanGive(id, p, npc) <= 0 {
		m.refuse(p, npc)
		return false
	}
	if m.offers != nil {
		m.offers.Remember(p.ObjectID(), id, OfferGive)
	}
	p.Out().QuestOffer(npc, id, msg)
	return true
}

// ProposeAbort asks the player to confirm abandoning an active quest. The
// answer re-enters the engine as an AbortQuest or ContinueQuest event.
func (m *Manager) ProposeAbort(id QuestID, msg string, p Player, npc NPC) bool {
	if !p.Journal().Active(id) {
		m.noInstance("propose abort", id, p)
		return false
	}
	if m.offers != nil {
		m.offers.Remember(p.ObjectID(), id, OfferAbort)
	}
	p.Out().QuestAbortOffer(npc, id, msg)
	return true
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (m *Manager) noInstance(op string, id QuestID, p Player) {
	m.eng.log.Debug("quest not active, ignoring "+op,
		zap.Int("quest_id", int(id)), zap.Int64("char_id", p.ObjectID()))
}

func (m *Manager) record(action string, id QuestID, step int, p Player) {
	if m.audit == nil {
		return
	}
	charID := p.ObjectID()
	m.audit.Log(audit.Entry{
		TraceID:  uuid.NewString(),
		CharID:   &charID,
		CharName: p.Name(),
		Action:   action,
		QuestID:  int(id),
		Step:     step,
	})
}

// Give starts the quest for p at startStep (0 selects the configured
// starting step). It fails when p does not qualify or already has a live
// instance.
func (m *Manager) Give(id QuestID, p Player, npc NPC, startStep int) bool {
	if startStep <= 0 {
		startStep = m.eng.opts.StartingStep
	}
	j := p.Journal()
	if j.Active(id) {
		m.eng.log.Debug("quest already active",
			zap.Int("quest_id", int(id)), zap.Int64("char_id", p.ObjectID()))
		return false
	}
	if m.CanGive(id, p, npc) <= 0 {
		m.refuse(p, npc)
		return false
	}
	if !j.start(id, startStep) {
		return false
	}
	if m.persist != nil {
		m.persist.Save(p.ObjectID(), Quest{ID: id, Step: startStep})
	}
	m.record(audit.ActionQuestGive, id, startStep, p)
	p.Out().Message(fmt.Sprintf("You have acquired the %s quest.", m.questName(id)), ChatSystem)
	m.refresh(p)
	return true
}

// IncStep advances the active quest by one step.
func (m *Manager) IncStep(id QuestID, p Player) bool {
	return m.updateStep("inc step", id, p, func(step int) int { return step + 1 })
}

// SetStep moves the active quest to step.
func (m *Manager) SetStep(id QuestID, p Player, step int) bool {
	if step < 1 {
		m.eng.log.Warn("refusing to set quest step below 1",
			zap.Int("quest_id", int(id)), zap.Int("step", step))
		return false
	}
	return m.updateStep("set step", id, p, func(int) int { return step })
}

func (m *Manager) updateStep(op string, id QuestID, p Player, fn func(int) int) bool {
	step, ok := p.Journal().update(id, fn)
	if !ok {
		m.noInstance(op, id, p)
		return false
	}
	if m.persist != nil {
		m.persist.Save(p.ObjectID(), Quest{ID: id, Step: step})
	}
	m.record(audit.ActionQuestStep, id, step, p)
	p.Out().QuestList(m.Entries(p))
	return true
}

// Finish completes the active quest and counts the completion.
func (m *Manager) Finish(id QuestID, p Player) bool {
	step := p.Journal().Step(id)
	count, ok := p.Journal().finish(id)
	if !ok {
		m.noInstance("finish", id, p)
		return false
	}
	if m.persist != nil {
		m.persist.Finish(p.ObjectID(), id)
	}
	m.record(audit.ActionQuestFinish, id, step, p)
	m.eng.log.Info("quest finished",
		zap.Int("quest_id", int(id)), zap.Int64("char_id", p.ObjectID()), zap.Int("count", count))
	p.Out().Message(fmt.Sprintf("You finished the %s quest!", m.questName(id)), ChatSystem)
	m.refresh(p)
	return true
}

// Abort removes the active quest without counting it.
func (m *Manager) Abort(id QuestID, p Player) bool {
	step := p.Journal().Step(id)
	if !p.Journal().remove(id) {
		m.noInstance("abort", id, p)
		return false
	}
	if m.persist != nil {
		m.persist.Delete(p.ObjectID(), id)
	}
	m.record(audit.ActionQuestAbort, id, step, p)
	p.Out().Message(fmt.Sprintf("The %s quest has been removed from your journal.", m.questName(id)), ChatSystem)
	m.refresh(p)
	return true
}

// ---------------------------------------------------------------------------
// Player entry and presentation
// ---------------------------------------------------------------------------

// LoadPlayer reads p's persisted quest state into its journal and pushes the
// quest list and indicators.
func (m *Manager) LoadPlayer(ctx context.Context, p Player) error {
	if m.persist != nil {
		if err := m.persist.Load(ctx, p.ObjectID(), p.Journal()); err != nil {
			return fmt.Errorf("load quests for %d: %w", p.ObjectID(), err)
		}
	}
	m.refresh(p)
	return nil
}

// Entries returns p's quest list lines.
func (m *Manager) Entries(p Player) []JournalEntry {
	active := p.Journal().ActiveQuests()
	out := make([]JournalEntry, 0, len(active))
	for _, q := range active {
		out = append(out, JournalEntry{QuestID: q.ID, Name: m.questName(q.ID), Step: q.Step})
	}
	return out
}

// Indicator returns the marker npc should show to p.
func (m *Manager) Indicator(npc NPC, p Player) Indicator {
	m.mu.RLock()
	quests := make([]*Descriptor, 0, len(m.byNPC[npc.ObjectID()]))
	for _, d := range m.byNPC[npc.ObjectID()] {
		quests = append(quests, d)
	}
	m.mu.RUnlock()

	ind := IndicatorNone
	for _, d := range quests {
		if p.Journal().Active(d.QuestID) {
			ind = IndicatorPending
			continue
		}
		if d.Remaining(p) > 0 {
			return IndicatorAvailable
		}
	}
	return ind
}

func (m *Manager) refresh(p Player) {
	out := p.Out()
	out.QuestList(m.Entries(p))
	for _, npc := range m.eng.world.NPCsInRadius(p, m.eng.opts.VisibilityDistance) {
		out.QuestIndicator(npc, m.Indicator(npc, p))
	}
}
